// Package voicecast implements live voice broadcasts on top of a room
// based messaging client: long-running audio transmissions recorded in
// chunks, streamed to every room member, and controllable (pause, resume,
// stop) while listeners can tune in live or replay later.
//
// # Overview
//
// The SDK covers the full broadcast lifecycle:
//   - Recording with chunked capture, pause/resume and automatic stop at
//     the configured maximum length
//   - Playback with live tailing, seeking and chunk-accurate progress
//   - Stores enforcing that one broadcast records and one plays at a time
//   - Precondition checks and orchestration for starting a broadcast
//   - Cleanup of broadcasts left dangling by a previous session
//   - A reference websocket client, audio capture and playback over
//     PortAudio, and a CLI
//
// # Quick Start
//
// Wire the stores against a connected client and start a broadcast:
//
//	config := voicecast.NewConfig()
//	client := voicecast.NewWSClient(config)
//	if err := client.Connect(); err != nil {
//		log.Fatal(err)
//	}
//
//	playbacks := voicecast.NewPlaybacksStore(client, newPlayer)
//	recordings := voicecast.NewRecordingsStore(config)
//	preRecordings := voicecast.NewPreRecordingStore()
//
//	room := client.GetRoom(roomID)
//	pre, err := voicecast.SetupPreRecording(ctx, room, client, config, dialog, playbacks, recordings, preRecordings)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := pre.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Listening
//
// Playbacks are obtained from the store so the same broadcast never gets
// duplicate models:
//
//	playback, err := playbacks.GetOrCreate(infoEvent)
//	if err != nil {
//		log.Fatal(err)
//	}
//	playback.Toggle(ctx)
//
// # Configuration
//
// Config reads VOICECAST_* environment variables via godotenv and applies
// layered defaults:
//
//	config := voicecast.NewConfig()
//	config.MaxBroadcastLength = 2 * time.Hour
//	config.ChunkLength = 60 * time.Second
//
// # Error Handling
//
// All errors carry a string code:
//
//	err := voicecast.NewVoicecastError("connection failed", voicecast.ErrCodeConnection)
//	if voicecast.IsRetryableError(err) {
//		// retry
//	}
//
// # Thread Safety
//
// Recording, Playback and the stores are safe for concurrent use. Handler
// callbacks run on the goroutine that triggered the transition; handlers
// must not block.
//
// # Dependencies
//
//   - github.com/gorilla/websocket: websocket client
//   - github.com/gordonklaus/portaudio: audio I/O
//   - github.com/rs/zerolog: structured logging
//   - github.com/spf13/cobra: CLI framework
//   - github.com/golang-jwt/jwt/v4: token handling
//   - github.com/joho/godotenv: environment variables
//   - github.com/google/uuid: transaction ids
//   - github.com/samber/lo: slice helpers
package voicecast
