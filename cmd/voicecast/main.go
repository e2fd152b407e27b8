package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/voxlark/voicecast-sdk-go/pkg/voicecast"
)

var (
	verbose  bool
	endpoint string
	roomID   string
	userID   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "voicecast",
		Short: "Voicecast SDK CLI",
		Long:  "A command-line interface for recording and listening to voice broadcasts",
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "WebSocket endpoint URL")
	rootCmd.PersistentFlags().StringVar(&userID, "user-id", "", "User ID for the session")

	rootCmd.AddCommand(broadcastCmd())
	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		voicecast.GetGlobalLogger().WithError(err).Fatal("CLI execution failed")
	}
}

func buildConfig() *voicecast.Config {
	config := voicecast.NewConfig()
	if endpoint != "" {
		config.WsEndpoint = &endpoint
	}
	return config
}

func connect(config *voicecast.Config) (*voicecast.WSClient, error) {
	client := voicecast.NewWSClient(config)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func waitForInterrupt() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func broadcastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Start a voice broadcast",
		Long:  "Start recording a voice broadcast in a room; Ctrl-C stops it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" {
				return fmt.Errorf("--room is required")
			}

			config := buildConfig()
			client, err := connect(config)
			if err != nil {
				return err
			}
			defer client.Disconnect()

			room := client.GetRoom(roomID)
			if room == nil {
				return fmt.Errorf("room %s not known, is the client synced?", roomID)
			}

			recordings := voicecast.NewRecordingsStore(config)
			preRecordings := voicecast.NewPreRecordingStore()
			playbacks := voicecast.NewPlaybacksStore(client, func(infoEvent *voicecast.Event) voicecast.ChunkPlayer {
				return voicecast.NewPCMChunkPlayer(client)
			})
			defer recordings.Destroy()
			defer preRecordings.Destroy()
			defer playbacks.Destroy()

			ctx := context.Background()
			pre, err := voicecast.SetupPreRecording(ctx, room, client, config, stderrDialog{}, playbacks, recordings, preRecordings)
			if err != nil {
				return err
			}
			if err := pre.Start(ctx); err != nil {
				return err
			}

			recording := recordings.Current()
			if recording == nil {
				return fmt.Errorf("broadcast did not start")
			}

			mic := voicecast.NewMicChunkSource(voicecast.NewAudioConfig(), config.GetChunkLength())
			if err := recording.BindSource(mic, client); err != nil {
				return err
			}

			fmt.Printf("Broadcasting in %s, press Ctrl-C to stop...\n", roomID)
			waitForInterrupt()

			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := recording.Stop(stopCtx); err != nil {
				return err
			}
			fmt.Println("Broadcast stopped.")
			return nil
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "", "Room to broadcast in")
	return cmd
}

func listenCmd() *cobra.Command {
	var eventID string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen to a voice broadcast",
		Long:  "Play a voice broadcast, tailing it live when it is still running",
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" || eventID == "" {
				return fmt.Errorf("--room and --event are required")
			}

			config := buildConfig()
			client, err := connect(config)
			if err != nil {
				return err
			}
			defer client.Disconnect()

			ctx := context.Background()
			infoEvent, err := client.FetchRoomEvent(ctx, roomID, eventID)
			if err != nil {
				return err
			}

			playbacks := voicecast.NewPlaybacksStore(client, func(infoEvent *voicecast.Event) voicecast.ChunkPlayer {
				return voicecast.NewPCMChunkPlayer(client)
			})
			defer playbacks.Destroy()

			playback, err := playbacks.GetOrCreate(infoEvent)
			if err != nil {
				return err
			}

			removeTimes := playback.OnTimesChanged(func(times voicecast.PlaybackTimes) {
				if verbose {
					fmt.Printf("\r%.0fs / %.0fs", times.TimeSeconds, times.DurationSeconds)
				}
			})
			defer removeTimes()

			playback.Toggle(ctx)
			fmt.Println("Listening, press Ctrl-C to stop...")
			waitForInterrupt()

			playback.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "", "Room the broadcast lives in")
	cmd.Flags().StringVar(&eventID, "event", "", "Start event id of the broadcast")
	return cmd
}

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Audio device management",
	}

	cmd.AddCommand(devicesListCmd())
	cmd.AddCommand(devicesShowCmd())
	cmd.AddCommand(devicesCheckCmd())
	return cmd
}

func parseDeviceIDArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid device id %q", args[0])
	}
	return id, nil
}

func devicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := voicecast.NewAudioDeviceCatalog()
			if err := catalog.Open(); err != nil {
				return err
			}
			defer catalog.Close()

			fmt.Println("Available Audio Devices:")
			for _, device := range catalog.Devices() {
				marker := ""
				if device.Default {
					marker = " (Default)"
				}

				roles := ""
				switch {
				case device.CanCapture() && device.CanPlay():
					roles = "Capture/Playback"
				case device.CanCapture():
					roles = "Capture"
				case device.CanPlay():
					roles = "Playback"
				}

				fmt.Printf("  %d: %s%s - %s (%.0f Hz)\n",
					device.ID, device.Name, marker, roles, device.SampleRate)
			}
			return nil
		},
	}
}

func devicesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [device-id]",
		Short: "Show details for one audio device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := parseDeviceIDArg(args)
			if err != nil {
				return err
			}

			catalog := voicecast.NewAudioDeviceCatalog()
			if err := catalog.Open(); err != nil {
				return err
			}
			defer catalog.Close()

			info, err := catalog.Describe(deviceID)
			if err != nil {
				return err
			}
			fmt.Print(info)
			return nil
		},
	}
}

func devicesCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [device-id]",
		Short: "Check that a device can record a broadcast",
		Long:  "Validate a capture device against the broadcast audio settings; device 0 when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := parseDeviceIDArg(args)
			if err != nil {
				return err
			}

			catalog := voicecast.NewAudioDeviceCatalog()
			if err := catalog.Open(); err != nil {
				return err
			}
			defer catalog.Close()

			audio := voicecast.NewAudioConfig()
			if err := catalog.ValidateCaptureDevice(deviceID, audio); err != nil {
				return err
			}
			fmt.Printf("Device %d can record broadcasts (%d ch @ %d Hz).\n",
				deviceID, audio.Channels, audio.SampleRate)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := buildConfig()

			wsEndpoint := "<not set>"
			if config.WsEndpoint != nil {
				wsEndpoint = *config.WsEndpoint
			}

			fmt.Println("Current Configuration:")
			fmt.Printf("  Endpoint: %s\n", wsEndpoint)
			fmt.Printf("  Max Broadcast Length: %v\n", config.GetMaxBroadcastLength())
			fmt.Printf("  Chunk Length: %v\n", config.GetChunkLength())
			fmt.Printf("  Echo Timeout: %v\n", config.GetEchoTimeout())
			fmt.Printf("  Max Reconnect Attempts: %d\n", config.MaxReconnectAttempts)
			fmt.Printf("  Reconnect Delay: %.1fs\n", config.ReconnectDelay)
			fmt.Printf("  Token Auth: %v\n", config.UseTokenAuth)

			if issues := config.Validate(); len(issues) > 0 {
				fmt.Println("\nConfiguration issues:")
				for _, issue := range issues {
					fmt.Printf("  - %s\n", issue)
				}
			}
			return nil
		},
	}
}

// stderrDialog prints dialog messages to stderr; the CLI has no modal
// system.
type stderrDialog struct{}

func (stderrDialog) ShowMessage(title, message string) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)
}
