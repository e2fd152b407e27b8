package voicecast

// DetermineLiveness maps a broadcast info state to the three-valued
// liveness classification. Unknown states degrade to not-live.
func DetermineLiveness(state InfoState) Liveness {
	switch state {
	case InfoStateStarted, InfoStateResumed:
		return LivenessLive
	case InfoStatePaused:
		return LivenessGrey
	default:
		return LivenessNotLive
	}
}

// IsStartedInfoEvent reports whether the event is the Started info event of
// a broadcast lineage. Malformed input yields false.
func IsStartedInfoEvent(event *Event) bool {
	return event.IsInfoEvent() && event.InfoState() == InfoStateStarted
}

// ShouldDisplayAsBroadcastTile reports whether the event deserves its own
// broadcast tile. Only the Started event of a lineage is displayed;
// a redacted info event still gets a tile so the redaction stays visible.
func ShouldDisplayAsBroadcastTile(event *Event) bool {
	if !event.IsInfoEvent() {
		return false
	}
	return IsStartedInfoEvent(event) || event.Redacted
}
