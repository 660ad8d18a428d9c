package mqtt

// State is the consumer's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Message outcomes reported to the Recorder.
const (
	MessageProcessed = "processed"
	MessageFailed    = "failed"
	MessageFiltered  = "filtered"
	MessageMalformed = "malformed"
	MessageSkipped   = "skipped_first"
	MessageStale     = "stale_session"
)
