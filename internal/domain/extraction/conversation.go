package extraction

// Role identifies the author of a turn.
type Role string

const (
	RoleRequester Role = "user"
	RoleResponder Role = "model"
)

// Turn is one message of the conversation. File is only set on the
// initial request.
type Turn struct {
	Role Role
	Text string
	File *File
}

// Conversation is an append-only turn log. Append never mutates the receiver.
type Conversation struct {
	turns []Turn
}

// NewConversation starts a conversation with the given turns.
func NewConversation(turns ...Turn) Conversation {
	return Conversation{turns: append([]Turn(nil), turns...)}
}

// Append returns a conversation extended with t.
func (c Conversation) Append(t Turn) Conversation {
	next := make([]Turn, len(c.turns), len(c.turns)+1)
	copy(next, c.turns)
	return Conversation{turns: append(next, t)}
}

// Turns returns a copy of the log.
func (c Conversation) Turns() []Turn {
	return append([]Turn(nil), c.turns...)
}

// Len returns the number of turns.
func (c Conversation) Len() int {
	return len(c.turns)
}

// State is the lifecycle state of a chunk extraction.
type State int

const (
	StateUploading State = iota
	StateWaitingReady
	StateRequesting
	StateContinue
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUploading:
		return "uploading"
	case StateWaitingReady:
		return "waiting_ready"
	case StateRequesting:
		return "requesting"
	case StateContinue:
		return "continue"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
