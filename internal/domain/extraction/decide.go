package extraction

const (
	DefaultMaxEmptyTurns = 2
	DefaultMaxTurns      = 200
)

// Policy bounds the conversation of one chunk.
type Policy struct {
	// ContinueOnProgress keeps asking while a turn contributed new records,
	// even without a CONTINUE marker.
	ContinueOnProgress bool
	MaxEmptyTurns      int
	MaxTurns           int
}

// DefaultPolicy mirrors the production loop.
func DefaultPolicy() Policy {
	return Policy{
		ContinueOnProgress: true,
		MaxEmptyTurns:      DefaultMaxEmptyTurns,
		MaxTurns:           DefaultMaxTurns,
	}
}

// LoopState is carried from turn to turn.
type LoopState struct {
	Turns       int
	EmptyStreak int
}

// Outcome summarizes one model turn.
type Outcome struct {
	Parsed Parsed
	// Accepted counts records that survived deduplication.
	Accepted int
	// Blank is set when the model returned no text at all.
	Blank bool
}

// Action is what the orchestrator does next.
type Action int

const (
	ActionContinue Action = iota
	ActionStop
)

func (a Action) String() string {
	if a == ActionStop {
		return "stop"
	}
	return "continue"
}

// StopReason explains an ActionStop.
type StopReason string

const (
	StopNone       StopReason = ""
	StopEndMarker  StopReason = "end_marker"
	StopNoProgress StopReason = "no_progress"
	StopMaxTurns   StopReason = "max_turns"
)

// Decision is the result of Decide.
type Decision struct {
	Action Action
	Reason StopReason
	// Progress is set when the turn moved the conversation forward.
	Progress bool
}

// Decide applies the policy to one outcome. It is pure: the next state is
// returned rather than stored.
func (p Policy) Decide(s LoopState, o Outcome) (Decision, LoopState) {
	p = p.withDefaults()
	s.Turns++

	var d Decision
	switch {
	case o.Blank:
		s.EmptyStreak++
		d = p.noProgress(s)
	case o.Parsed.End && !o.Parsed.Truncated:
		d = Decision{Action: ActionStop, Reason: StopEndMarker, Progress: o.Accepted > 0}
	case o.Parsed.Truncated || o.Parsed.Continue || (p.ContinueOnProgress && o.Accepted > 0):
		s.EmptyStreak = 0
		d = Decision{Action: ActionContinue, Progress: true}
	default:
		s.EmptyStreak++
		d = p.noProgress(s)
	}

	if d.Action == ActionContinue && s.Turns >= p.MaxTurns {
		d.Action = ActionStop
		d.Reason = StopMaxTurns
	}
	return d, s
}

func (p Policy) noProgress(s LoopState) Decision {
	if s.EmptyStreak >= p.MaxEmptyTurns {
		return Decision{Action: ActionStop, Reason: StopNoProgress}
	}
	return Decision{Action: ActionContinue}
}

func (p Policy) withDefaults() Policy {
	if p.MaxEmptyTurns <= 0 {
		p.MaxEmptyTurns = DefaultMaxEmptyTurns
	}
	if p.MaxTurns <= 0 {
		p.MaxTurns = DefaultMaxTurns
	}
	return p
}
