package runner

// State is the orchestrator's position in a run.
type State int

const (
	StateIdle State = iota
	StateListenerUp
	StatePhase1Running
	StateAwaitingReconnect
	StatePhase2Running
	StateVerdicted
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListenerUp:
		return "ListenerUp"
	case StatePhase1Running:
		return "Phase1Running"
	case StateAwaitingReconnect:
		return "AwaitingReconnect"
	case StatePhase2Running:
		return "Phase2Running"
	case StateVerdicted:
		return "Verdicted"
	case StateTornDown:
		return "TornDown"
	default:
		return "Unknown"
	}
}
