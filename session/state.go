package session

// State is the lifecycle stage of the local peer's session.
//
// Transitions: Idle → HostPending → ConnectedHost, Idle → JoinPending →
// ConnectedClient. Any non-idle state collapses through Disconnecting back
// to Idle on failure or explicit request. Disconnecting is transient: the
// manager goroutine completes the teardown within one handler call.
type State int

const (
	StateIdle State = iota
	StateHostPending
	StateJoinPending
	StateConnectedHost
	StateConnectedClient
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateHostPending:
		return "HostPending"
	case StateJoinPending:
		return "JoinPending"
	case StateConnectedHost:
		return "ConnectedHost"
	case StateConnectedClient:
		return "ConnectedClient"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// Connected reports whether a session is established in either role.
func (s State) Connected() bool {
	return s == StateConnectedHost || s == StateConnectedClient
}
