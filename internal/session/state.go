package session

// State is the lifecycle position of the controller's session.
type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateAwaitingAuth
	StateAuthenticated
	StateDead
)

// String returns the state name.
func (s State) String() string {
	names := []string{"uninitialized", "connecting", "awaiting_auth", "authenticated", "dead"}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}
