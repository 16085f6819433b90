package cryptonet

// SessionState is the lifecycle state of a Client's engine session.
type SessionState int

// Session states. A Client starts Uninitialized, becomes Active after
// InitializeSession and Closed after DeinitializeSession. A Closed client may
// be initialized again.
const (
	StateUninitialized SessionState = iota
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
