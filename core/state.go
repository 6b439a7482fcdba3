package core

import "fmt"

// SessionState is the position of a verification attempt in its state machine.
type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingChallenge
	StateDispatching
	StateCodeCollection
	StateVerifying
	StateVerified
	StateFailed
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateAwaitingChallenge: "awaiting_challenge",
	StateDispatching:       "dispatching",
	StateCodeCollection:    "code_collection",
	StateVerifying:         "verifying",
	StateVerified:          "verified",
	StateFailed:            "failed",
}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s SessionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SessionState) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = SessionState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", string(b))
}

// Busy reports whether a provider call is in flight in this state.
func (s SessionState) Busy() bool {
	return s == StateAwaitingChallenge || s == StateDispatching || s == StateVerifying
}
