package core

// Snapshot is a point-in-time view of a flow for rendering.
type Snapshot struct {
	FlowID            string       `json:"flow_id"`
	State             SessionState `json:"state"`
	Phone             string       `json:"phone,omitempty"`
	CooldownRemaining int          `json:"cooldown_remaining"`
	CanResend         bool         `json:"can_resend"`
	Cells             []string     `json:"cells"`
	Focus             int          `json:"focus"`
	Attempt           int          `json:"attempt,omitempty"`
	Error             string       `json:"error,omitempty"`
	Principal         *Principal   `json:"principal,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		FlowID:            s.id,
		State:             s.state,
		Phone:             s.phone.Masked(),
		CooldownRemaining: s.timer.Remaining(),
		Cells:             s.buffer.Cells(),
		Focus:             s.buffer.Focus(),
		Attempt:           s.attempt,
		Error:             ErrorCode(s.lastErr),
	}
	snap.CanResend = s.state == StateCodeCollection && snap.CooldownRemaining == 0
	if s.principal != nil {
		p := *s.principal
		snap.Principal = &p
	}
	return snap
}
