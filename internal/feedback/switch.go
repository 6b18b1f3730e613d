package feedback

import (
	"context"
	"errors"
	"sync/atomic"
)

// Switch is a FeedbackSink whose mailer can be swapped at runtime, so a
// config reload can enable, change, or disable feedback forwarding without
// a restart.
type Switch struct {
	ptr atomic.Pointer[Mailer]
}

func NewSwitch(m *Mailer) *Switch {
	s := &Switch{}
	s.Swap(m)
	return s
}

// Swap installs the new mailer; nil disables forwarding.
func (s *Switch) Swap(m *Mailer) { s.ptr.Store(m) }

func (s *Switch) Available() bool { return s.ptr.Load() != nil }

func (s *Switch) Forward(ctx context.Context, chatID int64, text string) error {
	m := s.ptr.Load()
	if m == nil {
		return errors.New("feedback: not configured")
	}
	return m.Forward(ctx, chatID, text)
}
