package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"

	tele "gopkg.in/telebot.v4"

	"mensabot/internal/transport"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()
	a := &Adapter{}

	tests := []struct {
		name string
		err  error
		want transport.Outcome
	}{
		{"nil", nil, transport.Sent},
		{"blocked by user", tele.ErrBlockedByUser, transport.PermanentFailure},
		{"kicked from group", tele.ErrKickedFromGroup, transport.PermanentFailure},
		{"kicked from supergroup", tele.ErrKickedFromSuperGroup, transport.PermanentFailure},
		{"user deactivated", tele.ErrUserIsDeactivated, transport.PermanentFailure},
		{"unauthorized", tele.ErrUnauthorized, transport.PermanentFailure},
		{"generic 403", &tele.Error{Code: 403, Description: "Forbidden"}, transport.PermanentFailure},
		{"wrapped 403", fmt.Errorf("sending: %w", &tele.Error{Code: 403}), transport.PermanentFailure},
		{"bad request", &tele.Error{Code: 400, Description: "Bad Request"}, transport.TransientFailure},
		{"server error", &tele.Error{Code: 500}, transport.TransientFailure},
		{"flood", tele.FloodError{RetryAfter: 7}, transport.TransientFailure},
		{"network timeout", timeoutErr{}, transport.TransientFailure},
		{"context deadline", context.DeadlineExceeded, transport.TransientFailure},
		{"unknown", errors.New("something odd"), transport.TransientFailure},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := a.Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
