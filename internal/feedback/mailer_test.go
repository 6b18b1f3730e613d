package feedback

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"mensabot/pkg/logx"
)

func TestNewMailerUnconfigured(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty", Config{}},
		{"no recipients", Config{Host: "mail.example.org", From: "bot@example.org"}},
		{"no host", Config{From: "bot@example.org", To: []string{"ops@example.org"}}},
	}
	for _, tt := range tests {
		if m := NewMailer(tt.cfg, logx.Nop()); m != nil {
			t.Fatalf("%s: NewMailer returned a mailer for incomplete config", tt.name)
		}
	}
}

func TestForwardBuildsMessage(t *testing.T) {
	t.Parallel()
	m := NewMailer(Config{
		Host: "mail.example.org",
		From: "bot@example.org",
		To:   []string{"ops@example.org", "chef@example.org"},
	}, logx.Nop())
	if m == nil {
		t.Fatal("NewMailer returned nil for a complete config")
	}

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	if err := m.Forward(context.Background(), 42, "Mehr Nachtisch bitte"); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if gotAddr != "mail.example.org:587" {
		t.Fatalf("addr = %q", gotAddr)
	}
	if gotFrom != "bot@example.org" || len(gotTo) != 2 {
		t.Fatalf("from=%q to=%v", gotFrom, gotTo)
	}
	if !strings.Contains(gotMsg, "Mehr Nachtisch bitte") {
		t.Fatalf("body missing feedback text: %q", gotMsg)
	}
	if !strings.Contains(gotMsg, "chat 42") {
		t.Fatalf("subject missing chat id: %q", gotMsg)
	}
}

func TestSwitch(t *testing.T) {
	t.Parallel()
	s := NewSwitch(nil)
	if s.Available() {
		t.Fatal("empty switch reports available")
	}
	if err := s.Forward(context.Background(), 1, "x"); err == nil {
		t.Fatal("empty switch forwarded")
	}

	m := NewMailer(Config{Host: "h", From: "f", To: []string{"t"}}, logx.Nop())
	sent := false
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = true
		return nil
	}
	s.Swap(m)
	if !s.Available() {
		t.Fatal("switch with mailer reports unavailable")
	}
	if err := s.Forward(context.Background(), 1, "x"); err != nil || !sent {
		t.Fatalf("Forward: err=%v sent=%v", err, sent)
	}
}
