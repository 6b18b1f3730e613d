package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mensabot/internal/registry"
	"mensabot/internal/transport"
	"mensabot/pkg/logx"
)

type fakeRegistry struct {
	subs        map[int64]registry.Subscriber
	subscribes  int
	unsubs      int
	prefChanges int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{subs: map[int64]registry.Subscriber{}}
}

func (f *fakeRegistry) Subscribe(ctx context.Context, chatID int64) (registry.Subscriber, bool, error) {
	f.subscribes++
	if sub, ok := f.subs[chatID]; ok {
		return sub, false, nil
	}
	sub := registry.Subscriber{ChatID: chatID, Preference: registry.FullWeek}
	f.subs[chatID] = sub
	return sub, true, nil
}

func (f *fakeRegistry) SetPreference(ctx context.Context, chatID int64, pref registry.Preference) (bool, error) {
	f.prefChanges++
	sub, ok := f.subs[chatID]
	if !ok {
		return false, nil
	}
	sub.Preference = pref
	f.subs[chatID] = sub
	return true, nil
}

func (f *fakeRegistry) Unsubscribe(ctx context.Context, chatID int64) (bool, error) {
	f.unsubs++
	if _, ok := f.subs[chatID]; !ok {
		return false, nil
	}
	delete(f.subs, chatID)
	return true, nil
}

func (f *fakeRegistry) mutations() int { return f.subscribes + f.unsubs + f.prefChanges }

type fakeMenu struct {
	path  string
	err   error
	calls int
}

func (f *fakeMenu) EnsureArtifact(ctx context.Context, today time.Time) (string, error) {
	f.calls++
	return f.path, f.err
}

type fakeSender struct {
	texts  []string
	images []string
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) SendImage(ctx context.Context, to transport.ChatTarget, imagePath string) error {
	f.images = append(f.images, imagePath)
	return nil
}

type fakeFeedback struct {
	available bool
	forwarded []string
	err       error
}

func (f *fakeFeedback) Available() bool { return f.available }
func (f *fakeFeedback) Forward(ctx context.Context, chatID int64, text string) error {
	if f.err != nil {
		return f.err
	}
	f.forwarded = append(f.forwarded, text)
	return nil
}

func newTestRouter(reg Registry, m MenuSource, s *fakeSender, fb FeedbackSink) *Router {
	return NewRouter(Config{Location: time.UTC}, reg, m, s, fb, logx.Nop())
}

func private(text string) transport.Message {
	return transport.Message{ChatID: 99, Text: text, Private: true}
}

func TestUnknownCommandRepliesWithoutMutation(t *testing.T) {
	t.Parallel()
	reg := newFakeRegistry()
	s := &fakeSender{}
	r := newTestRouter(reg, &fakeMenu{}, s, nil)

	for _, text := range []string{"hallo", "/unknown", "was gibts heute?", "/START"} {
		r.Handle(context.Background(), private(text))
	}

	if reg.mutations() != 0 {
		t.Fatalf("unknown commands caused %d registry mutations", reg.mutations())
	}
	for _, reply := range s.texts {
		if reply != "Das habe ich nicht verstanden" {
			t.Fatalf("unexpected reply %q", reply)
		}
	}
	if len(s.texts) != 4 {
		t.Fatalf("got %d replies, want 4", len(s.texts))
	}
}

func TestStartSubscribes(t *testing.T) {
	t.Parallel()
	reg := newFakeRegistry()
	s := &fakeSender{}
	r := newTestRouter(reg, &fakeMenu{}, s, nil)

	r.Handle(context.Background(), private("/start"))
	if _, ok := reg.subs[99]; !ok {
		t.Fatal("chat was not subscribed")
	}
	if !strings.HasPrefix(s.texts[0], "Du bekommst ") {
		t.Fatalf("private chat reply = %q, want singular salutation", s.texts[0])
	}

	// Second /start keeps the record and replies differently.
	r.Handle(context.Background(), private("/start"))
	if len(reg.subs) != 1 {
		t.Fatalf("subscriber count = %d, want 1", len(reg.subs))
	}
	if s.texts[1] == s.texts[0] {
		t.Fatal("resubscribe reply should differ from first subscribe")
	}
}

func TestGroupChatGetsPluralSalutation(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	r := newTestRouter(newFakeRegistry(), &fakeMenu{}, s, nil)

	r.Handle(context.Background(), transport.Message{ChatID: -100, Text: "/start", Private: false})
	if !strings.HasPrefix(s.texts[0], "Ihr bekommt ") {
		t.Fatalf("group chat reply = %q, want plural salutation", s.texts[0])
	}
}

func TestStopUnsubscribes(t *testing.T) {
	t.Parallel()
	reg := newFakeRegistry()
	s := &fakeSender{}
	r := newTestRouter(reg, &fakeMenu{}, s, nil)

	// Not subscribed yet: informational reply, no error.
	r.Handle(context.Background(), private("/stop"))
	if !strings.Contains(s.texts[0], "doch gar nicht") {
		t.Fatalf("reply = %q", s.texts[0])
	}

	r.Handle(context.Background(), private("/start"))
	r.Handle(context.Background(), private("/stop"))
	if len(reg.subs) != 0 {
		t.Fatal("chat is still subscribed after /stop")
	}
}

func TestPreferenceCommands(t *testing.T) {
	t.Parallel()
	reg := newFakeRegistry()
	s := &fakeSender{}
	r := newTestRouter(reg, &fakeMenu{}, s, nil)

	// Preference change without a subscription is a no-op with a reply.
	r.Handle(context.Background(), private("/mondays"))
	if len(reg.subs) != 0 {
		t.Fatal("preference change created a record")
	}

	r.Handle(context.Background(), private("/start"))
	r.Handle(context.Background(), private("/mondays"))
	if got := reg.subs[99].Preference; got != registry.MondayOnly {
		t.Fatalf("preference = %q, want %q", got, registry.MondayOnly)
	}
	r.Handle(context.Background(), private("/weekdays"))
	if got := reg.subs[99].Preference; got != registry.FullWeek {
		t.Fatalf("preference = %q, want %q", got, registry.FullWeek)
	}
}

func TestMenuOnDemand(t *testing.T) {
	t.Parallel()
	m := &fakeMenu{path: "today.png"}
	s := &fakeSender{}
	r := newTestRouter(newFakeRegistry(), m, s, nil)

	// Works without any subscription: explicit request beats gating.
	r.Handle(context.Background(), private("/menu"))
	if m.calls != 1 {
		t.Fatalf("EnsureArtifact calls = %d, want 1", m.calls)
	}
	if len(s.images) != 1 || s.images[0] != "today.png" {
		t.Fatalf("images sent = %v", s.images)
	}
	if s.texts[0] != "Kommt sofort..." {
		t.Fatalf("ack reply = %q", s.texts[0])
	}

	r.Handle(context.Background(), private("/fullmenu"))
	if len(s.images) != 2 {
		t.Fatalf("/fullmenu did not send an image")
	}
}

func TestMenuFailureInformsRequester(t *testing.T) {
	t.Parallel()
	m := &fakeMenu{err: errors.New("source unavailable")}
	s := &fakeSender{}
	r := newTestRouter(newFakeRegistry(), m, s, nil)

	r.Handle(context.Background(), private("/menu"))
	if len(s.images) != 0 {
		t.Fatalf("image sent despite failure: %v", s.images)
	}
	last := s.texts[len(s.texts)-1]
	if !strings.Contains(last, "nicht abgerufen") {
		t.Fatalf("failure reply = %q", last)
	}
}

func TestFeedback(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		sink      *fakeFeedback
		text      string
		wantReply string
		wantSent  int
	}{
		{"unconfigured", &fakeFeedback{available: false}, "/feedback tolles Essen", "nicht möglich", 0},
		{"empty body", &fakeFeedback{available: true}, "/feedback   ", "Benutzung", 0},
		{"forwarded", &fakeFeedback{available: true}, "/feedback tolles Essen", "Danke", 1},
		{"mailer down", &fakeFeedback{available: true, err: errors.New("smtp broke")}, "/feedback hi", "nicht zugestellt", 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &fakeSender{}
			r := newTestRouter(newFakeRegistry(), &fakeMenu{}, s, tt.sink)

			r.Handle(context.Background(), private(tt.text))
			if len(tt.sink.forwarded) != tt.wantSent {
				t.Fatalf("forwarded = %v, want %d entries", tt.sink.forwarded, tt.wantSent)
			}
			if !strings.Contains(s.texts[len(s.texts)-1], tt.wantReply) {
				t.Fatalf("reply = %q, want substring %q", s.texts[len(s.texts)-1], tt.wantReply)
			}
		})
	}
}
