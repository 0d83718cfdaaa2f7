package mail

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (f *fakeMailer) all() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (l nopLogger) With(...any) logging.Logger          { return l }

func testMailConfig(queueSize, workers int) *config.Config {
	return &config.Config{
		RegisterVerifyLinkTemplate: "https://example.com/register?token=%s",
		ChangeEmailLinkTemplate:    "https://example.com/email?token=%s",
		ResetPasswordLinkTemplate:  "https://example.com/password?token=%s",
		MailQueueSize:              queueSize,
		MailWorkers:                workers,
	}
}

func TestDispatcher_DeliversAllKinds(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(mailer, nopLogger{}, testMailConfig(10, 2))
	d.Start()

	d.Enqueue(Message{Recipient: "a@b.c", Kind: KindRegisterVerify, Token: "tok-reg"})
	d.Enqueue(Message{Recipient: "a@b.c", Kind: KindChangeEmail, Token: "tok-email"})
	d.Enqueue(Message{Recipient: "a@b.c", Kind: KindResetPassword, Token: "tok-pass"})
	d.Stop()

	sent := mailer.all()
	if len(sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(sent))
	}

	wantLinks := map[string]bool{
		"https://example.com/register?token=tok-reg":  false,
		"https://example.com/email?token=tok-email":   false,
		"https://example.com/password?token=tok-pass": false,
	}
	for _, m := range sent {
		if m.to != "a@b.c" {
			t.Errorf("unexpected recipient: %q", m.to)
		}
		for link := range wantLinks {
			if strings.Contains(m.body, link) {
				wantLinks[link] = true
			}
		}
	}
	for link, found := range wantLinks {
		if !found {
			t.Errorf("no message contained link %q", link)
		}
	}
}

func TestDispatcher_DropsOnFullQueue(t *testing.T) {
	mailer := &fakeMailer{}
	// No workers started, so the queue never drains.
	d := NewDispatcher(mailer, nopLogger{}, testMailConfig(1, 0))

	d.Enqueue(Message{Recipient: "a@b.c", Kind: KindRegisterVerify, Token: "t1"})
	d.Enqueue(Message{Recipient: "a@b.c", Kind: KindRegisterVerify, Token: "t2"}) // dropped

	if got := len(d.queue); got != 1 {
		t.Fatalf("queue length = %d, want 1", got)
	}
}

func TestDispatcher_StopWaitsForDrain(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(mailer, nopLogger{}, testMailConfig(100, 1))
	d.Start()

	for i := 0; i < 50; i++ {
		d.Enqueue(Message{Recipient: "a@b.c", Kind: KindResetPassword, Token: "t"})
	}
	d.Stop()

	if got := len(mailer.all()); got != 50 {
		t.Fatalf("sent %d messages, want 50", got)
	}
}
