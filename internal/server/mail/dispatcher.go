package mail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
)

// Kind selects the message template for an outbound account email.
type Kind int

const (
	KindRegisterVerify Kind = iota
	KindChangeEmail
	KindResetPassword
)

// Message is one queued account email. Token is the plaintext token string;
// it exists only in flight and is never persisted.
type Message struct {
	Recipient string
	Kind      Kind
	Token     string
}

const sendTimeout = 30 * time.Second

// Dispatcher delivers account emails asynchronously: Enqueue never blocks
// the request path, a fixed pool of workers drains the queue. When the
// queue is full the message is dropped with a warning; the flows stay
// usable because every token can be re-requested.
type Dispatcher struct {
	mailer Mailer
	logger logging.Logger
	cfg    *config.Config

	queue chan Message
	wg    sync.WaitGroup
}

// NewDispatcher constructs a dispatcher; call Start to launch the workers.
func NewDispatcher(mailer Mailer, logger logging.Logger, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		mailer: mailer,
		logger: logger.With("component", "mail"),
		cfg:    cfg,
		queue:  make(chan Message, cfg.MailQueueSize),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.MailWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop closes the queue and waits for the workers to drain it.
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
}

// Enqueue schedules a message for delivery. It never blocks; on a full
// queue the message is dropped and a warning is logged.
func (d *Dispatcher) Enqueue(msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn(context.Background(), "mail queue full, dropping message", "recipient", msg.Recipient)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		subject, body := d.compose(msg)
		if err := d.mailer.Send(ctx, msg.Recipient, subject, body); err != nil {
			d.logger.Error(ctx, "error sending email", "recipient", msg.Recipient, "error", err)
		}
		cancel()
	}
}

func (d *Dispatcher) compose(msg Message) (subject, body string) {
	switch msg.Kind {
	case KindChangeEmail:
		link := fmt.Sprintf(d.cfg.ChangeEmailLinkTemplate, msg.Token)
		return "Confirm your new email address",
			fmt.Sprintf("Follow the link to confirm your new email address:\n\n%s\n", link)
	case KindResetPassword:
		link := fmt.Sprintf(d.cfg.ResetPasswordLinkTemplate, msg.Token)
		return "Reset your password",
			fmt.Sprintf("Follow the link to choose a new password:\n\n%s\n", link)
	default:
		link := fmt.Sprintf(d.cfg.RegisterVerifyLinkTemplate, msg.Token)
		return "Confirm your registration",
			fmt.Sprintf("Follow the link to finish creating your account:\n\n%s\n", link)
	}
}
