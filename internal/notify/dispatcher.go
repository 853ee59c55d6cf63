package notify

import (
	"context"
	"fmt"
	"log"

	"gopkg.in/gomail.v2"

	"github.com/bobuk/opscal/internal/models"
)

// Outbox is the part of the email queue the dispatcher drains.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]*models.EmailQueueItem, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

// Dialer opens an SMTP session. *gomail.Dialer implements it.
type Dialer interface {
	Dial() (gomail.SendCloser, error)
}

// Dispatcher delivers pending outbox rows over SMTP. Delivery is best-effort:
// a failed row is marked failed and not retried.
type Dispatcher struct {
	outbox Outbox
	dialer Dialer
	from   string
	batch  int
	lg     *log.Logger
}

func NewSMTPDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

func NewDispatcher(outbox Outbox, dialer Dialer, from string, batch int, lg *log.Logger) *Dispatcher {
	if lg == nil {
		lg = log.Default()
	}
	if batch <= 0 {
		batch = 50
	}
	return &Dispatcher{outbox: outbox, dialer: dialer, from: from, batch: batch, lg: lg}
}

// DispatchResult counts one drain pass.
type DispatchResult struct {
	Sent   int
	Failed int
}

func (d *Dispatcher) Dispatch(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult
	items, err := d.outbox.Pending(ctx, d.batch)
	if err != nil {
		return res, fmt.Errorf("load pending emails: %w", err)
	}
	if len(items) == 0 {
		return res, nil
	}

	sender, err := d.dialer.Dial()
	if err != nil {
		return res, fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer sender.Close()

	for _, item := range items {
		m := gomail.NewMessage()
		m.SetHeader("From", d.from)
		m.SetHeader("To", item.Recipient)
		m.SetHeader("Subject", item.Subject)
		m.SetBody("text/plain", item.Content)

		if err := gomail.Send(sender, m); err != nil {
			res.Failed++
			d.lg.Printf("❗️ Failed to send %s email to %s: %v", item.Type, item.Recipient, err)
			if err := d.outbox.MarkFailed(ctx, item.ID, err); err != nil {
				d.lg.Printf("❗️ %v", err)
			}
			continue
		}
		res.Sent++
		d.lg.Printf("📧 Sent %s email to %s", item.Type, item.Recipient)
		if err := d.outbox.MarkSent(ctx, item.ID); err != nil {
			d.lg.Printf("❗️ %v", err)
		}
	}
	return res, nil
}
