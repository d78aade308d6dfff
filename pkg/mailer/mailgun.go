package mailer

import (
	"context"
	"strings"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Mailgun sends through a single client built once per process.
type Mailgun struct {
	client  *mg.MailgunImpl
	from    string
	Timeout time.Duration
}

// NewMailgun builds a sender for domain. region "eu" targets the EU API;
// anything else uses the default US endpoint.
func NewMailgun(domain, apiKey, from, region string) *Mailgun {
	client := mg.NewMailgun(domain, apiKey)
	if strings.EqualFold(strings.TrimSpace(region), "eu") {
		client.SetAPIBase(mg.APIBaseEU)
	}
	return &Mailgun{client: client, from: from, Timeout: 10 * time.Second}
}

func (m *Mailgun) Send(ctx context.Context, msg Message) error {
	out := m.client.NewMessage(m.from, msg.Subject, msg.Text, msg.To)
	if msg.HTML != "" {
		out.SetHtml(msg.HTML)
	}
	if msg.Tag != "" {
		if err := out.AddTag(msg.Tag); err != nil {
			return err
		}
	}
	c, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	_, _, err := m.client.Send(c, out)
	return err
}

var _ Sender = (*Mailgun)(nil)
