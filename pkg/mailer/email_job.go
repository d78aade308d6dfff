package mailer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrBadJob marks jobs that can never be delivered; they are dropped rather
// than retried.
var ErrBadJob = errors.New("bad email job")

// MaxAttempts bounds how often the worker retries a job whose send failed.
const MaxAttempts = 5

// EmailJob is the JSON payload queued on RabbitMQ. Either Template (with
// Data) or Subject plus Text/HTML must be set.
type EmailJob struct {
	ID       string         `json:"id,omitempty"`
	QueuedAt time.Time      `json:"queued_at,omitempty"`
	Attempts int            `json:"attempts,omitempty"`
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // one of templates.Names
	Data     map[string]any `json:"data,omitempty"`
}

// Stamp assigns an ID and queue time to a job about to be published.
func (j *EmailJob) Stamp(now time.Time) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.QueuedAt.IsZero() {
		j.QueuedAt = now.UTC()
	}
}

// Validate rejects jobs that no amount of retrying would deliver.
func (j *EmailJob) Validate() error {
	if strings.TrimSpace(j.To) == "" {
		return fmt.Errorf("%w: missing recipient", ErrBadJob)
	}
	if j.Template == "" && (j.Subject == "" || (j.Text == "" && j.HTML == "")) {
		return fmt.Errorf("%w: subject with text or html required", ErrBadJob)
	}
	return nil
}

// Retry returns the job to republish after a failed send, or false once
// MaxAttempts is reached.
func (j EmailJob) Retry() (EmailJob, bool) {
	j.Attempts++
	return j, j.Attempts < MaxAttempts
}

// Message is a rendered email ready for a Sender. Tag groups messages in the
// provider's analytics and carries the template name.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
	Tag     string
}
