package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	mailtpl "github.com/oksasatya/go-membership-affiliate/pkg/mailer/templates"
)

// Processor renders and sends queued email jobs.
type Processor struct {
	Sender   Sender
	Resolver GeoResolver
	Logger   *logrus.Logger
}

// Render resolves the subject and bodies for job.
func (p *Processor) Render(ctx context.Context, job *EmailJob) (subject, text, html string, err error) {
	if err := job.Validate(); err != nil {
		return "", "", "", err
	}
	if job.Template == "" {
		return job.Subject, job.Text, job.HTML, nil
	}

	if job.Data == nil {
		job.Data = map[string]any{}
	}
	if v, ok := job.Data["Email"]; !ok || fmt.Sprintf("%v", v) == "" {
		job.Data["Email"] = job.To
	}
	if p.Resolver != nil {
		localizeTimes(ctx, p.Resolver, job.Data)
	}

	subject, text, html, err = mailtpl.Render(job.Template, job.Data)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: render %s: %v", ErrBadJob, job.Template, err)
	}
	if job.Subject != "" {
		subject = job.Subject
	}
	return subject, text, html, nil
}

// Process renders job and hands it to the sender.
func (p *Processor) Process(ctx context.Context, job EmailJob) error {
	subject, text, html, err := p.Render(ctx, &job)
	if err != nil {
		return err
	}
	msg := Message{To: job.To, Subject: subject, Text: text, HTML: html, Tag: job.Template}
	if err := p.Sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{"job_id": job.ID, "template": job.Template, "attempts": job.Attempts}).Info("email sent")
	}
	return nil
}

// Outcome tells the consumer how to settle a delivery.
type Outcome int

const (
	Delivered Outcome = iota // ack
	Dropped                  // nack without requeue
	Retried                  // ack; a copy with Attempts+1 was republished
	Requeued                 // nack with requeue; republishing failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	case Retried:
		return "retried"
	case Requeued:
		return "requeued"
	}
	return "unknown"
}

// Handle decodes and processes one queued message. A failed send is retried
// by republishing through retry until MaxAttempts is reached.
func (p *Processor) Handle(ctx context.Context, body []byte, retry func(context.Context, EmailJob) error) Outcome {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		p.log().WithError(err).Warn("undecodable email job")
		return Dropped
	}
	fields := logrus.Fields{"job_id": job.ID, "template": job.Template, "attempts": job.Attempts}

	err := p.Process(ctx, job)
	switch {
	case err == nil:
		return Delivered
	case errors.Is(err, ErrBadJob):
		p.log().WithError(err).WithFields(fields).Warn("dropping email job")
		return Dropped
	}

	next, ok := job.Retry()
	if !ok {
		p.log().WithError(err).WithFields(fields).Error("email job gave up")
		return Dropped
	}
	if rerr := retry(ctx, next); rerr != nil {
		p.log().WithError(rerr).WithFields(fields).Warn("republish failed, requeueing")
		return Requeued
	}
	p.log().WithError(err).WithFields(fields).Warn("send failed, retry scheduled")
	return Retried
}

func (p *Processor) log() *logrus.Logger {
	if p.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return p.Logger
}
