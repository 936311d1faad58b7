// Package notify turns approved submissions into certificate-ready notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"edustatus/internal/logger"
	"edustatus/internal/metrics"
	"edustatus/internal/queue"
	"edustatus/internal/submission"
)

// Notification tells a student a certificate can be downloaded.
type Notification struct {
	SubmissionID string          `json:"submissionId"`
	UserID       string          `json:"userId"`
	Type         submission.Type `json:"type"`
	Text         string          `json:"text"`
}

// Worker consumes submission events from a queue.
type Worker struct {
	log     zerolog.Logger
	deliver func(Notification)
}

// Option configures a Worker.
type Option func(*Worker)

// WithSink receives every notification after it is logged.
func WithSink(fn func(Notification)) Option {
	return func(w *Worker) { w.deliver = fn }
}

func NewWorker(opts ...Option) *Worker {
	w := &Worker{log: logger.Get("notify")}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes messages until ctx is cancelled or the queue closes its channel.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}

	w.log.Info().Msg("worker started, waiting for messages")
	for msg := range messages {
		if err := w.Handle(msg); err != nil {
			w.log.Warn().Err(err).Str("type", msg.Type).Msg("message skipped")
		}
	}
	w.log.Info().Msg("worker stopped")
	return nil
}

// Handle processes a single message. Unknown message types are ignored.
func (w *Worker) Handle(msg queue.Message) error {
	if msg.Type != submission.EventApproved {
		return nil
	}

	var sub submission.Submission
	if err := json.Unmarshal(msg.Body, &sub); err != nil {
		return fmt.Errorf("decode submission: %w", err)
	}
	if sub.ID == "" || sub.UserID == "" {
		return errors.New("submission event missing id or user")
	}

	n := Notification{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		Type:         sub.Type,
		Text:         readyText(sub.Type),
	}
	metrics.Notifications.WithLabelValues(string(sub.Type)).Inc()
	w.log.Info().
		Str("submission_id", n.SubmissionID).
		Str("user_id", n.UserID).
		Str("type", string(n.Type)).
		Msg(n.Text)
	if w.deliver != nil {
		w.deliver(n)
	}
	return nil
}

func readyText(t submission.Type) string {
	switch t {
	case submission.TypeNoDues:
		return "No Dues certificate ready for download"
	case submission.TypeBonafide:
		return "Bonafide certificate ready for download"
	default:
		return "certificate ready for download"
	}
}
