package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"edustatus/internal/apperr"
	"edustatus/internal/logger"
	"edustatus/internal/metrics"
	"edustatus/internal/queue"
	"edustatus/internal/store"
)

// Type is the kind of certificate requested.
type Type string

const (
	TypeNoDues   Type = "noDues"
	TypeBonafide Type = "bonafide"
)

// Status of a submission. Submissions are approved on creation; pending and rejected
// are never produced.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// EventApproved is the queue message type published for each accepted submission.
const EventApproved = "submission.approved"

// ErrUnknownType is returned for request types other than noDues and bonafide.
var ErrUnknownType = errors.New("unknown submission type")

// ParseType maps a request type name to a Type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeNoDues, TypeBonafide:
		return Type(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Submission is one certificate request.
type Submission struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	Type           Type              `json:"type"`
	Status         Status            `json:"status"`
	SubmittedAt    string            `json:"submittedAt"`
	LastSubmission string            `json:"lastSubmission,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
}

// timestampLayout matches ISO-8601 with milliseconds in UTC; its first ten bytes are
// the calendar date.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// publishTimeout bounds how long a full queue can hold up a submission.
const publishTimeout = 2 * time.Second

// Tracker enforces the once-per-day rule and records auto-approved submissions.
type Tracker struct {
	subs  *store.Sequence[Submission]
	queue queue.Queue
	locks store.Locks
	now   func() time.Time
	log   zerolog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithQueue publishes an event for every accepted submission.
func WithQueue(q queue.Queue) Option {
	return func(t *Tracker) { t.queue = q }
}

// NewTracker creates a tracker backed by the submissions collection of st.
func NewTracker(st *store.Store, opts ...Option) *Tracker {
	t := &Tracker{
		subs: store.NewSequence(st, store.KindSubmissions,
			func(s Submission) string { return s.ID },
			func(s *Submission) { s.ID = string(s.Type) + "_" + uuid.NewString() }),
		now: time.Now,
		log: logger.Get("submission"),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Submit records a request of type typ for userID, failing with
// apperr.ErrDuplicateSubmissionToday when one already exists for the current UTC date.
func (t *Tracker) Submit(ctx context.Context, userID string, typ Type, details map[string]string) (Submission, error) {
	sub, err := t.submit(ctx, userID, typ, details)
	label, result := string(typ), metrics.Result(err)
	if errors.Is(err, ErrUnknownType) {
		label, result = "unknown", "UnknownType"
	}
	metrics.Submissions.WithLabelValues(label, result).Inc()
	return sub, err
}

func (t *Tracker) submit(ctx context.Context, userID string, typ Type, details map[string]string) (Submission, error) {
	if userID == "" {
		return Submission{}, apperr.ErrNotAuthenticated
	}
	if _, err := ParseType(string(typ)); err != nil {
		return Submission{}, err
	}

	unlock := t.locks.Lock(userID)
	defer unlock()

	now := t.now().UTC()
	today := now.Format(time.DateOnly)

	sub, err := t.subs.AppendIf(ctx, Submission{
		UserID:      userID,
		Type:        typ,
		Status:      StatusApproved,
		SubmittedAt: now.Format(timestampLayout),
		Details:     details,
	}, func(all []Submission, sub *Submission) error {
		for _, s := range all {
			if s.UserID != userID || s.Type != typ {
				continue
			}
			if sameDay(s.SubmittedAt, today) {
				return apperr.ErrDuplicateSubmissionToday
			}
			sub.LastSubmission = s.SubmittedAt
		}
		return nil
	})
	if err != nil {
		if apperr.Kind(err) == "Internal" {
			err = fmt.Errorf("save submission: %w", err)
		}
		return Submission{}, err
	}
	t.log.Info().Str("user_id", userID).Str("type", string(typ)).Str("id", sub.ID).Msg("submission approved")
	t.publish(ctx, sub)
	return sub, nil
}

// ListForUser returns userID's submissions in insertion order.
func (t *Tracker) ListForUser(ctx context.Context, userID string) ([]Submission, error) {
	all, err := t.subs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []Submission{}
	for _, s := range all {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListAll returns every submission in insertion order.
func (t *Tracker) ListAll(ctx context.Context) ([]Submission, error) {
	return t.subs.List(ctx)
}

func (t *Tracker) publish(ctx context.Context, sub Submission) {
	if t.queue == nil {
		return
	}
	body, err := json.Marshal(sub)
	if err != nil {
		t.log.Error().Err(err).Str("id", sub.ID).Msg("encode submission event")
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := t.queue.Publish(pctx, queue.Message{Type: EventApproved, Body: body}); err != nil {
		t.log.Warn().Err(err).Str("id", sub.ID).Msg("queue publish failed")
	}
}

func sameDay(submittedAt, day string) bool {
	return len(submittedAt) >= len(day) && submittedAt[:len(day)] == day
}
