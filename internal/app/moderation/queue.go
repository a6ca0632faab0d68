// Package moderation keeps the message moderation queue: participant
// submissions wait in a FIFO until an editor approves or rejects them.
package moderation

import (
	"errors"
	"slices"
	"time"

	"github.com/dkeye/OnAir/internal/domain"
)

var ErrUnknownMessage = errors.New("unknown message id")

// Queue is owned by the session loop and is not safe for concurrent use.
type Queue struct {
	lastID    int64
	pending   []*domain.Message
	published []*domain.Message
	now       func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// WithClock replaces the time source used for SubmittedAt.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Submit validates and appends a participant message. An invalid submission
// does not consume an id.
func (q *Queue) Submit(name, text string) (domain.Message, error) {
	m, err := domain.NewMessage(q.lastID+1, name, text, q.now())
	if err != nil {
		return domain.Message{}, err
	}
	q.lastID = m.ID
	q.pending = append(q.pending, m)
	return *m, nil
}

// Approve moves a pending message to the head of the published list.
func (q *Queue) Approve(id int64) (domain.Message, error) {
	m, ok := q.take(id)
	if !ok {
		return domain.Message{}, ErrUnknownMessage
	}
	m.Status = domain.MessageApproved
	q.published = slices.Insert(q.published, 0, m)
	return *m, nil
}

// Reject drops a pending message. Rejected messages are not retained.
func (q *Queue) Reject(id int64) (domain.Message, error) {
	m, ok := q.take(id)
	if !ok {
		return domain.Message{}, ErrUnknownMessage
	}
	m.Status = domain.MessageRejected
	return *m, nil
}

// EditorMessage builds a message from the moderator. It takes the next id
// but is kept in neither list.
func (q *Queue) EditorMessage(text string) (domain.Message, error) {
	m, err := domain.NewMessage(q.lastID+1, domain.ModeratorName, text, q.now())
	if err != nil {
		return domain.Message{}, err
	}
	q.lastID = m.ID
	m.Status = domain.MessageApproved
	return *m, nil
}

// Snapshot returns copies of both lists. Neither slice is nil.
func (q *Queue) Snapshot() (queue, published []domain.Message) {
	return copyAll(q.pending), copyAll(q.published)
}

func (q *Queue) Len() int { return len(q.pending) }

func (q *Queue) take(id int64) (*domain.Message, bool) {
	i := slices.IndexFunc(q.pending, func(m *domain.Message) bool { return m.ID == id })
	if i < 0 {
		return nil, false
	}
	m := q.pending[i]
	q.pending = slices.Delete(q.pending, i, i+1)
	return m, true
}

func copyAll(in []*domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(in))
	for _, m := range in {
		out = append(out, *m)
	}
	return out
}
