// Package notify carries transient user-facing messages ("toasts").
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Level string

const (
	Success Level = "success"
	Info    Level = "info"
	Error   Level = "error"
)

type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func New(level Level, msg string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   msg,
		CreatedAt: time.Now(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, n Notification)

func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, x := range m {
		x.Notify(ctx, n)
	}
}

// LogNotifier writes every notification to the log. Errors are logged at
// warn level since they are user mistakes, not system faults.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	entry := l.Log.WithFields(logrus.Fields{
		"notification.id":    n.ID,
		"notification.level": string(n.Level),
	})
	if n.Level == Error {
		entry.Warn(n.Message)
		return
	}
	entry.Info(n.Message)
}

// Board holds pending toasts for one visitor. Each toast drops off by
// itself after the dismiss delay; Drain hands over whatever is left.
type Board struct {
	mu      sync.Mutex
	pending []Notification
	dismiss time.Duration
}

const DefaultDismissAfter = 3 * time.Second

func NewBoard(dismissAfter time.Duration) *Board {
	if dismissAfter <= 0 {
		dismissAfter = DefaultDismissAfter
	}
	return &Board{dismiss: dismissAfter}
}

func (b *Board) Notify(ctx context.Context, n Notification) {
	b.mu.Lock()
	b.pending = append(b.pending, n)
	b.mu.Unlock()

	id := n.ID
	time.AfterFunc(b.dismiss, func() { b.remove(id) })
}

func (b *Board) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.pending {
		if n.ID == id {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return
		}
	}
}

// Pending returns a copy of the toasts still on screen.
func (b *Board) Pending() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.pending))
	copy(out, b.pending)
	return out
}

// Drain returns the pending toasts and clears the board.
func (b *Board) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}
