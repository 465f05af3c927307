package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestBoardDrain(t *testing.T) {
	b := NewBoard(time.Minute)
	ctx := context.Background()
	b.Notify(ctx, New(Success, "added"))
	b.Notify(ctx, New(Error, "empty cart"))

	got := b.Drain()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Message != "added" || got[1].Level != Error {
		t.Fatalf("unexpected order or content: %+v", got)
	}
	if left := b.Drain(); len(left) != 0 {
		t.Fatalf("expected board to be empty after drain, got %d", len(left))
	}
}

func TestBoardAutoDismiss(t *testing.T) {
	b := NewBoard(20 * time.Millisecond)
	b.Notify(context.Background(), New(Info, "removed"))
	if len(b.Pending()) != 1 {
		t.Fatalf("expected toast to be pending right away")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(b.Pending()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("toast was not dismissed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMultiAndLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.Out = &buf
	log.Formatter = &logrus.JSONFormatter{}

	var seen []Notification
	m := Multi{
		LogNotifier{Log: log},
		Func(func(ctx context.Context, n Notification) { seen = append(seen, n) }),
	}
	m.Notify(context.Background(), New(Error, "passwords do not match"))

	if len(seen) != 1 {
		t.Fatalf("expected func notifier to be called once, got %d", len(seen))
	}
	out := buf.String()
	if !strings.Contains(out, "passwords do not match") || !strings.Contains(out, `"level":"warning"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}
