package notify

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"actionflow/internal/action"
)

type memSink struct {
	mu   sync.Mutex
	recv []Notification
	err  error
}

func (m *memSink) Name() string { return "mem" }

func (m *memSink) Send(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recv = append(m.recv, n)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFansOutToSinks(t *testing.T) {
	svc := New(Config{RatePerSec: 100}, discard())
	a, b := &memSink{}, &memSink{}
	svc.AddSink(a)
	svc.AddSink(b)

	svc.Notify(context.Background(), Notification{Title: "hello", Priority: action.PriorityHigh})

	if len(a.recv) != 1 || len(b.recv) != 1 {
		t.Fatalf("fanout: a=%d b=%d", len(a.recv), len(b.recv))
	}
	if a.recv[0].Timestamp.IsZero() {
		t.Fatal("notify must stamp the timestamp")
	}
}

func TestNotifyRateLimitDrops(t *testing.T) {
	svc := New(Config{RatePerSec: 1}, discard())
	sink := &memSink{}
	svc.AddSink(sink)

	for i := 0; i < 10; i++ {
		svc.Notify(context.Background(), Notification{Title: strconv.Itoa(i)})
	}
	if len(sink.recv) >= 10 {
		t.Fatalf("rate limit never dropped anything: %d", len(sink.recv))
	}
	if len(sink.recv) == 0 {
		t.Fatal("burst should allow at least one delivery")
	}
}

func TestHistoryNewestFirstAndBounded(t *testing.T) {
	svc := New(Config{RatePerSec: 1000, HistorySize: 5}, discard())

	for i := 0; i < 8; i++ {
		svc.Notify(context.Background(), Notification{Title: strconv.Itoa(i)})
	}

	hist := svc.History()
	if len(hist) != 5 {
		t.Fatalf("history len = %d", len(hist))
	}
	if hist[0].Title != "7" || hist[4].Title != "3" {
		t.Fatalf("order: %s .. %s", hist[0].Title, hist[4].Title)
	}
}
