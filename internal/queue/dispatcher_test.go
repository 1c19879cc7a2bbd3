package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flancer/internal/model"
)

type fakeSink struct {
	mu        sync.Mutex
	failFirst int // failures per event before success; negative fails forever
	attempts  map[string]int
	delivered []model.NotificationEvent
}

func newFakeSink(failFirst int) *fakeSink {
	return &fakeSink{failFirst: failFirst, attempts: map[string]int{}}
}

func (s *fakeSink) Send(_ context.Context, ev model.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[ev.ID]++
	if s.failFirst < 0 || s.attempts[ev.ID] <= s.failFirst {
		return errors.New("broker unavailable")
	}
	s.delivered = append(s.delivered, ev)
	return nil
}

func (s *fakeSink) snapshot() ([]model.NotificationEvent, map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempts := make(map[string]int, len(s.attempts))
	for k, v := range s.attempts {
		attempts[k] = v
	}
	return append([]model.NotificationEvent(nil), s.delivered...), attempts
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fastConfig() DispatcherConfig {
	return DispatcherConfig{Workers: 2, Buffer: 8, MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
}

func event(id string) model.NotificationEvent {
	return model.NotificationEvent{ID: id, UserID: 7, Type: model.EventNegotiationCountered}
}

func TestDispatcherDeliversQueuedEvents(t *testing.T) {
	sink := newFakeSink(0)
	d := NewDispatcher(sink, fastConfig(), quietLogger())
	d.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		d.Notify(event(id))
	}
	require.Eventually(t, func() bool {
		delivered, _ := sink.snapshot()
		return len(delivered) == 3
	}, time.Second, 5*time.Millisecond)
	d.Stop()
}

func TestDispatcherRetriesWithBackoff(t *testing.T) {
	sink := newFakeSink(2)
	d := NewDispatcher(sink, fastConfig(), quietLogger())
	d.Start(context.Background())

	d.Notify(event("retry-me"))
	require.Eventually(t, func() bool {
		delivered, _ := sink.snapshot()
		return len(delivered) == 1
	}, time.Second, 5*time.Millisecond)
	d.Stop()

	_, attempts := sink.snapshot()
	assert.Equal(t, 3, attempts["retry-me"])
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	sink := newFakeSink(-1)
	cfg := fastConfig()
	cfg.MaxAttempts = 2
	d := NewDispatcher(sink, cfg, quietLogger())
	d.Start(context.Background())

	d.Notify(event("doomed"))
	require.Eventually(t, func() bool {
		_, attempts := sink.snapshot()
		return attempts["doomed"] == 2
	}, time.Second, 5*time.Millisecond)
	d.Stop()

	delivered, attempts := sink.snapshot()
	assert.Empty(t, delivered)
	assert.Equal(t, 2, attempts["doomed"])
}

func TestNotifyNeverBlocks(t *testing.T) {
	sink := newFakeSink(0)
	cfg := fastConfig()
	cfg.Buffer = 1
	d := NewDispatcher(sink, cfg, quietLogger())

	done := make(chan struct{})
	go func() {
		d.Notify(event("kept"))
		d.Notify(event("dropped"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	assert.Equal(t, int64(1), d.Dropped())

	d.Start(context.Background())
	d.Stop()

	delivered, _ := sink.snapshot()
	require.Len(t, delivered, 1)
	assert.Equal(t, "kept", delivered[0].ID)
}

func TestDispatcherStopsOnContextCancel(t *testing.T) {
	d := NewDispatcher(newFakeSink(0), fastConfig(), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()
	d.Stop()
	d.Stop()
}

func TestStoreSinkSavesEvents(t *testing.T) {
	saver := &fakeSaver{}
	d := NewDispatcher(StoreSink{Store: saver}, fastConfig(), quietLogger())
	d.Start(context.Background())
	d.Notify(event("db-1"))
	d.Stop()

	assert.Equal(t, []string{"db-1"}, saver.ids())
}

func TestBackoffDuration(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, base},
		{1, base},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, max},
		{40, max},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BackoffDuration(tt.attempt, base, max), "attempt %d", tt.attempt)
	}
}

func TestDispatcherConfigDefaults(t *testing.T) {
	cfg := DispatcherConfig{}.withDefaults()
	assert.Equal(t, DefaultDispatcherConfig(), cfg)
}
