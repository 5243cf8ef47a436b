package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/wx-ci/internal/kafka"
	"github.com/jmehdipour/wx-ci/internal/model"
	"go.uber.org/zap"
)

type fakeSource struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func newFakeSource(msgs ...kafka.Message) *fakeSource {
	s := &fakeSource{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		s.msgs <- m
	}
	return s
}

func (s *fakeSource) Fetch(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-s.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (s *fakeSource) Commit(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.committed = append(s.committed, m.Offset)
	}
	return nil
}

func (s *fakeSource) offsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.committed...)
}

type fakeSink struct {
	mu       sync.Mutex
	batches  [][]model.RunRecord
	err      error
	failures int // fail this many calls before succeeding
	calls    int
}

func (s *fakeSink) InsertBatch(_ context.Context, rs []model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	if s.failures > 0 {
		s.failures--
		return errors.New("db busy")
	}
	s.batches = append(s.batches, append([]model.RunRecord(nil), rs...))
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func event(t *testing.T, offset int64, id string) kafka.Message {
	t.Helper()
	m, err := kafka.EncodeRun(model.RunRecord{ActionID: id, Type: model.RunTypeUpload, State: model.StateDone})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	m.Offset = offset
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecorderBatchesAndCommits(t *testing.T) {
	src := newFakeSource(
		event(t, 1, "A"),
		kafka.Message{Offset: 2, Value: []byte("garbage")},
		event(t, 3, "B"),
		event(t, 4, "C"),
	)
	sink := &fakeSink{}

	r := NewRecorder(src, sink, zap.NewNop())
	r.BatchSize = 2
	r.BatchWait = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	waitFor(t, func() bool { return sink.count() == 3 })
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}

	got := map[int64]bool{}
	for _, o := range src.offsets() {
		got[o] = true
	}
	for _, o := range []int64{1, 2, 3, 4} {
		if !got[o] {
			t.Fatalf("offset %d not committed: %v", o, src.offsets())
		}
	}
}

func (s *fakeSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, b := range s.batches {
		for _, r := range b {
			out = append(out, r.ActionID)
		}
	}
	return out
}

func TestRecorderRetriesFailedBatchBeforeCommittingLaterOnes(t *testing.T) {
	src := newFakeSource(event(t, 1, "A"), event(t, 2, "B"))
	sink := &fakeSink{failures: 1}

	r := NewRecorder(src, sink, zap.NewNop())
	r.BatchSize = 1
	r.BatchWait = time.Hour
	r.RetryBackoff = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	waitFor(t, func() bool { return sink.count() == 2 })
	cancel()
	<-errCh

	if ids := sink.ids(); len(ids) != 2 || ids[0] != "A" || ids[1] != "B" {
		t.Fatalf("expected A then B to be saved, got %v", ids)
	}
	if offs := src.offsets(); len(offs) != 2 || offs[0] != 1 || offs[1] != 2 {
		t.Fatalf("expected offsets 1 then 2, got %v", offs)
	}
}

func TestRecorderDoesNotCommitFailedBatch(t *testing.T) {
	src := newFakeSource(
		event(t, 7, "A"),
		kafka.Message{Offset: 8, Value: []byte("garbage")},
		event(t, 9, "B"),
	)
	sink := &fakeSink{err: errors.New("db down")}

	r := NewRecorder(src, sink, zap.NewNop())
	r.BatchSize = 1
	r.RetryBackoff = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	waitFor(t, func() bool { return len(src.msgs) == 0 })
	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.calls >= 3
	})
	cancel()
	<-errCh

	if offs := src.offsets(); len(offs) != 0 {
		t.Fatalf("expected no commits, got %v", offs)
	}
}

func TestRecorderFlushesOnShutdown(t *testing.T) {
	src := newFakeSource(event(t, 1, "A"))
	sink := &fakeSink{}

	r := NewRecorder(src, sink, zap.NewNop())
	r.BatchSize = 10
	r.BatchWait = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	waitFor(t, func() bool { return len(src.msgs) == 0 })
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-errCh

	if sink.count() != 1 {
		t.Fatalf("expected shutdown flush, got %d", sink.count())
	}
}

func TestRecorderRequiresDeps(t *testing.T) {
	if err := NewRecorder(nil, nil, nil).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
