package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jmehdipour/wx-ci/internal/kafka"
	"github.com/jmehdipour/wx-ci/internal/model"
	"go.uber.org/zap"
)

// Source is the part of the kafka consumer the recorder needs.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Sink persists a batch of runs; inserts must be idempotent on action id.
type Sink interface {
	InsertBatch(ctx context.Context, rs []model.RunRecord) error
}

// Recorder:
// - fetches run events from Kafka,
// - batches them by size/time into the history store,
// - commits offsets only after the batch was written (at-least-once).
//
// A failed batch is retried with backoff and blocks everything behind it: a
// commit of a later offset would also cover the failed one.
type Recorder struct {
	Source Source
	Sink   Sink
	Logger *zap.Logger

	BatchSize    int
	BatchWait    time.Duration
	RetryBackoff time.Duration // first retry delay, doubled up to MaxBackoff
	MaxBackoff   time.Duration
}

func NewRecorder(src Source, sink Sink, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		Source:       src,
		Sink:         sink,
		Logger:       logger,
		BatchSize:    100,
		BatchWait:    2 * time.Second,
		RetryBackoff: 200 * time.Millisecond,
		MaxBackoff:   10 * time.Second,
	}
}

// item is one fetched message; rec is nil for poison messages, which are
// committed in order with the batch they arrived in.
type item struct {
	rec *model.RunRecord
	msg kafka.Message
}

// Run blocks until ctx is cancelled and the last batch is flushed.
func (w *Recorder) Run(ctx context.Context) error {
	if w.Source == nil || w.Sink == nil {
		return errors.New("recorder: source and sink are required")
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 100
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 2 * time.Second
	}
	if w.RetryBackoff <= 0 {
		w.RetryBackoff = 200 * time.Millisecond
	}
	if w.MaxBackoff < w.RetryBackoff {
		w.MaxBackoff = w.RetryBackoff
	}

	items := make(chan item, w.BatchSize*2)
	done := make(chan struct{})

	go func() {
		defer close(done)
		w.runBatchWriter(ctx, items)
	}()

	w.fetchLoop(ctx, items)
	close(items)
	<-done
	return nil
}

func (w *Recorder) fetchLoop(ctx context.Context, out chan<- item) {
	for {
		m, err := w.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Logger.Warn("kafka fetch failed", zap.Error(err))
			if !sleep(ctx, 200*time.Millisecond) {
				return
			}
			continue
		}

		it := item{msg: m}
		if rec, err := kafka.DecodeRun(m); err != nil {
			w.Logger.Warn("skip bad run event", zap.Int64("offset", m.Offset), zap.Error(err))
		} else {
			it.rec = &rec
		}

		select {
		case out <- it:
		case <-ctx.Done():
			return
		}
	}
}

// runBatchWriter does size/time-based flushes into the sink.
func (w *Recorder) runBatchWriter(ctx context.Context, in <-chan item) {
	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	var buf []item
	// set once a batch could not be written; nothing is committed afterwards
	// so the failed events are redelivered after a restart
	stuck := false

	flush := func(final bool) {
		if len(buf) == 0 || stuck {
			buf = buf[:0]
			return
		}

		recs := make([]model.RunRecord, 0, len(buf))
		msgs := make([]kafka.Message, 0, len(buf))
		for _, it := range buf {
			if it.rec != nil {
				recs = append(recs, *it.rec)
			}
			msgs = append(msgs, it.msg)
		}

		if !w.write(ctx, recs, final) {
			stuck = true
			buf = buf[:0]
			return
		}

		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := w.Source.Commit(cctx, msgs...); err != nil {
			w.Logger.Warn("kafka commit failed", zap.Error(err))
		}

		w.Logger.Info("recorder flushed", zap.Int("runs", len(recs)), zap.Int("messages", len(msgs)))
		buf = buf[:0]
	}

	for {
		select {
		case it, ok := <-in:
			if !ok {
				flush(true)
				return
			}
			buf = append(buf, it)
			if len(buf) >= w.BatchSize {
				flush(false)
			}

		case <-tick.C:
			flush(false)
		}
	}
}

// write inserts recs, retrying with backoff until it succeeds or ctx ends.
// The final flush at shutdown gets a single bounded attempt.
func (w *Recorder) write(ctx context.Context, recs []model.RunRecord, final bool) bool {
	if len(recs) == 0 {
		return true
	}

	backoff := w.RetryBackoff
	for {
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		err := w.Sink.InsertBatch(ictx, recs)
		cancel()
		if err == nil {
			return true
		}

		w.Logger.Error("history batch insert failed", zap.Int("runs", len(recs)), zap.Duration("retry_in", backoff), zap.Error(err))
		if final || !sleep(ctx, backoff) {
			return false
		}
		backoff *= 2
		if backoff > w.MaxBackoff {
			backoff = w.MaxBackoff
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
