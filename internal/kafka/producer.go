package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/wx-ci/internal/model"
	"github.com/segmentio/kafka-go"
)

var ErrNoBrokers = errors.New("kafka: no brokers configured")

// Producer publishes run records keyed by action id.
type Producer struct {
	w *kafka.Writer
}

func NewProducerFromConfig(c Config) (*Producer, error) {
	if !c.Enabled() {
		return nil, ErrNoBrokers
	}
	wt := c.WriteTimeout
	if wt <= 0 {
		wt = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           wt,
		AllowAutoTopicCreation: true,
	}
	return &Producer{w: w}, nil
}

// EncodeRun is the wire form of a run event.
func EncodeRun(rec model.RunRecord) (Message, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return Message{}, fmt.Errorf("encode run %s: %w", rec.ActionID, err)
	}
	return Message{
		Key:   []byte(rec.ActionID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(rec.Type.String())},
		},
		Time: rec.FinishedAt,
	}, nil
}

// DecodeRun parses a run event; the action id is mandatory.
func DecodeRun(m Message) (model.RunRecord, error) {
	var rec model.RunRecord
	if err := json.Unmarshal(m.Value, &rec); err != nil {
		return model.RunRecord{}, fmt.Errorf("decode run: %w", err)
	}
	if rec.ActionID == "" {
		return model.RunRecord{}, errors.New("decode run: missing action_id")
	}
	return rec, nil
}

func (p *Producer) PublishRun(ctx context.Context, rec model.RunRecord) error {
	m, err := EncodeRun(rec)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, m); err != nil {
		return fmt.Errorf("publish run %s: %w", rec.ActionID, err)
	}
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }
