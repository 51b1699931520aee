// Package kafka publishes change records to a Kafka topic for drainers that consume from
// a broker instead of Redis streams. Messages are keyed by shard key so every mutation of
// one record lands on one partition, in order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/unkn0wn-root/dualstore/changelog"
	"github.com/unkn0wn-root/dualstore/codec"
)

// messageWriter is the subset of *kafka.Writer used by Sink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Sink struct {
	w       messageWriter
	codec   codec.Codec[changelog.Record]
	timeout time.Duration
}

var _ changelog.Sink = (*Sink)(nil)

type Config struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration                  // 0 => 5s
	Codec        codec.Codec[changelog.Record] // nil => JSON
}

func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("changelog/kafka: brokers and topic are required")
	}
	// keep metadata TTL low so broker address changes heal without restarts
	tr := &kafka.Transport{
		ClientID:    cfg.ClientID,
		MetadataTTL: 10 * time.Second,
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		Transport:    tr,
	}
	return newSink(w, cfg), nil
}

func newSink(w messageWriter, cfg Config) *Sink {
	s := &Sink{w: w, codec: cfg.Codec, timeout: cfg.WriteTimeout}
	if s.codec == nil {
		s.codec = changelog.JSONCodec
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	return s
}

func (s *Sink) Append(ctx context.Context, r changelog.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	value, err := s.codec.Encode(r)
	if err != nil {
		return fmt.Errorf("changelog/kafka: encode: %w", err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.w.WriteMessages(cctx, kafka.Message{
		Key:   []byte(r.ShardKey),
		Value: value,
		Headers: []kafka.Header{
			{Key: "entity", Value: []byte(r.Entity)},
			{Key: "op", Value: []byte(r.Op)},
			{Key: "record_id", Value: []byte(r.ID.String())},
		},
	})
}

func (s *Sink) Close() error { return s.w.Close() }
