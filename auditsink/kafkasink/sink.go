// Package kafkasink streams loginbridge audit events to a Kafka topic as JSON,
// keyed by attempt id so every event of one attempt lands on one partition.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/loginbridge"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultTopic receives audit events when no topic is configured.
const DefaultTopic = "loginbridge.audit"

var ErrNoBrokers = errors.New("kafkasink: no brokers configured")

// Writer is the subset of *kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Option func(*Sink)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWriteTimeout bounds each WriteMessages call.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Sink) {
		s.writeTimeout = d
	}
}

// Sink implements loginbridge.AuditSink.
type Sink struct {
	writer       Writer
	logger       *zap.Logger
	writeTimeout time.Duration
	failed       atomic.Uint64
}

var _ loginbridge.AuditSink = (*Sink)(nil)

// NewSink dials nothing up front; kafka-go connects on first write.
func NewSink(brokers []string, topic string, opts ...Option) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return NewSinkWithWriter(w, opts...), nil
}

// NewSinkWithWriter wraps an existing writer.
func NewSinkWithWriter(w Writer, opts ...Option) *Sink {
	s := &Sink{
		writer:       w,
		logger:       zap.NewNop(),
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.Named("kafkasink")
	return s
}

// Emit runs on the audit dispatcher goroutine. Write failures are logged
// and counted; they never reach the login path.
func (s *Sink) Emit(ctx context.Context, event loginbridge.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		s.logger.Error("audit event encode failed", zap.Error(err))
		return
	}

	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	msg := kafka.Message{
		Key:   []byte(event.AttemptID),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.failed.Add(1)
		s.logger.Warn("audit event publish failed",
			zap.String("event_type", event.EventType),
			zap.String("attempt_id", event.AttemptID),
			zap.Error(err),
		)
	}
}

// Failed reports events that could not be encoded or written.
func (s *Sink) Failed() uint64 {
	return s.failed.Load()
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
