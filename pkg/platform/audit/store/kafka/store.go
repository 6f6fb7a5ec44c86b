// Package kafka forwards audit events to a Kafka topic. Consecutive produce
// failures open a circuit breaker; while open, events go to the fallback
// store and the broker is probed periodically.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "semear/pkg/platform/audit"
	"semear/pkg/platform/circuit"
)

const defaultProbeInterval = 30 * time.Second

// Producer is the subset of *kgo.Client the store needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Store struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	fallback audit.Store
	logger   *slog.Logger

	probeInterval time.Duration
	clock         func() time.Time

	mu        sync.Mutex
	lastProbe time.Time
}

type Option func(*Store)

// WithFallback sets where events go while the broker is failing.
func WithFallback(fallback audit.Store) Option {
	return func(s *Store) {
		s.fallback = fallback
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) {
		if b != nil {
			s.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithProbeInterval sets how often an open circuit lets one event through.
func WithProbeInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.probeInterval = d
		}
	}
}

func withClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

func New(producer Producer, topic string, opts ...Option) *Store {
	s := &Store{
		producer:      producer,
		topic:         topic,
		breaker:       circuit.New("kafka-audit"),
		logger:        slog.Default(),
		probeInterval: defaultProbeInterval,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if s.breaker.IsOpen() && !s.probeDue() {
		return s.degrade(ctx, event, nil)
	}

	if err := s.produce(ctx, event); err != nil {
		_, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "audit broker circuit opened", "topic", s.topic, "error", err)
		}
		return s.degrade(ctx, event, err)
	}

	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "audit broker circuit closed", "topic", s.topic)
	}
	return nil
}

func (s *Store) produce(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *Store) degrade(ctx context.Context, event audit.Event, cause error) error {
	if s.fallback == nil {
		if cause == nil {
			cause = errors.New("audit broker circuit open")
		}
		return cause
	}
	return s.fallback.Append(ctx, event)
}

func (s *Store) probeDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if now.Sub(s.lastProbe) < s.probeInterval {
		return false
	}
	s.lastProbe = now
	return true
}

// EnsureTopic creates topic if it does not exist yet.
func EnsureTopic(ctx context.Context, admin *kadm.Client, topic string, partitions int32, replication int16) error {
	resp, err := admin.CreateTopics(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}
