package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/pkg/config"
)

// messageWriter is the subset of *kafka.Writer the shipper needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaShipper batches audit events onto a Kafka topic. Events are dropped
// rather than blocking callers when the queue is full.
type KafkaShipper struct {
	writer    messageWriter
	logger    *zap.Logger
	batchSize int
	flush     time.Duration

	ch      chan Event
	stop    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewKafkaShipper creates a shipper writing to the configured topic
func NewKafkaShipper(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaShipper, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
		WriteTimeout:           5 * time.Second,
	}
	return newKafkaShipper(w, cfg, logger), nil
}

func newKafkaShipper(w messageWriter, cfg config.KafkaConfig, logger *zap.Logger) *KafkaShipper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushIntervalMS <= 0 {
		cfg.FlushIntervalMS = 1000
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = cfg.BatchSize * 4
	}
	return &KafkaShipper{
		writer:    w,
		logger:    logger.Named("kafka-audit"),
		batchSize: cfg.BatchSize,
		flush:     time.Duration(cfg.FlushIntervalMS) * time.Millisecond,
		ch:        make(chan Event, cfg.QueueCapacity),
		stop:      make(chan struct{}),
	}
}

// Start begins shipping queued events in the background
func (s *KafkaShipper) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("Kafka audit shipper started")
}

// Stop flushes pending events and closes the writer
func (s *KafkaShipper) Stop() {
	close(s.stop)
	s.wg.Wait()
	if err := s.writer.Close(); err != nil {
		s.logger.Warn("Failed to close kafka writer", zap.Error(err))
	}
	if n := s.dropped.Load(); n > 0 {
		s.logger.Warn("Audit events dropped on backpressure", zap.Int64("count", n))
	}
	s.logger.Info("Kafka audit shipper stopped")
}

// Record enqueues an event without blocking
func (s *KafkaShipper) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to backpressure
func (s *KafkaShipper) Dropped() int64 {
	return s.dropped.Load()
}

func (s *KafkaShipper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flush)
	defer ticker.Stop()

	batch := make([]kafka.Message, 0, s.batchSize)
	for {
		select {
		case ev := <-s.ch:
			batch = append(batch, s.encode(ev))
			if len(batch) >= s.batchSize {
				batch = s.write(batch)
			}
		case <-ticker.C:
			batch = s.write(batch)
		case <-s.stop:
			for {
				select {
				case ev := <-s.ch:
					batch = append(batch, s.encode(ev))
				default:
					s.write(batch)
					return
				}
			}
		}
	}
}

func (s *KafkaShipper) encode(ev Event) kafka.Message {
	payload, _ := json.Marshal(ev)
	return kafka.Message{
		Key:   []byte(ev.DeviceFingerprint),
		Value: payload,
		Time:  ev.Timestamp,
	}
}

func (s *KafkaShipper) write(batch []kafka.Message) []kafka.Message {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, batch...); err != nil {
		s.logger.Error("Failed to ship audit events", zap.Int("count", len(batch)), zap.Error(err))
	}
	return batch[:0]
}
