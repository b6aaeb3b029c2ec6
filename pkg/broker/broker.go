// Package broker adapts NATS JetStream as the durable job transport between
// the enqueue service and the pipeline worker.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/quorumlabs/quorum/pkg/config"
	"github.com/quorumlabs/quorum/pkg/models"
)

// RunIDHeader duplicates the envelope's run_id as a message header so
// operators can trace messages without decoding bodies.
const RunIDHeader = "Quorum-Run-Id"

const fetchWait = 5 * time.Second

const redeliverDelay = 5 * time.Second

// ErrRedeliver marks a handler outcome that wants the message back later
// without ever counting as a failure: the message is nacked with a delay and
// never dead-lettered. Used when the run is transiently held by another
// worker.
var ErrRedeliver = errors.New("redeliver requested")

// Delivery carries broker-side metadata the claim protocol needs.
type Delivery struct {
	// NumDelivered counts delivery attempts, starting at 1.
	NumDelivered uint64
	// Redelivery is true when the broker has delivered this message before.
	Redelivery bool
}

// Handler processes one job envelope. A nil return acks the message; an
// error naks it (or dead-letters it at the delivery cap).
type Handler func(ctx context.Context, env models.JobEnvelope, d Delivery) error

// Broker owns the NATS connection, the stream, and the durable consumer.
type Broker struct {
	cfg    config.BrokerConfig
	logger *slog.Logger

	nc *nats.Conn
	js jetstream.JetStream

	mu       sync.Mutex
	consumer jetstream.Consumer
}

// Connect dials NATS and ensures the stream exists with both the work and
// dead-letter subjects bound.
func Connect(ctx context.Context, cfg config.BrokerConfig, logger *slog.Logger) (*Broker, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("quorum"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	b := &Broker{cfg: cfg, logger: logger, nc: nc, js: js}
	if err := b.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

func (b *Broker) ensureStream(ctx context.Context) error {
	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      b.cfg.StreamName,
		Subjects:  []string{b.cfg.Subject, b.cfg.DeadSubject},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", b.cfg.StreamName, err)
	}
	return nil
}

// Connected reports whether the underlying NATS connection is up.
func (b *Broker) Connected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Close drains and closes the NATS connection.
func (b *Broker) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// Publish enqueues a job envelope on the work subject.
func (b *Broker) Publish(ctx context.Context, env models.JobEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal job envelope: %w", err)
	}

	msg := &nats.Msg{
		Subject: b.cfg.Subject,
		Data:    data,
		Header:  nats.Header{RunIDHeader: []string{env.RunID.String()}},
	}
	if _, err := b.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	b.logger.Info("published job",
		"run_id", env.RunID,
		"run_type", env.RunType,
		"subject", b.cfg.Subject)
	return nil
}

// Consume runs the fetch loop until ctx is canceled, dispatching up to
// maxConcurrency handlers in parallel. It returns after all in-flight
// handlers finish.
func (b *Broker) Consume(ctx context.Context, maxConcurrency int, ackWait time.Duration, handler Handler) error {
	consumer, err := b.ensureConsumer(ctx, ackWait)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		default:
		}

		msgs, err := consumer.Fetch(maxConcurrency, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			b.logger.Debug("fetch timeout or error", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			sem <- struct{}{}
			wg.Add(1)
			go func(msg jetstream.Msg) {
				defer wg.Done()
				defer func() { <-sem }()
				b.handleMessage(ctx, msg, handler)
			}(msg)
		}

		if msgs.Error() != nil && msgs.Error() != context.DeadlineExceeded {
			b.logger.Warn("message fetch error", "error", msgs.Error())
		}
	}
}

func (b *Broker) ensureConsumer(ctx context.Context, ackWait time.Duration) (jetstream.Consumer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumer != nil {
		return b.consumer, nil
	}

	stream, err := b.js.Stream(ctx, b.cfg.StreamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", b.cfg.StreamName, err)
	}

	// MaxDeliver is one past the dead-letter cap so the final failed attempt
	// is still delivered to us and we can route it to the DLQ ourselves.
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       b.cfg.ConsumerName,
		FilterSubject: b.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    b.cfg.MaxDeliveries + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	b.consumer = consumer
	return consumer, nil
}

func (b *Broker) handleMessage(ctx context.Context, msg jetstream.Msg, handler Handler) {
	if ctx.Err() != nil {
		if err := msg.Nak(); err != nil {
			b.logger.Warn("failed to NAK message during shutdown", "error", err)
		}
		return
	}

	var env models.JobEnvelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		// A malformed envelope never becomes valid on redelivery.
		b.logger.Error("failed to parse job envelope, dead-lettering", "error", err)
		b.deadLetter(ctx, msg)
		return
	}

	delivery := Delivery{NumDelivered: 1}
	if meta, err := msg.Metadata(); err == nil {
		delivery.NumDelivered = meta.NumDelivered
		delivery.Redelivery = meta.NumDelivered > 1
	}

	if err := handler(ctx, env, delivery); err != nil {
		if errors.Is(err, ErrRedeliver) {
			b.logger.Info("job deferred, nacking with delay",
				"run_id", env.RunID,
				"deliveries", delivery.NumDelivered)
			if nakErr := msg.NakWithDelay(redeliverDelay); nakErr != nil {
				b.logger.Warn("failed to NAK message", "error", nakErr)
			}
			return
		}
		if delivery.NumDelivered >= uint64(b.cfg.MaxDeliveries) {
			b.logger.Error("delivery cap reached, dead-lettering",
				"run_id", env.RunID,
				"deliveries", delivery.NumDelivered,
				"error", err)
			b.deadLetter(ctx, msg)
			return
		}
		b.logger.Warn("job failed, nacking for redelivery",
			"run_id", env.RunID,
			"deliveries", delivery.NumDelivered,
			"error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			b.logger.Warn("failed to NAK message", "error", nakErr)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		b.logger.Warn("failed to ACK message", "run_id", env.RunID, "error", err)
	}
}

// deadLetter republishes the message body on the dead subject, then acks the
// original so the work subject stops redelivering it.
func (b *Broker) deadLetter(ctx context.Context, msg jetstream.Msg) {
	dead := &nats.Msg{
		Subject: b.cfg.DeadSubject,
		Data:    msg.Data(),
		Header:  msg.Headers(),
	}
	if _, err := b.js.PublishMsg(ctx, dead); err != nil {
		b.logger.Error("failed to publish to dead-letter subject", "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			b.logger.Warn("failed to NAK message", "error", nakErr)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		b.logger.Warn("failed to ACK dead-lettered message", "error", err)
	}
}
