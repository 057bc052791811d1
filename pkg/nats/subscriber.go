package nats

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// SubscriberConfig tunes the per-topic consumers.
type SubscriberConfig struct {
	// MaxInFlight caps how many messages a topic pulls ahead of its
	// workers. Topics not listed pull one at a time.
	MaxInFlight map[string]int
	// AckWait is the consumer's redelivery timeout; zero keeps the server
	// default of 30s.
	AckWait time.Duration
	// ProgressInterval defaults to a third of the effective AckWait.
	ProgressInterval time.Duration
}

const serverAckWait = 30 * time.Second

// JobSubscriber implements message.Subscriber with one durable,
// explicitly acked consumer per topic.
type JobSubscriber struct {
	js  jetstream.JetStream
	cfg SubscriberConfig

	mu       sync.Mutex
	consumes []jetstream.ConsumeContext
	closed   bool
}

func NewJobSubscriber(js jetstream.JetStream, cfg SubscriberConfig) *JobSubscriber {
	if cfg.ProgressInterval <= 0 {
		ackWait := cfg.AckWait
		if ackWait <= 0 {
			ackWait = serverAckWait
		}
		cfg.ProgressInterval = ackWait / 3
	}
	return &JobSubscriber{js: js, cfg: cfg}
}

func (s *JobSubscriber) maxInFlight(topic string) int {
	if n := s.cfg.MaxInFlight[topic]; n > 0 {
		return n
	}
	return 1
}

// durableName turns "jobs.content-analysis" into "jobs-content-analysis";
// durable names may not contain dots.
func durableName(topic string) string {
	return strings.ReplaceAll(topic, ".", "-")
}

func (s *JobSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("subscriber closed")
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName(topic),
		FilterSubject: topic,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.cfg.AckWait,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %s: %w", topic, err)
	}

	output := make(chan *message.Message)
	done := make(chan struct{})
	var sending sync.RWMutex
	stopped := false

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		sending.RLock()
		defer sending.RUnlock()
		if stopped {
			_ = msg.Nak()
			return
		}

		wm := toWatermill(msg)
		wm.SetContext(ctx)

		// The delivery is kept alive from the moment it arrives, including
		// while it waits for a free worker.
		ticker := time.NewTicker(s.cfg.ProgressInterval)
	handoff:
		for {
			select {
			case output <- wm:
				break handoff
			case <-done:
				ticker.Stop()
				_ = msg.Nak()
				return
			case <-ticker.C:
				_ = msg.InProgress()
			}
		}

		// The dispatcher acks or nacks after its retries; relay that to
		// JetStream.
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-wm.Acked():
					_ = msg.Ack()
					return
				case <-wm.Nacked():
					_ = msg.Nak()
					return
				case <-ticker.C:
					_ = msg.InProgress()
				}
			}
		}()
	}, jetstream.PullMaxMessages(s.maxInFlight(topic)))
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming %s: %w", topic, err)
	}
	s.consumes = append(s.consumes, cc)

	go func() {
		<-ctx.Done()
		cc.Stop()
		close(done)
		sending.Lock()
		stopped = true
		close(output)
		sending.Unlock()
	}()

	return output, nil
}

func (s *JobSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for _, cc := range s.consumes {
		cc.Stop()
	}
	return nil
}

func toWatermill(msg jetstream.Msg) *message.Message {
	headers := msg.Headers()
	id := headers.Get(nats.MsgIdHdr)

	wm := message.NewMessage(id, msg.Data())
	for key, values := range headers {
		if len(values) == 0 || !strings.HasPrefix(key, metadataPrefix) {
			continue
		}
		wm.Metadata.Set(strings.ToLower(strings.TrimPrefix(key, metadataPrefix)), values[0])
	}
	return wm
}
