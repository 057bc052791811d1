package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JobPublisher implements message.Publisher on top of JetStream. Publish
// returns after the stream has acknowledged persistence.
type JobPublisher struct {
	js      jetstream.JetStream
	timeout time.Duration
}

func NewJobPublisher(js jetstream.JetStream) *JobPublisher {
	return &JobPublisher{js: js, timeout: 5 * time.Second}
}

func (p *JobPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		ctx := msg.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, p.timeout)

		out := nats.NewMsg(topic)
		out.Data = msg.Payload
		// Nats-Msg-Id lets the stream drop a republished duplicate.
		out.Header.Set(nats.MsgIdHdr, msg.UUID)
		for key, value := range msg.Metadata {
			out.Header.Set(metadataPrefix+key, value)
		}

		_, err := p.js.PublishMsg(ctx, out)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to publish job to subject %s: %w", topic, err)
		}
	}
	return nil
}

// Close is a no-op; the connection is owned by the caller.
func (p *JobPublisher) Close() error {
	return nil
}
