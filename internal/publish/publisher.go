package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/mechanic-dash/internal/link"
	"github.com/shaunagostinho/mechanic-dash/internal/monitor"
	"github.com/shaunagostinho/mechanic-dash/internal/record"
)

// Message kinds.
const (
	KindSample = "sample"
	KindStatus = "status"
)

// Message is the CBOR payload published for every accepted sample and every
// link status change.
type Message struct {
	Kind   string         `cbor:"kind"`
	Stamp  int64          `cbor:"stamp"` // Unix ms
	Sample *record.Sample `cbor:"sample,omitempty"`
	Phase  string         `cbor:"phase,omitempty"`
	Peer   string         `cbor:"peer,omitempty"`
	Params *record.Flags  `cbor:"params,omitempty"`
	Error  string         `cbor:"error,omitempty"`
}

// redisPublisher is the part of *redis.Client the publisher uses.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher forwards samples and status changes to a Redis channel. Apply
// and OnStatus never block: they enqueue, and Run does the network I/O on
// its own goroutine. A full queue drops the message.
type Publisher struct {
	client  redisPublisher
	channel string
	queue   chan Message
	log     logrus.FieldLogger
	now     func() time.Time
}

// Config holds publisher settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Buffer   int
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Publisher, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return newPublisher(client, cfg.Channel, cfg.Buffer, log), client, nil
}

func newPublisher(client redisPublisher, channel string, buffer int, log logrus.FieldLogger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		client:  client,
		channel: channel,
		queue:   make(chan Message, buffer),
		log:     log.WithField("component", "publish"),
		now:     time.Now,
	}
}

// Apply implements link.Sink.
func (p *Publisher) Apply(s record.Sample) {
	p.enqueue(Message{Kind: KindSample, Stamp: p.now().UnixMilli(), Sample: &s})
}

// OnStatus is a link.Machine status observer.
func (p *Publisher) OnStatus(s link.Status) {
	m := Message{
		Kind:   KindStatus,
		Stamp:  p.now().UnixMilli(),
		Phase:  s.Phase.String(),
		Peer:   s.Peer,
		Params: s.Params,
	}
	if s.Err != nil {
		m.Error = s.Err.Error()
	}
	p.enqueue(m)
}

func (p *Publisher) enqueue(m Message) {
	select {
	case p.queue <- m:
	default:
		monitor.PublishDropped.Inc()
	}
}

// Run publishes queued messages until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.queue:
			if err := p.publish(ctx, m); err != nil && ctx.Err() == nil {
				p.log.WithError(err).Warn("publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, m Message) error {
	payload, err := cbor.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Kind, err)
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Decode parses a published payload.
func Decode(payload []byte) (Message, error) {
	var m Message
	if err := cbor.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}
