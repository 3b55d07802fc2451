package stream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Broker is the broadcast-group collaborator: it fans published frames out to
// every subscriber of a topic. In-memory by default, Redis Streams when the
// deployment spans processes. No cross-subscriber ordering is guaranteed.
type Broker interface {
	Publisher() message.Publisher
	BuildSubscriber(ctx context.Context, topic, consumer string) (message.Subscriber, error)
	Close() error
}

type Settings struct {
	Enabled bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Addr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Group   string `env:"REDIS_GROUP" envDefault:"souk"`
}

// NewBroker picks the transport from settings.
func NewBroker(s Settings) (Broker, error) {
	if !s.Enabled {
		return newMemoryBroker(), nil
	}
	return newRedisBroker(s)
}

type memoryBroker struct {
	pubsub *gochannel.GoChannel
}

var _ Broker = &memoryBroker{}

func newMemoryBroker() *memoryBroker {
	return &memoryBroker{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, newWatermillLogger(log.Logger)),
	}
}

func (b *memoryBroker) Publisher() message.Publisher {
	if b == nil {
		return nil
	}
	return b.pubsub
}

func (b *memoryBroker) BuildSubscriber(_ context.Context, topic, _ string) (message.Subscriber, error) {
	if b == nil || b.pubsub == nil {
		return nil, errors.New("stream: broker is not initialized")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("stream: empty topic")
	}
	return b.pubsub, nil
}

func (b *memoryBroker) Close() error {
	if b == nil || b.pubsub == nil {
		return nil
	}
	return b.pubsub.Close()
}

type redisBroker struct {
	client *redis.Client
	group  string
	pub    message.Publisher
}

var _ Broker = &redisBroker{}

func newRedisBroker(s Settings) (*redisBroker, error) {
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, newWatermillLogger(log.Logger))
	if err != nil {
		return nil, errors.Wrap(err, "stream: build redis publisher")
	}
	group := strings.TrimSpace(s.Group)
	if group == "" {
		group = "souk"
	}
	return &redisBroker{client: client, group: group, pub: pub}, nil
}

func (b *redisBroker) Publisher() message.Publisher {
	if b == nil {
		return nil
	}
	return b.pub
}

func (b *redisBroker) BuildSubscriber(ctx context.Context, topic, consumer string) (message.Subscriber, error) {
	if b == nil || b.client == nil {
		return nil, errors.New("stream: broker is not initialized")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("stream: empty topic")
	}
	// Each subscriber gets its own consumer group so every joined member sees
	// every frame; a shared group would split delivery across members.
	group := b.group + "." + consumer
	if err := b.ensureGroupAtTail(ctx, topic, group); err != nil {
		return nil, err
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        b.client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: group,
		Consumer:      consumer,
	}, newWatermillLogger(log.Logger))
	if err != nil {
		return nil, errors.Wrap(err, "stream: build redis subscriber")
	}
	return sub, nil
}

// ensureGroupAtTail creates the consumer group at $ so a fresh subscriber does
// not replay the stream's full history; live traffic only.
func (b *redisBroker) ensureGroupAtTail(ctx context.Context, topic, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrap(err, "stream: create consumer group")
	}
	log.Info().Str("component", "stream").Str("topic", topic).Str("group", group).Msg("created consumer group at tail")
	return nil
}

func (b *redisBroker) Close() error {
	if b == nil {
		return nil
	}
	if b.pub != nil {
		_ = b.pub.Close()
	}
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
