package push

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultRelayChannel - канал Redis Pub/Sub для live-событий
const DefaultRelayChannel = "push_events"

// Envelope - кадр, пересылаемый между экземплярами сервиса
type Envelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// Relay - межсерверная доставка кадров
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, handle func(Envelope)) error
}

// RedisRelay пересылает кадры через Redis Pub/Sub. Pub/Sub ничего не хранит:
// экземпляр, который не был подписан в момент публикации, кадр не получит.
type RedisRelay struct {
	redisClient *redis.Client
	channel     string
	logger      *logrus.Logger
}

// NewRedisRelay создает RedisRelay
func NewRedisRelay(client *redis.Client, channel string, logger *logrus.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{redisClient: client, channel: channel, logger: logger}
}

// Publish публикует кадр в канал
func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}
	if err := r.redisClient.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish relay envelope to Redis: %w", err)
	}
	return nil
}

// Subscribe читает канал до отмены контекста
func (r *RedisRelay) Subscribe(ctx context.Context, handle func(Envelope)) error {
	pubsub := r.redisClient.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Дожидаемся подтверждения подписки, чтобы ошибки подключения всплыли сразу
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, err := decodeEnvelope(msg.Payload)
			if err != nil {
				r.logger.WithError(err).Error("Failed to unmarshal relay envelope from Redis")
				continue
			}
			handle(env)
		}
	}
}

func decodeEnvelope(payload string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
