package redis

import (
	"context"
	"crypto/tls"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCoPaintCache struct {
	client redis.UniversalClient
}

func NewRedisCoPaintCache(ctx context.Context, devMode bool, redisEndpoint string) (*RedisCoPaintCache, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
			// AWS elasticache endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return &RedisCoPaintCache{client: client}, nil
}

func (redisCache *RedisCoPaintCache) Publish(ctx context.Context, channel string, message []byte) error {
	if err := redisCache.client.Publish(ctx, channel, message).Err(); err != nil {
		return err
	}
	return nil
}

func (redisCache *RedisCoPaintCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		log.Printf("Pubsub channel closed: %s", channel)
		return err
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

// Keys carry hash tags so that a file's snapshot and presence entries land on
// the same cluster slot.
func buildSnapshotKey(fileId string) string {
	return "file:{" + fileId + "}:snapshot"
}

func buildPresenceKey(fileId string) string {
	return "file:{" + fileId + "}:online"
}

const snapshotTTL = 10 * time.Minute

// Presence is recomputed every poll, so a stale entry only survives a little
// longer than the poll interval.
const presenceTTL = 90 * time.Second

func (redisCache *RedisCoPaintCache) SetFileSnapshot(ctx context.Context, fileId string, snapshot []byte) error {
	return redisCache.client.Set(ctx, buildSnapshotKey(fileId), snapshot, snapshotTTL).Err()
}

func (redisCache *RedisCoPaintCache) GetFileSnapshot(ctx context.Context, fileId string) ([]byte, error) {
	val, err := redisCache.client.Get(ctx, buildSnapshotKey(fileId)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Not cached
		}
		return nil, err
	}
	return val, nil
}

func (redisCache *RedisCoPaintCache) InvalidateFiles(ctx context.Context, fileIds []string) error {
	if len(fileIds) == 0 {
		return nil
	}

	// Different files hash to different cluster slots, so delete per file.
	for _, fileId := range fileIds {
		if err := redisCache.client.Del(ctx, buildSnapshotKey(fileId), buildPresenceKey(fileId)).Err(); err != nil {
			return err
		}
	}

	return nil
}

func (redisCache *RedisCoPaintCache) SetOnlineUsers(ctx context.Context, fileId string, userIds []string) error {
	key := buildPresenceKey(fileId)

	pipe := redisCache.client.Pipeline()
	pipe.Del(ctx, key)
	if len(userIds) > 0 {
		members := make([]interface{}, len(userIds))
		for i, id := range userIds {
			members[i] = id
		}
		pipe.SAdd(ctx, key, members...)
	}
	pipe.Expire(ctx, key, presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (redisCache *RedisCoPaintCache) GetOnlineUsers(ctx context.Context, fileId string) ([]string, error) {
	members, err := redisCache.client.SMembers(ctx, buildPresenceKey(fileId)).Result()
	if err != nil {
		return nil, err
	}
	return members, nil
}
