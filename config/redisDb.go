package config

import (
	"context"
	"log"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil clients when redis is unset or unreachable. Redis only backs the
// config cache, the batch lock and rate limiting, so after maxAttempts the
// service carries on without it.
func ConnectRedis(ctx context.Context, addr string, maxAttempts int) (*redis.Client, *redislock.Client) {
	if addr == "" {
		log.Printf("REDIS_ADDRESS not set; running without redis")
		return nil, nil
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: "",
			DB:       0, // use default DB
			PoolSize: 100,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, addr)
			return client, redislock.New(client)
		}
		_ = client.Close()

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, addr, err, sleep)
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(sleep):
		}
	}
	log.Printf("giving up on redis at %s; cache and batch lock disabled", addr)
	return nil, nil
}
