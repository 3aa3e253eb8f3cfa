package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"convoyhub/config"
	"convoyhub/internal/logger"
	"convoyhub/internal/metrics"

	goredis "github.com/redis/go-redis/v9"
)

// Bus fans convoy events out to every server instance's hub.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Start(ctx context.Context) error
	Close() error
}

// NewBus returns the redis bus when an address is configured and the
// in-process bus otherwise.
func NewBus(cfg config.RedisConfig, hub *Hub, log *logger.Logger) (Bus, error) {
	if cfg.Addr == "" {
		return NewLocalBus(hub), nil
	}
	return NewRedisBus(cfg, hub, log)
}

type localBus struct {
	hub *Hub
}

func NewLocalBus(hub *Hub) Bus { return &localBus{hub: hub} }

func (b *localBus) Publish(_ context.Context, ev Event) error {
	b.hub.Deliver(ev)
	metrics.ObserveBusPublish(ev.Type, nil)
	return nil
}

func (b *localBus) Start(context.Context) error { return nil }
func (b *localBus) Close() error                { return nil }

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	hub     *Hub
}

func NewRedisBus(cfg config.RedisConfig, hub *Hub, log *logger.Logger) (Bus, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "convoy-events"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:     log.With("service", "RedisConvoyBus"),
		rdb:     rdb,
		channel: channel,
		hub:     hub,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = b.rdb.Publish(ctx, b.channel, raw).Err()
	metrics.ObserveBusPublish(ev.Type, err)
	return err
}

// Start subscribes to the channel and delivers every event to the local hub,
// including the ones this instance published.
func (b *redisBus) Start(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad convoy event payload", "error", err)
					continue
				}
				b.hub.Deliver(ev)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	return b.rdb.Close()
}
