package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/model"
)

const (
	outboxSize   = 256
	redisTimeout = 3 * time.Second
)

// RedisBus delivers events locally and mirrors them to a Redis pub/sub
// channel. The last run report per profile is kept under a Redis key so it
// survives restarts.
type RedisBus struct {
	*MemoryBus
	rdb     *redis.Client
	profile string
	outbox  chan model.RunEvent
	log     zerolog.Logger
}

// NewRedisBus creates a RedisBus. Start must run for events to reach Redis.
func NewRedisBus(rdb *redis.Client, profile string, log zerolog.Logger) *RedisBus {
	return &RedisBus{
		MemoryBus: NewMemoryBus(),
		rdb:       rdb,
		profile:   profile,
		outbox:    make(chan model.RunEvent, outboxSize),
		log:       log.With().Str("component", "event_bus").Logger(),
	}
}

// Publish delivers ev locally and queues it for Redis. When the outbox is
// full the Redis copy is dropped.
func (b *RedisBus) Publish(ev model.RunEvent) {
	b.MemoryBus.Publish(ev)
	select {
	case b.outbox <- ev:
	default:
		b.log.Warn().Str("event", string(ev.Type)).Msg("Event outbox full, dropping Redis copy")
	}
}

// Start drains the outbox until ctx is cancelled.
func (b *RedisBus) Start(ctx context.Context) {
	b.log.Info().Str("channel", config.WorkerKey.RunEventsChannel).Msg("Event mirror started")
	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("Event mirror stopped")
			return
		case ev := <-b.outbox:
			if err := b.mirror(ctx, ev); err != nil {
				b.log.Error().Err(err).Str("event", string(ev.Type)).Msg("Failed to mirror event")
			}
		}
	}
}

func (b *RedisBus) mirror(ctx context.Context, ev model.RunEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	pipe := b.rdb.TxPipeline()
	pipe.Publish(ctx, config.WorkerKey.RunEventsChannel, payload)
	if ev.Type == model.EventRunFinished && ev.Report != nil {
		report, err := json.Marshal(ev.Report)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		pipe.Set(ctx, config.CacheKey.RunReportKey(b.profile), report, 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// LastReport returns the report of the most recent finished run, or nil when
// none was stored.
func (b *RedisBus) LastReport(ctx context.Context) (*model.RunReport, error) {
	raw, err := b.rdb.Get(ctx, config.CacheKey.RunReportKey(b.profile)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last report: %w", err)
	}
	var rep model.RunReport
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("decode last report: %w", err)
	}
	return &rep, nil
}
