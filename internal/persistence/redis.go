package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helpdesk-kit/helpdesk/internal/config"
	"github.com/helpdesk-kit/helpdesk/internal/domain"
)

// Redis wraps the go-redis client and exposes the agent cache used for
// best-effort denormalization on ticket reads.
type Redis struct {
	Client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	ttl := cfg.AgentCacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{Client: client, ttl: ttl}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

const agentKeyPrefix = "agent:"

// GetAgent returns a cached agent, or false on miss or any cache failure.
func (r *Redis) GetAgent(ctx context.Context, id string) (*domain.Agent, bool) {
	if r == nil || r.Client == nil {
		return nil, false
	}
	raw, err := r.Client.Get(ctx, agentKeyPrefix+id).Bytes()
	if err != nil {
		return nil, false
	}
	var agent domain.Agent
	if err := json.Unmarshal(raw, &agent); err != nil {
		return nil, false
	}
	return &agent, true
}

// SetAgent stores an agent with the configured TTL. Failures are ignored;
// the next read falls through to the database.
func (r *Redis) SetAgent(ctx context.Context, agent *domain.Agent) {
	if r == nil || r.Client == nil || agent == nil {
		return
	}
	raw, err := json.Marshal(agent)
	if err != nil {
		return
	}
	_ = r.Client.Set(ctx, agentKeyPrefix+agent.ID, raw, r.ttl).Err()
}

// InvalidateAgent drops a cached agent after an administrative mutation.
func (r *Redis) InvalidateAgent(ctx context.Context, id string) {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Del(ctx, agentKeyPrefix+id).Err()
}
