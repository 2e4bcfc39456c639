package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "presence:"

// PresenceStore tracks online marks in Redis with a TTL, refreshed by the
// socket layer's ping cycle. Expiry covers the crash case where SetOffline
// never runs.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &PresenceStore{client: client, ttl: ttl}
}

func (p *PresenceStore) SetOnline(ctx context.Context, userID uuid.UUID) error {
	return p.client.Set(ctx, presenceKeyPrefix+userID.String(), time.Now().Unix(), p.ttl).Err()
}

func (p *PresenceStore) Refresh(ctx context.Context, userID uuid.UUID) error {
	return p.client.Expire(ctx, presenceKeyPrefix+userID.String(), p.ttl).Err()
}

func (p *PresenceStore) SetOffline(ctx context.Context, userID uuid.UUID) error {
	return p.client.Del(ctx, presenceKeyPrefix+userID.String()).Err()
}

func (p *PresenceStore) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := p.client.Exists(ctx, presenceKeyPrefix+userID.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OnlineAmong reports which of ids currently hold an online mark.
func (p *PresenceStore) OnlineAmong(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	online := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return online, nil
	}
	pipe := p.client.Pipeline()
	cmds := make([]*goredis.IntCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Exists(ctx, presenceKeyPrefix+id.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	for i, id := range ids {
		online[id] = cmds[i].Val() > 0
	}
	return online, nil
}
