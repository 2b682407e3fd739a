package chat

import (
	"context"
	"time"

	sharedredis "peer-chat-app/backend/shared/redis"
)

const presenceKeyPrefix = "presence:"

// Presence marks participants online while they hold at least one live
// session. Advisory only: the user directory displays it, routing never
// consults it.
type Presence struct {
	client *sharedredis.RedisClient
	ttl    time.Duration
}

// NewPresence creates a presence store. The TTL covers the gap between
// heartbeats so crashed connections expire on their own.
func NewPresence(client *sharedredis.RedisClient, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Presence{client: client, ttl: ttl}
}

// SetOnline marks the participant online, refreshing the TTL.
func (p *Presence) SetOnline(ctx context.Context, id ParticipantID) error {
	return p.client.Set(ctx, presenceKeyPrefix+string(id), "1", p.ttl)
}

// SetOffline removes the participant's presence marker.
func (p *Presence) SetOffline(ctx context.Context, id ParticipantID) error {
	return p.client.Del(ctx, presenceKeyPrefix+string(id))
}

// IsOnline reports whether the participant has a live presence marker.
// Errors degrade to offline rather than failing the caller.
func (p *Presence) IsOnline(ctx context.Context, id ParticipantID) bool {
	online, err := p.client.Exists(ctx, presenceKeyPrefix+string(id))
	if err != nil {
		return false
	}
	return online
}
