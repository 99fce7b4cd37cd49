// Package ratelimit provides Redis-based rate limiting for the HTTP
// surface: friend requests (10/hour/user) and crypto-assisted HTTP
// endpoints (20/min/user). The relay's WebSocket events (send_message,
// send_file) are not rate-limited. Counters use
// INCR-then-EXPIRE-on-first-hit and fail open on any Redis error.
//
// Keys include the authenticated user_id, never the network address,
// so NAT'd users cannot starve each other.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Floor is one named rate-limit bucket: a per-user request count capped
// over a window.
type Floor struct {
	Name   string
	Limit  int
	Window time.Duration
}

// FriendRequestFloor caps friend-request creation at 10/hour/user.
var FriendRequestFloor = Floor{Name: "friend_request", Limit: 10, Window: time.Hour}

// CryptoHTTPFloor caps crypto-assisted HTTP endpoints, such as the
// public-key fetch, at 20/min/user.
var CryptoHTTPFloor = Floor{Name: "crypto_http", Limit: 20, Window: time.Minute}

// Limiter enforces Floors against Redis counters, keyed per user per
// floor. A nil redis client or any Redis error fails open: availability
// is preferred over strict enforcement when the rate limiter's own
// backing store is unavailable.
type Limiter struct {
	redis *redis.Client
}

// NewLimiter constructs a Limiter.
func NewLimiter(redisClient *redis.Client) *Limiter {
	return &Limiter{redis: redisClient}
}

// Allow checks the FriendRequestFloor for userID, implementing the
// friends.RequestLimiter interface consumed by POST /friends/request.
func (l *Limiter) Allow(userID int64) (bool, error) {
	return l.AllowFloor(context.Background(), FriendRequestFloor, userID)
}

// AllowCryptoHTTP checks the CryptoHTTPFloor for userID, consumed by the
// key-fetch endpoint (GET /users/{id}/keys).
func (l *Limiter) AllowCryptoHTTP(userID int64) (bool, error) {
	return l.AllowFloor(context.Background(), CryptoHTTPFloor, userID)
}

// AllowFloor checks an arbitrary Floor for userID.
func (l *Limiter) AllowFloor(ctx context.Context, floor Floor, userID int64) (bool, error) {
	if l == nil || l.redis == nil {
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:%s:%d", floor.Name, userID)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, nil
	}
	if count == 1 {
		l.redis.Expire(ctx, key, floor.Window)
	}
	return int(count) <= floor.Limit, nil
}

// Remaining reports how many requests remain in the current window for
// userID under floor.
func (l *Limiter) Remaining(ctx context.Context, floor Floor, userID int64) (int, error) {
	if l == nil || l.redis == nil {
		return floor.Limit, nil
	}

	key := fmt.Sprintf("ratelimit:%s:%d", floor.Name, userID)
	count, err := l.redis.Get(ctx, key).Int()
	if err == redis.Nil {
		return floor.Limit, nil
	}
	if err != nil {
		return floor.Limit, err
	}

	remaining := floor.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
