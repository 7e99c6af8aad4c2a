package redisstream

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Streams is the Redis command surface the provider uses. *redis.Client,
// *redis.ClusterClient and redis.UniversalClient satisfy it.
type Streams interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XTrimMaxLenApprox(ctx context.Context, key string, maxLen, limit int64) *redis.IntCmd
}

var _ Streams = (redis.UniversalClient)(nil)
