package users

import (
	"context"
	"encoding/json"
	"time"

	"github.com/beunreal/story-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedDirectory keeps display info in Redis for ttl in front of next.
// Cache errors are logged and fall through to next.
type CachedDirectory struct {
	next   Directory
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewCachedDirectory(next Directory, rdb redis.Cmdable, prefix string, ttl time.Duration, logger *zap.Logger) *CachedDirectory {
	return &CachedDirectory{next: next, rdb: rdb, prefix: prefix, ttl: ttl, log: logger}
}

func (c *CachedDirectory) key(id string) string {
	return c.prefix + ":user:" + id
}

func (c *CachedDirectory) Lookup(ctx context.Context, ids []string) (map[string]domain.UserInfo, error) {
	ids = uniqueSorted(ids)
	out := make(map[string]domain.UserInfo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}

	missing := ids
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("user cache read failed", zap.Error(err))
	} else {
		missing = missing[:0:0]
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var u domain.UserInfo
			if err := json.Unmarshal([]byte(s), &u); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			out[ids[i]] = u
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.next.Lookup(ctx, missing)
	for _, id := range missing {
		u, ok := fetched[id]
		if !ok {
			continue
		}
		out[id] = u
		b, merr := json.Marshal(u)
		if merr != nil {
			continue
		}
		if serr := c.rdb.Set(ctx, c.key(id), b, c.ttl).Err(); serr != nil {
			c.log.Warn("user cache write failed", zap.String("user_id", id), zap.Error(serr))
		}
	}
	return out, err
}
