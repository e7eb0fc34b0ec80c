package seq

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/ankit-kumarpr/lastchat/tools/errs"
)

// Allocator hands out the per-channel message sequence. Redis INCR is atomic
// across processes, so several gateway nodes can append to the same channel
// and still get a dense, strictly increasing seq.
type Allocator struct {
	Rdb   redis.Cmdable
	KeyFn func(channel string) string
}

func defaultKey(channel string) string { return "seq:chan:" + channel }

func New(rdb redis.Cmdable) *Allocator {
	return &Allocator{Rdb: rdb, KeyFn: defaultKey}
}

func (a *Allocator) key(channel string) string {
	if a.KeyFn != nil {
		return a.KeyFn(channel)
	}
	return defaultKey(channel)
}

// Next returns the next sequence number for the channel, starting at 1.
func (a *Allocator) Next(ctx context.Context, channel string) (int64, error) {
	n, err := a.Rdb.Incr(ctx, a.key(channel)).Result()
	if err != nil {
		return 0, errs.WrapMsg(err, "seq incr")
	}
	return n, nil
}
