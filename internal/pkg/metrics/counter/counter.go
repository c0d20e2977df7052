// Package counter keeps running totals of webhook outcomes in a redis hash.
package counter

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const webhookOutcomesKey = "shop:counters:webhook_outcomes"

// Outcomes counts reconciled deliveries per outcome.
type Outcomes struct {
	rdb *redis.Client
	key string
}

func NewOutcomes(rdb *redis.Client) *Outcomes {
	return &Outcomes{rdb: rdb, key: webhookOutcomesKey}
}

// Add increments the counter for outcome.
func (o *Outcomes) Add(ctx context.Context, outcome string) error {
	if o == nil || o.rdb == nil {
		return nil
	}
	return o.rdb.HIncrBy(ctx, o.key, outcome, 1).Err()
}

// Snapshot returns the current totals. A missing hash is an empty snapshot.
func (o *Outcomes) Snapshot(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{}
	if o == nil || o.rdb == nil {
		return out, nil
	}

	data, err := o.rdb.HGetAll(ctx, o.key).Result()
	if errors.Is(err, redis.Nil) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for field, raw := range data {
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}

// Reset drops every counter.
func (o *Outcomes) Reset(ctx context.Context) error {
	if o == nil || o.rdb == nil {
		return nil
	}
	return o.rdb.Del(ctx, o.key).Err()
}
