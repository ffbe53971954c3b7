package counter

import (
	"context"
	"strconv"

	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/cache"
)

const webhookOutcomesKey = "webhook:counters:outcomes"

// Outcome fields tracked in the Redis hash.
const (
	Received      = "received"
	Rejected      = "rejected"
	Credited      = "credited"
	Duplicate     = "duplicate"
	Skipped       = "skipped"
	Failed        = "failed"
	ForwardFailed = "forward_failed"
)

// AddOutcome increments the counter for a webhook processing outcome in Redis.
// Counting is best-effort; a cache outage must never affect webhook handling.
func AddOutcome(outcome string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookOutcomesKey, outcome, 1).Err()
}

// Snapshot returns the current outcome counters.
func Snapshot() (map[string]int64, error) {
	ctx := context.Background()
	raw, err := cache.GetClient().HGetAll(ctx, webhookOutcomesKey).Result()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(raw))
	for field, val := range raw {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		counts[field] = n
	}
	return counts, nil
}

// Reset clears all outcome counters.
func Reset() error {
	ctx := context.Background()
	return cache.GetClient().Del(ctx, webhookOutcomesKey).Err()
}
