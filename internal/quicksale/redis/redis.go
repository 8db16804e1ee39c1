package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/models"
)

const (
	highestKeyPrefix  = "sale_highest:"
	deadlineKeyPrefix = "sale_deadline:"

	// stored when the sale is known to have no bids
	noBidsMarker = "none"
)

type Redis struct {
	Client   *redis.Client
	Logger   *logger.Logger
	CacheTTL time.Duration
}

func NewRedis(client *redis.Client, log *logger.Logger, cacheTTL time.Duration) *Redis {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &Redis{
		Client:   client,
		Logger:   log,
		CacheTTL: cacheTTL,
	}
}

// raiseHighestScript stores ARGV[1] only if it is above the cached value, so out-of-order
// writers can never lower the cached highest bid.
//
//	KEYS[1] - sale_highest:<id>
//	ARGV[1] - amount in pesewas
//	ARGV[2] - ttl in milliseconds
//
// Returns 1 when the value was written, 0 otherwise.
var raiseHighestScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local incoming = tonumber(ARGV[1])
if current and current ~= 'none' and tonumber(current) >= incoming then
    return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// ---------------- HIGHEST BID CACHE ----------------

// GetHighest reports the cached highest amount. found is false on a cache miss; a cached
// "no bids" comes back as (nil, true, nil).
func (r *Redis) GetHighest(ctx context.Context, saleID string) (amount *models.Money, found bool, err error) {
	val, err := r.Client.Get(ctx, highestKeyPrefix+saleID).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if val == noBidsMarker {
		return nil, true, nil
	}

	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// corrupt entry, treat as a miss
		r.Client.Del(ctx, highestKeyPrefix+saleID)
		return nil, false, nil
	}
	m := models.Money(n)
	return &m, true, nil
}

// SetHighest records amount, or the "no bids" marker when amount is nil.
func (r *Redis) SetHighest(ctx context.Context, saleID string, amount *models.Money) error {
	key := highestKeyPrefix + saleID
	if amount == nil {
		// never overwrite a real amount with the marker
		return r.Client.SetNX(ctx, key, noBidsMarker, r.CacheTTL).Err()
	}
	return raiseHighestScript.Run(ctx, r.Client, []string{key},
		int64(*amount), r.CacheTTL.Milliseconds()).Err()
}

func (r *Redis) InvalidateHighest(ctx context.Context, saleID string) error {
	return r.Client.Del(ctx, highestKeyPrefix+saleID).Err()
}

// ---------------- DEADLINES ----------------

// ArmDeadline sets a key that expires when the sale ends. Its expiry notification drives auto-finalize.
func (r *Redis) ArmDeadline(ctx context.Context, saleID string, endsAt, now time.Time) error {
	ttl := endsAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.Client.Set(ctx, deadlineKeyPrefix+saleID, endsAt.UTC().Format(time.RFC3339), ttl).Err()
}

func (r *Redis) DisarmDeadline(ctx context.Context, saleID string) error {
	return r.Client.Del(ctx, deadlineKeyPrefix+saleID).Err()
}

// EnableExpiryNotifications turns on expired-key events. Managed Redis often forbids CONFIG,
// in which case this only logs and the sweeper is the sole closer.
func (r *Redis) EnableExpiryNotifications(ctx context.Context) {
	val, err := r.Client.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		r.Logger.Warn("REDIS", fmt.Sprintf("Failed to get keyspace config: %v", err))
		return
	}

	current := ""
	if len(val) >= 2 {
		current, _ = val[1].(string)
	}
	if strings.Contains(current, "E") && (strings.Contains(current, "x") || strings.Contains(current, "A")) {
		return
	}

	if err := r.Client.ConfigSet(ctx, "notify-keyspace-events", current+"Ex").Err(); err != nil {
		r.Logger.Warn("REDIS", fmt.Sprintf("Keyspace notifications not configured for expiry events: %v", err))
		return
	}
	r.Logger.Info("REDIS", "Enabled keyspace expiry notifications")
}

// SubscribeDeadlines calls onExpired with the sale id of every deadline key that expires.
// It blocks until ctx is cancelled.
func (r *Redis) SubscribeDeadlines(ctx context.Context, onExpired func(ctx context.Context, saleID string)) error {
	channel := fmt.Sprintf("__keyevent@%d__:expired", r.Client.Options().DB)
	pubsub := r.Client.PSubscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	r.Logger.Info("REDIS", fmt.Sprintf("Subscribed to %s", channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(msg.Payload, deadlineKeyPrefix) {
				continue
			}
			saleID := strings.TrimPrefix(msg.Payload, deadlineKeyPrefix)
			r.Logger.Info("DEADLINE", fmt.Sprintf("Deadline expired for sale: %s", saleID))
			onExpired(ctx, saleID)
		}
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
