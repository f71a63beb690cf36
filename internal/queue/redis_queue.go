package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/netsim/bgpsim/internal/igp"
	"github.com/netsim/bgpsim/internal/xlog"
)

// RedisQueue is an EventQueue backed by a Redis sorted set: ZADD with
// score = sampled delivery time, ZPOPMIN for earliest-first delivery.
// Built on github.com/go-redis/redis/v8: it gives the simulator a
// shared, external-clock queue backend so multiple lab-executor
// processes can observe the same event order
// (spec §4.4's pluggable-queue contract; §9 forbids interior references
// to routers, which a Redis-backed queue trivially satisfies since it
// only stores JSON blobs).
type RedisQueue struct {
	client *redis.Client
	key    string
	clock  float64
}

// redisEnvelope is the JSON-serializable form of an Event stored in the
// sorted set member.
type redisEnvelope struct {
	Priority float64      `json:"priority"`
	From     RouterID     `json:"from"`
	To       RouterID     `json:"to"`
	Kind     BgpEventKind `json:"kind"`
	Prefix   json.RawMessage `json:"prefix"`
	Route    json.RawMessage `json:"route,omitempty"`
}

// NewRedisQueue connects to addr and uses key as the sorted-set name.
// Distinct keys let multiple simulated networks share one Redis instance
// without cross-talk.
func NewRedisQueue(addr, key string) *RedisQueue {
	return &RedisQueue{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

// NewRedisQueueFromClient wraps an already-configured client, the way a
// caller managing its own connection pool would.
func NewRedisQueueFromClient(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Push(ev Event) {
	prefixJSON, err := json.Marshal(ev.Msg.Prefix)
	if err != nil {
		xlog.WithEvent("push").WithField("error", err).Warn("redis queue: failed to marshal prefix")
		return
	}
	var routeJSON json.RawMessage
	if ev.Msg.Route != nil {
		routeJSON, err = json.Marshal(ev.Msg.Route)
		if err != nil {
			xlog.WithEvent("push").WithField("error", err).Warn("redis queue: failed to marshal route")
			return
		}
	}
	env := redisEnvelope{
		Priority: ev.Priority,
		From:     ev.From,
		To:       ev.To,
		Kind:     ev.Msg.Kind,
		Prefix:   prefixJSON,
		Route:    routeJSON,
	}
	blob, err := json.Marshal(env)
	if err != nil {
		xlog.WithEvent("push").WithField("error", err).Warn("redis queue: failed to marshal envelope")
		return
	}
	ctx := context.Background()
	score := ev.Priority
	member := fmt.Sprintf("%d:%s", q.nextSeq(ctx), blob)
	if err := q.client.ZAdd(ctx, q.key, &redis.Z{Score: score, Member: member}).Err(); err != nil {
		xlog.WithEvent("push").WithField("error", err).Warn("redis queue: ZADD failed")
	}
}

// nextSeq produces a small monotonically increasing counter so members
// with equal score don't collide in the sorted set (Redis sorted sets
// dedupe by member, not just score).
func (q *RedisQueue) nextSeq(ctx context.Context) int64 {
	n, err := q.client.Incr(ctx, q.key+":seq").Result()
	if err != nil {
		return 0
	}
	return n
}

func (q *RedisQueue) Pop() (Event, bool) {
	ctx := context.Background()
	res, err := q.client.ZPopMin(ctx, q.key, 1).Result()
	if err != nil || len(res) == 0 {
		return Event{}, false
	}
	member, _ := res[0].Member.(string)
	var seq int64
	var blob string
	if _, err := fmt.Sscanf(member, "%d:", &seq); err == nil {
		idx := indexOfColon(member)
		if idx >= 0 {
			blob = member[idx+1:]
		}
	}
	if blob == "" {
		return Event{}, false
	}
	var env redisEnvelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		xlog.WithEvent("pop").WithField("error", err).Warn("redis queue: failed to unmarshal envelope")
		return Event{}, false
	}
	q.clock = res[0].Score
	return Event{
		Priority: res[0].Score,
		From:     env.From,
		To:       env.To,
		Msg: BgpEvent{
			Kind:   env.Kind,
			Prefix: env.Prefix,
			Route:  env.Route,
		},
	}, true
}

func indexOfColon(s string) int {
	for i, c := range s {
		if c == ':' {
			return i
		}
	}
	return -1
}

func (q *RedisQueue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *RedisQueue) Clear() {
	ctx := context.Background()
	q.client.Del(ctx, q.key, q.key+":seq")
}

func (q *RedisQueue) Len() int {
	ctx := context.Background()
	n, err := q.client.ZCard(ctx, q.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// UpdateParams is a no-op for RedisQueue: priority/delivery time is
// computed by the caller before Push, not recalibrated internally.
func (q *RedisQueue) UpdateParams(*igp.Graph) {}
