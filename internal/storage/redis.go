package storage

import (
	"context"
	"fmt"
	"time"

	"bizassist/pkg"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// DefaultConversationTTL is how long an idle conversation is kept in Redis
const DefaultConversationTTL = 7 * 24 * time.Hour

// NewRedisClient parses a redis:// URL and checks the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisConversationStore keeps each conversation as a metadata hash, a turn
// list and an appointment list. Appends only add data, so one MULTI makes them atomic.
type RedisConversationStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisConversationStore creates a store; ttl <= 0 uses DefaultConversationTTL
func NewRedisConversationStore(client *redis.Client, ttl time.Duration) *RedisConversationStore {
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &RedisConversationStore{client: client, ttl: ttl}
}

func metaKey(id string) string         { return fmt.Sprintf("conversation:%s:meta", id) }
func turnsKey(id string) string        { return fmt.Sprintf("conversation:%s:turns", id) }
func appointmentsKey(id string) string { return fmt.Sprintf("conversation:%s:appointments", id) }

// Get loads a conversation
func (r *RedisConversationStore) Get(ctx context.Context, id string) (*pkg.ConversationState, error) {
	var (
		meta  *redis.MapStringStringCmd
		turns *redis.StringSliceCmd
		appts *redis.StringSliceCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, metaKey(id))
		turns = pipe.LRange(ctx, turnsKey(id), 0, -1)
		appts = pipe.LRange(ctx, appointmentsKey(id), 0, -1)
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	fields := meta.Val()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	state := &pkg.ConversationState{
		ID:             id,
		BusinessID:     fields["business_id"],
		UserName:       fields["user_name"],
		LastIntent:     pkg.Intent(fields["last_intent"]),
		AppointmentIDs: appts.Val(),
	}
	state.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	state.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])

	state.Turns = make([]pkg.Turn, 0, len(turns.Val()))
	for _, raw := range turns.Val() {
		var t pkg.Turn
		if err := sonic.UnmarshalString(raw, &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn of %s: %w", id, err)
		}
		state.Turns = append(state.Turns, t)
	}
	return state, nil
}

// Create stores a new conversation; the id field acts as the existence guard
func (r *RedisConversationStore) Create(ctx context.Context, state *pkg.ConversationState) error {
	if state.ID == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}

	created, err := r.client.HSetNX(ctx, metaKey(state.ID), "conversation_id", state.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrConversationExists, state.ID)
	}

	now := time.Now().UTC()
	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	turns, err := encodeTurns(state.Turns)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, metaKey(state.ID), map[string]any{
			"business_id": state.BusinessID,
			"user_name":   state.UserName,
			"last_intent": string(state.LastIntent),
			"created_at":  createdAt.Format(time.RFC3339Nano),
			"updated_at":  now.Format(time.RFC3339Nano),
		})
		if len(turns) > 0 {
			pipe.RPush(ctx, turnsKey(state.ID), turns...)
		}
		if len(state.AppointmentIDs) > 0 {
			pipe.RPush(ctx, appointmentsKey(state.ID), toAny(state.AppointmentIDs)...)
		}
		r.expire(ctx, pipe, state.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}
	return nil
}

// Append adds a finished turn inside one MULTI/EXEC
func (r *RedisConversationStore) Append(ctx context.Context, id string, update pkg.ConversationUpdate) (*pkg.ConversationState, error) {
	n, err := r.client.Exists(ctx, metaKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check conversation: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	turns, err := encodeTurns(update.Turns)
	if err != nil {
		return nil, err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields := map[string]any{"updated_at": time.Now().UTC().Format(time.RFC3339Nano)}
		if update.LastIntent != "" {
			fields["last_intent"] = string(update.LastIntent)
		}
		pipe.HSet(ctx, metaKey(id), fields)
		if len(turns) > 0 {
			pipe.RPush(ctx, turnsKey(id), turns...)
		}
		if len(update.AppointmentIDs) > 0 {
			pushMissing.Eval(ctx, pipe, []string{appointmentsKey(id)}, toAny(update.AppointmentIDs)...)
		}
		r.expire(ctx, pipe, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append to conversation: %w", err)
	}
	return r.Get(ctx, id)
}

// pushMissing appends the ids not yet in the list, keeping first-seen order
var pushMissing = redis.NewScript(`
local seen = {}
for _, v in ipairs(redis.call('LRANGE', KEYS[1], 0, -1)) do seen[v] = true end
for _, v in ipairs(ARGV) do
  if not seen[v] then
    redis.call('RPUSH', KEYS[1], v)
    seen[v] = true
  end
end
return 0
`)

func (r *RedisConversationStore) expire(ctx context.Context, pipe redis.Pipeliner, id string) {
	pipe.Expire(ctx, metaKey(id), r.ttl)
	pipe.Expire(ctx, turnsKey(id), r.ttl)
	pipe.Expire(ctx, appointmentsKey(id), r.ttl)
}

// TTL returns the remaining lifetime of a conversation
func (r *RedisConversationStore) TTL(ctx context.Context, id string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, metaKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get TTL: %w", err)
	}
	return ttl, nil
}

func encodeTurns(turns []pkg.Turn) ([]any, error) {
	out := make([]any, 0, len(turns))
	for _, t := range turns {
		raw, err := sonic.MarshalString(t)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal turn: %w", err)
		}
		out = append(out, raw)
	}
	return out, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
