package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis as a fast-path cache/queue in
// front of (or instead of) Postgres. Slots and accounts are small sets
// that fit comfortably as JSON blobs; tasks use the same encoding plus
// a Lua script for the CAS transition, since Redis has no native
// compare-and-swap on a JSON field.
type RedisStore struct {
	client *redis.Client

	casStatusSHA string
}

// casStatusScript atomically transitions a task's status field iff its
// current value equals ARGV[1], returning 1 on success, 0 otherwise.
const casStatusScript = `
local raw = redis.call("get", KEYS[1])
if not raw then
	return 0
end
local task = cjson.decode(raw)
if task.Status ~= ARGV[1] then
	return 0
end
task.Status = ARGV[2]
task.UpdatedAt = ARGV[3]
if ARGV[2] == "running" then
	task.StartedAt = ARGV[3]
end
redis.call("set", KEYS[1], cjson.encode(task))
return 1
`

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	sha, err := client.ScriptLoad(ctx, casStatusScript).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to preload CAS script: %w", err)
	}

	return &RedisStore{client: client, casStatusSHA: sha}, nil
}

func (s *RedisStore) ListEnabledSlots(ctx context.Context) ([]*Slot, error) {
	match := Prefix(ResourceSlot) + "*"
	iter := s.client.Scan(ctx, 0, match, 0).Iterator()
	var out []*Slot
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var sl Slot
		if err := json.Unmarshal(data, &sl); err != nil {
			continue
		}
		if sl.Enabled {
			out = append(out, &sl)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisStore) GetSlot(ctx context.Context, id string) (*Slot, error) {
	data, err := s.client.Get(ctx, Key(ResourceSlot, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sl Slot
	if err := json.Unmarshal(data, &sl); err != nil {
		return nil, err
	}
	return &sl, nil
}

func (s *RedisStore) UpsertSlot(ctx context.Context, sl *Slot) error {
	sl.UpdatedAt = time.Now()
	data, err := json.Marshal(sl)
	if err != nil {
		return fmt.Errorf("failed to marshal slot: %w", err)
	}
	return s.client.Set(ctx, Key(ResourceSlot, sl.ID), data, 0).Err()
}

func (s *RedisStore) WriteBackSlot(ctx context.Context, id string, usedInWindow int, windowStart time.Time, cooldownUntil time.Time, health Health) error {
	sl, err := s.GetSlot(ctx, id)
	if err != nil {
		return err
	}
	if sl == nil {
		return ErrNotFound
	}
	sl.UsedInWindow = usedInWindow
	sl.WindowStart = windowStart
	sl.CooldownUntil = cooldownUntil
	sl.Health = health
	return s.UpsertSlot(ctx, sl)
}

func (s *RedisStore) ListEnabledAccounts(ctx context.Context) ([]*Account, error) {
	match := Prefix(ResourceAccount) + "*"
	iter := s.client.Scan(ctx, 0, match, 0).Iterator()
	var out []*Account
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var a Account
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		if a.Enabled {
			out = append(out, &a)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	data, err := s.client.Get(ctx, Key(ResourceAccount, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *RedisStore) UpsertAccount(ctx context.Context, a *Account) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	return s.client.Set(ctx, Key(ResourceAccount, a.ID), data, 0).Err()
}

func (s *RedisStore) ListAllAccounts(ctx context.Context) ([]*Account, error) {
	match := Prefix(ResourceAccount) + "*"
	iter := s.client.Scan(ctx, 0, match, 0).Iterator()
	var out []*Account
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var a Account
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		out = append(out, &a)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisStore) DeleteAccount(ctx context.Context, id string) error {
	return s.client.Del(ctx, Key(ResourceAccount, id)).Err()
}

func (s *RedisStore) CreateTask(ctx context.Context, t *Task) error {
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return s.client.Set(ctx, Key(ResourceTask, t.ID), data, 0).Err()
}

func (s *RedisStore) GetTask(ctx context.Context, id string) (*Task, error) {
	data, err := s.client.Get(ctx, Key(ResourceTask, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *RedisStore) UpdateTask(ctx context.Context, t *Task) error {
	if existing, err := s.GetTask(ctx, t.ID); err != nil {
		return err
	} else if existing == nil {
		return ErrNotFound
	}
	t.UpdatedAt = time.Now()
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return s.client.Set(ctx, Key(ResourceTask, t.ID), data, 0).Err()
}

func (s *RedisStore) ListQueuedTasks(ctx context.Context) ([]*Task, error) {
	match := Prefix(ResourceTask) + "*"
	iter := s.client.Scan(ctx, 0, match, 0).Iterator()
	var out []*Task
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var t Task
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		if t.Status == StatusQueued {
			out = append(out, &t)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *RedisStore) CompareAndSetStatus(ctx context.Context, id string, from, to TaskStatus) (bool, error) {
	now := time.Now().Format(time.RFC3339Nano)
	res, err := s.client.EvalSha(ctx, s.casStatusSHA, []string{Key(ResourceTask, id)}, string(from), string(to), now).Result()
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	if !ok {
		return false, errors.New("unexpected return type from CAS script")
	}
	return n == 1, nil
}

func (s *RedisStore) ListAllTasks(ctx context.Context) ([]*Task, error) {
	match := Prefix(ResourceTask) + "*"
	iter := s.client.Scan(ctx, 0, match, 0).Iterator()
	var out []*Task
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var t Task
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		out = append(out, &t)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RedisStore) DeleteTask(ctx context.Context, id string) error {
	return s.client.Del(ctx, Key(ResourceTask, id)).Err()
}
