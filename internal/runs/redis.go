package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// RedisConfig addresses the redis server holding runs
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// releaseLock deletes the lock only while it still holds the caller's token
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to redis and returns a registry shared by every server instance
func NewRedis(cfg RedisConfig) (Registry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %v", cfg.Addr, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisRegistry{client: client, ttl: ttl}, nil
}

func (r *redisRegistry) Create(ctx context.Context, run models.RunRecord) error {
	k := runKey(run.ID)
	now := time.Now().UTC()

	created, err := r.client.HSetNX(ctx, k, "created_at", strconv.FormatInt(now.UnixNano(), 10)).Result()
	if err != nil {
		return storageErr("runs.create", err)
	}
	if !created {
		return apperrors.New(apperrors.KindConflict, "runs.create", fmt.Sprintf("run %s already exists", run.ID))
	}

	options, err := json.Marshal(run.Options)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, k,
		"status", run.Status,
		"total", strconv.FormatInt(run.Total, 10),
		"processed", strconv.FormatInt(run.Processed, 10),
		"failed", strconv.FormatInt(run.Failed, 10),
		"options", string(options),
		"updated_at", strconv.FormatInt(now.UnixNano(), 10),
	)
	pipe.Expire(ctx, k, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return storageErr("runs.create", err)
	}
	return nil
}

func (r *redisRegistry) Get(ctx context.Context, id string) (models.RunRecord, error) {
	m, err := r.client.HGetAll(ctx, runKey(id)).Result()
	if err != nil {
		return models.RunRecord{}, storageErr("runs.get", err)
	}
	if len(m) == 0 {
		return models.RunRecord{}, notFound("runs.get", id)
	}
	return decodeRun(id, m)
}

func (r *redisRegistry) TryLockBatch(ctx context.Context, id string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, lockKey(id), token, ttl).Result()
	if err != nil {
		return "", false, storageErr("runs.lock", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *redisRegistry) UnlockBatch(ctx context.Context, id, token string) error {
	if err := releaseLock.Run(ctx, r.client, []string{lockKey(id)}, token).Err(); err != nil {
		return storageErr("runs.unlock", err)
	}
	return nil
}

func (r *redisRegistry) AddProgress(ctx context.Context, id string, processed, failed int64) (models.RunRecord, error) {
	k := runKey(id)

	exists, err := r.client.Exists(ctx, k).Result()
	if err != nil {
		return models.RunRecord{}, storageErr("runs.add_progress", err)
	}
	if exists == 0 {
		return models.RunRecord{}, notFound("runs.add_progress", id)
	}

	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, k, "processed", processed)
	pipe.HIncrBy(ctx, k, "failed", failed)
	pipe.HSet(ctx, k, "updated_at", strconv.FormatInt(time.Now().UTC().UnixNano(), 10))
	pipe.Expire(ctx, k, r.ttl)
	all := pipe.HGetAll(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.RunRecord{}, storageErr("runs.add_progress", err)
	}
	return decodeRun(id, all.Val())
}

func (r *redisRegistry) SetStatus(ctx context.Context, id, status string) error {
	k := runKey(id)

	exists, err := r.client.Exists(ctx, k).Result()
	if err != nil {
		return storageErr("runs.set_status", err)
	}
	if exists == 0 {
		return notFound("runs.set_status", id)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, k,
		"status", status,
		"updated_at", strconv.FormatInt(time.Now().UTC().UnixNano(), 10),
	)
	pipe.Expire(ctx, k, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return storageErr("runs.set_status", err)
	}
	return nil
}

func (r *redisRegistry) Close() error {
	return r.client.Close()
}

func decodeRun(id string, m map[string]string) (models.RunRecord, error) {
	toInt := func(s string) int64 {
		if s == "" {
			return 0
		}
		n, _ := strconv.ParseInt(s, 10, 64)
		return n
	}

	run := models.RunRecord{
		ID:        id,
		Status:    m["status"],
		Total:     toInt(m["total"]),
		Processed: toInt(m["processed"]),
		Failed:    toInt(m["failed"]),
		CreatedAt: time.Unix(0, toInt(m["created_at"])).UTC(),
		UpdatedAt: time.Unix(0, toInt(m["updated_at"])).UTC(),
	}
	if raw := m["options"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &run.Options); err != nil {
			return models.RunRecord{}, fmt.Errorf("run %s has malformed options: %v", id, err)
		}
	}
	return run, nil
}

func storageErr(op string, err error) error {
	return apperrors.Wrap(apperrors.KindStorage, op, "run registry unavailable", err)
}

func runKey(id string) string  { return fmt.Sprintf("alttext:run:%s", id) }
func lockKey(id string) string { return fmt.Sprintf("alttext:run:%s:lock", id) }
