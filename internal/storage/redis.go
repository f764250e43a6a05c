package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"snoozebot/internal/mute"
	logx "snoozebot/pkg/logx"
)

const (
	defaultKeyPrefix = "snoozebot:"
	auditMaxLen      = 10000
	txRetries        = 5
)

// redisStore keeps one JSON value per restricted member.
//
// Keys:
//   - <prefix>mute:seq          id counter (INCR, never reset)
//   - <prefix>mute:member:<id>  JSON muteRow
//   - <prefix>mute:members      set of restricted member ids
//   - <prefix>audit             capped list of JSON AuditEntry
//
// Durability follows the server's persistence settings (AOF recommended).
type redisStore struct {
	client *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("redis store opened", logx.String("addr", addr), logx.Int("db", cfg.DB), logx.String("prefix", prefix))
	return &redisStore{client: client, prefix: prefix, log: log}, nil
}

func (s *redisStore) seqKey() string     { return s.prefix + "mute:seq" }
func (s *redisStore) membersKey() string { return s.prefix + "mute:members" }
func (s *redisStore) auditKey() string   { return s.prefix + "audit" }
func (s *redisStore) memberKey(id int64) string {
	return s.prefix + "mute:member:" + strconv.FormatInt(id, 10)
}

func (s *redisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *redisStore) Upsert(ctx context.Context, rec mute.Record) (mute.Record, error) {
	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return mute.Record{}, fmt.Errorf("failed to allocate mute id: %w", err)
	}
	rec.ID = id
	data, err := json.Marshal(rowOf(rec))
	if err != nil {
		return mute.Record{}, err
	}

	key := s.memberKey(rec.MemberID)
	member := strconv.FormatInt(rec.MemberID, 10)
	txf := func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.membersKey(), member)
			return nil
		})
		return err
	}
	for i := 0; i < txRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return mute.Record{}, fmt.Errorf("failed to upsert mute record: %w", err)
	}
	return rec, nil
}

func (s *redisStore) Get(ctx context.Context, memberID int64) (mute.Record, bool, error) {
	b, err := s.client.Get(ctx, s.memberKey(memberID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return mute.Record{}, false, nil
	}
	if err != nil {
		return mute.Record{}, false, fmt.Errorf("failed to get mute record: %w", err)
	}
	var row muteRow
	if err := json.Unmarshal(b, &row); err != nil {
		return mute.Record{}, false, fmt.Errorf("failed to decode mute record: %w", err)
	}
	return row.record(), true, nil
}

func (s *redisStore) Delete(ctx context.Context, memberID int64) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.memberKey(memberID))
		pipe.SRem(ctx, s.membersKey(), strconv.FormatInt(memberID, 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete mute record: %w", err)
	}
	return nil
}

func (s *redisStore) ListAll(ctx context.Context) ([]mute.Record, error) {
	ids, err := s.client.SMembers(ctx, s.membersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list mute records: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.log.Warn("skipping malformed member id in mute index", logx.String("id", raw))
			continue
		}
		cmds = append(cmds, pipe.Get(ctx, s.memberKey(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to list mute records: %w", err)
	}

	out := make([]mute.Record, 0, len(cmds))
	for _, cmd := range cmds {
		b, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list mute records: %w", err)
		}
		var row muteRow
		if err := json.Unmarshal(b, &row); err != nil {
			return nil, fmt.Errorf("failed to decode mute record: %w", err)
		}
		out = append(out, row.record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt < out[j].ExpiresAt })
	return out, nil
}

func (s *redisStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	stampAudit(&e)
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.auditKey(), data)
		pipe.LTrim(ctx, s.auditKey(), 0, auditMaxLen-1)
		return nil
	})
	return err
}
