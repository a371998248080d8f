package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/specerr"
)

const (
	redisKeyPrefix = "specforge:session:"
	redisIndexKey  = "specforge:sessions"
)

// RedisStore keeps session documents as string values keyed by session id,
// with a set of ids for listing.
type RedisStore struct {
	client *redis.Client
	prefix string
	index  string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "parse redis url")
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, specerr.Wrap(specerr.IOError, err, "connect to redis")
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: redisKeyPrefix,
		index:  redisIndexKey,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Create stores a new session and indexes it in one MULTI/EXEC. SETNX
// guarantees an existing id is not overwritten; re-adding an existing id to
// the index is a no-op.
func (s *RedisStore) Create(ctx context.Context, sess *ir.SpecSession) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	var created *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, s.key(sess.SessionID), data, 0)
		pipe.SAdd(ctx, s.index, sess.SessionID)
		return nil
	})
	if err != nil {
		return specerr.Wrap(specerr.IOError, err, "create session "+sess.SessionID)
	}
	if !created.Val() {
		return alreadyExists(sess.SessionID)
	}
	return nil
}

// Get loads a session.
func (s *RedisStore) Get(ctx context.Context, id string) (*ir.SpecSession, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "read session "+id)
	}
	return decodeSession(id, data)
}

// Put replaces an existing session. SETXX only writes when the key exists.
func (s *RedisStore) Put(ctx context.Context, sess *ir.SpecSession) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	ok, err := s.client.SetXX(ctx, s.key(sess.SessionID), data, 0).Result()
	if err != nil {
		return specerr.Wrap(specerr.IOError, err, "update session "+sess.SessionID)
	}
	if !ok {
		return notFound(sess.SessionID)
	}
	return nil
}

// List returns summaries of all indexed sessions ordered by id.
func (s *RedisStore) List(ctx context.Context) ([]ir.SessionSummary, error) {
	ids, err := s.client.SMembers(ctx, s.index).Result()
	if err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "list sessions")
	}
	sort.Strings(ids)

	out := []ir.SessionSummary{}
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "list sessions")
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Indexed but deleted out of band.
			continue
		}
		sess, err := decodeSession(ids[i], []byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, sess.Summary())
	}
	return out, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
