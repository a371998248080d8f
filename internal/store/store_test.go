package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/specerr"
)

// sessionStore is the contract every backend satisfies.
type sessionStore interface {
	Create(ctx context.Context, s *ir.SpecSession) error
	Get(ctx context.Context, id string) (*ir.SpecSession, error)
	Put(ctx context.Context, s *ir.SpecSession) error
	List(ctx context.Context) ([]ir.SessionSummary, error)
}

var (
	_ sessionStore = (*FileStore)(nil)
	_ sessionStore = (*SQLiteStore)(nil)
	_ sessionStore = (*RedisStore)(nil)
)

func backends(t *testing.T) map[string]sessionStore {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)

	sqliteStore, err := OpenSQLite(filepath.Join(t.TempDir(), "specforge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	mr := miniredis.RunT(t)
	redisStore, err := NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { redisStore.Close() })

	return map[string]sessionStore{
		"file":   fileStore,
		"sqlite": sqliteStore,
		"redis":  redisStore,
	}
}

func testSession(id string) *ir.SpecSession {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &ir.SpecSession{
		Version:       "1",
		SessionID:     id,
		TemplateID:    "crud-backend",
		Status:        ir.StatusQuestions,
		UserPrompt:    "orders service",
		Answers:       ir.IRObject{"projectName": ir.IRString("shop")},
		OpenQuestions: []string{"authIssuer"},
		DraftSpec:     ir.IRObject{"name": ir.IRString("shop")},
		Diagnostics:   []ir.Diagnostic{},
		History: []ir.StepHistory{
			{Seq: 1, Step: "init", At: at, InputHash: "in", OutputHash: "out"},
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("create and get", func(t *testing.T) {
				s := testSession("s-create")
				require.NoError(t, st.Create(ctx, s))

				got, err := st.Get(ctx, "s-create")
				require.NoError(t, err)
				assert.Equal(t, s.SessionID, got.SessionID)
				assert.Equal(t, s.Status, got.Status)
				assert.Equal(t, s.OpenQuestions, got.OpenQuestions)
				assert.True(t, ir.Equal(s.Answers, got.Answers))
				assert.True(t, ir.Equal(s.DraftSpec, got.DraftSpec))
				assert.Nil(t, got.CandidateSpec)
				assert.Nil(t, got.FinalSpec)
				assert.Equal(t, s.History, got.History)
				assert.True(t, s.CreatedAt.Equal(got.CreatedAt))
			})

			t.Run("create duplicate", func(t *testing.T) {
				require.NoError(t, st.Create(ctx, testSession("s-dup")))
				err := st.Create(ctx, testSession("s-dup"))
				assert.True(t, specerr.Is(err, specerr.InvalidInput), "got %v", err)
			})

			t.Run("get unknown", func(t *testing.T) {
				_, err := st.Get(ctx, "missing")
				assert.True(t, specerr.Is(err, specerr.SessionNotFound), "got %v", err)
			})

			t.Run("put replaces", func(t *testing.T) {
				s := testSession("s-put")
				require.NoError(t, st.Create(ctx, s))

				s.Status = ir.StatusFinal
				s.FinalSpec = ir.IRObject{"name": ir.IRString("final")}
				s.History = append(s.History, ir.StepHistory{Seq: 2, Step: "polish", At: s.UpdatedAt})
				require.NoError(t, st.Put(ctx, s))

				got, err := st.Get(ctx, "s-put")
				require.NoError(t, err)
				assert.Equal(t, ir.StatusFinal, got.Status)
				assert.True(t, ir.Equal(s.FinalSpec, got.FinalSpec))
				assert.Len(t, got.History, 2)
			})

			t.Run("put never creates", func(t *testing.T) {
				err := st.Put(ctx, testSession("s-ghost"))
				assert.True(t, specerr.Is(err, specerr.SessionNotFound), "got %v", err)

				_, err = st.Get(ctx, "s-ghost")
				assert.True(t, specerr.Is(err, specerr.SessionNotFound))
			})

			t.Run("invalid id", func(t *testing.T) {
				err := st.Create(ctx, testSession("../escape"))
				assert.True(t, specerr.Is(err, specerr.InvalidInput), "got %v", err)
			})

			t.Run("list sorted", func(t *testing.T) {
				list, err := st.List(ctx)
				require.NoError(t, err)

				ids := make([]string, len(list))
				for i, sum := range list {
					ids[i] = sum.SessionID
				}
				assert.Equal(t, []string{"s-create", "s-dup", "s-put"}, ids)
				assert.Equal(t, "crud-backend", list[0].TemplateID)
			})
		})
	}
}

func TestStoreConcurrentPuts(t *testing.T) {
	ctx := context.Background()

	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := testSession("s-race")
			require.NoError(t, st.Create(ctx, s))

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					cp := s.Clone()
					cp.UserPrompt = "writer"
					assert.NoError(t, st.Put(ctx, cp))
				}(i)
			}
			wg.Wait()

			// Whichever writer won, the document is whole.
			got, err := st.Get(ctx, "s-race")
			require.NoError(t, err)
			assert.Equal(t, "writer", got.UserPrompt)
		})
	}
}

func TestSQLitePragmas(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "pragma.db"))
	require.NoError(t, err)
	defer st.Close()

	assert.NoError(t, st.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, st.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, st.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, st.verifyPragma("user_version", "1"))
}

func TestSQLiteReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	st, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, testSession("s-keep")))
	require.NoError(t, st.Close())

	st, err = OpenSQLite(path)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.Get(ctx, "s-keep")
	require.NoError(t, err)
	assert.Equal(t, "s-keep", got.SessionID)
}

func TestSQLiteHistoryMirror(t *testing.T) {
	ctx := context.Background()
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer st.Close()

	s := testSession("s-hist")
	require.NoError(t, st.Create(ctx, s))

	s.History = append(s.History,
		ir.StepHistory{Seq: 2, Step: "answer", At: s.UpdatedAt, InputHash: "a", OutputHash: "b"},
		ir.StepHistory{Seq: 3, Step: "polish", At: s.UpdatedAt, InputHash: "c", OutputHash: "d"},
	)
	require.NoError(t, st.Put(ctx, s))
	// Re-putting the same history is a no-op for the mirror.
	require.NoError(t, st.Put(ctx, s))

	hist, err := st.History(ctx, "s-hist")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, []string{"init", "answer", "polish"}, []string{hist[0].Step, hist[1].Step, hist[2].Step})
	assert.Equal(t, int64(3), hist[2].Seq)
}

func TestRedisStoreKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	st, err := NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Create(ctx, testSession("s-key")))
	assert.True(t, mr.Exists(redisKeyPrefix+"s-key"))

	members, err := mr.Members(redisIndexKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-key"}, members)

	// Deleted out of band: dropped from listings.
	mr.Del(redisKeyPrefix + "s-key")
	list, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisCreateIsTransactional(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	st, err := NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	defer st.Close()

	mr.SetError("ERR server unavailable")
	err = st.Create(ctx, testSession("s-tx"))
	assert.True(t, specerr.Is(err, specerr.IOError), "got %v", err)
	mr.SetError("")
	assert.False(t, mr.Exists(redisKeyPrefix+"s-tx"))
	assert.False(t, mr.Exists(redisIndexKey))

	require.NoError(t, st.Create(ctx, testSession("s-tx")))
	err = st.Create(ctx, testSession("s-tx"))
	assert.True(t, specerr.Is(err, specerr.InvalidInput), "got %v", err)
	members, err := mr.Members(redisIndexKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-tx"}, members)
}

func TestNewRedisStoreBadURL(t *testing.T) {
	_, err := NewRedisStore("not-a-url")
	assert.True(t, specerr.Is(err, specerr.InvalidInput), "got %v", err)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	fs, err := NewFileStore(filepath.Dir(path))
	require.NoError(t, err)
	list, err := fs.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "non-session files are skipped")

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".out.txt.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files are cleaned up")
}
