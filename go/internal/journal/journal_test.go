package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	ok, err := s.Begin(ctx, first, "alice", 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Begin(ctx, first, "alice", 5)
	require.NoError(t, err)
	assert.False(t, ok, "a session is claimed only once")

	ok, err = s.Begin(ctx, second, "alice", 9)
	require.NoError(t, err)
	assert.True(t, ok)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].SessionID)

	result := json.RawMessage(`{"slot":12}`)
	require.NoError(t, s.Complete(ctx, first, StatusRecorded, "sig", result))

	e, err := s.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, StatusRecorded, e.Status)
	assert.Equal(t, "sig", e.Signature)
	assert.JSONEq(t, `{"slot":12}`, string(e.Result))
	assert.Equal(t, int64(5), e.Score)

	require.NoError(t, s.Complete(ctx, second, StatusRejected, "", nil))
	e, err = s.Get(ctx, second)
	require.NoError(t, err)
	assert.Empty(t, e.Signature)
	assert.Nil(t, e.Result)

	pending, err = s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Complete(ctx, uuid.New(), StatusFailed, "", nil), ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	tick := time.Unix(0, 0)
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	exerciseStore(t, s)
}

// TestPostgresStore needs a scratch database in TAPCHAIN_TEST_DATABASE_URL.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TAPCHAIN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TAPCHAIN_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	table := "score_journal_test_" + uuid.NewString()[:8]
	s := NewPostgresStore(db, table)
	require.NoError(t, s.Migrate(context.Background()))
	defer db.Exec("DROP TABLE " + s.table)

	exerciseStore(t, s)
}
