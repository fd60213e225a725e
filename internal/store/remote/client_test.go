package remote

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/holdemtable/internal/auth"
	"github.com/lox/holdemtable/internal/docserver"
	"github.com/lox/holdemtable/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func startServer(t *testing.T, opts ...docserver.Option) (*store.Memory, string) {
	t.Helper()
	mem := store.NewMemory(testLogger())
	srv := docserver.NewServer(":0", mem, testLogger(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Stop()
		ts.Close()
		mem.Close()
	})
	return mem, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url, token string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), url, token, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDialIdentity(t *testing.T) {
	t.Parallel()
	_, url := startServer(t)

	c := dial(t, url, "alice")
	require.NotNil(t, c.Identity())
	assert.Equal(t, "alice", c.Identity().UID)

	anon := dial(t, url, "")
	assert.Nil(t, anon.Identity())
}

type rejectAll struct{}

func (rejectAll) Validate(context.Context, string) (*auth.Identity, error) {
	return nil, auth.ErrInvalidToken
}

func TestDialRejected(t *testing.T) {
	t.Parallel()
	_, url := startServer(t, docserver.WithValidator(rejectAll{}))
	_, err := Dial(context.Background(), url, "x", testLogger())
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestReadWriteRoundTrip(t *testing.T) {
	t.Parallel()
	mem, url := startServer(t)
	c := dial(t, url, "alice")
	ctx := context.Background()

	_, err := c.Read(ctx, "games", "r1")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, c.Write(ctx, "games", "r1", store.Document{"phase": "waiting", "pot": 0}))
	require.NoError(t, c.Write(ctx, "games", "r1", store.Document{"pot": 30}))

	doc, err := c.Read(ctx, "games", "r1")
	require.NoError(t, err)
	assert.Equal(t, 30, doc.Int("pot"))
	assert.Equal(t, "waiting", doc.String("phase"))

	local, err := mem.Read(ctx, "games", "r1")
	require.NoError(t, err)
	assert.Equal(t, local, doc)

	require.NoError(t, c.Replace(ctx, "games", "r1", store.Document{"phase": "ended"}))
	require.NoError(t, c.Write(ctx, "games/r1/players", "a", store.Document{"money": 10}))
	players, err := c.Query(ctx, "games/r1/players")
	require.NoError(t, err)
	assert.Len(t, players, 1)

	require.NoError(t, c.Delete(ctx, "games/r1/players", "a"))
	players, err = c.Query(ctx, "games/r1/players")
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestGuardedWritesOverTheWire(t *testing.T) {
	t.Parallel()
	_, url := startServer(t)
	a := dial(t, url, "a")
	b := dial(t, url, "b")
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "games", "r1", store.Document{"currentTurn": "a", "currentCallAmount": 0}))

	err := b.WriteIf(ctx, "games", "r1", store.Precondition{Field: "currentTurn", Value: "b"}, store.Document{"currentTurn": "c"})
	require.ErrorIs(t, err, store.ErrPreconditionFailed)

	require.NoError(t, b.WriteIf(ctx, "games", "r1", store.Precondition{Field: "currentCallAmount", Value: 0}, store.Document{"currentCallAmount": 20}))

	err = store.Guarded(ctx, a, "games", "r1", "currentTurn", func(doc store.Document) ([]store.Op, error) {
		require.NoError(t, b.Write(ctx, "games", "r1", store.Document{"currentTurn": "b"}))
		return []store.Op{{Kind: store.OpWrite, Path: "games", ID: "r1", Fields: store.Document{"currentTurn": "z"}}}, nil
	})
	require.ErrorIs(t, err, store.ErrPreconditionFailed)

	err = a.Batch().
		Check("games", "r1", store.Precondition{Field: "currentTurn", Value: "b"}).
		Write("games", "r1", store.Document{"pot": 40}).
		Commit(ctx)
	require.NoError(t, err)
	doc, err := b.Read(ctx, "games", "r1")
	require.NoError(t, err)
	assert.Equal(t, 40, doc.Int("pot"))
}

func TestSubscribeAcrossClients(t *testing.T) {
	t.Parallel()
	_, url := startServer(t)
	watcher := dial(t, url, "w")
	writer := dial(t, url, "x")
	ctx := context.Background()

	snaps := make(chan store.Snapshot, 10)
	unsub, err := watcher.Subscribe(ctx, "games", "r1", func(s store.Snapshot) { snaps <- s }, nil)
	require.NoError(t, err)

	colls := make(chan map[string]store.Document, 10)
	_, err = watcher.SubscribeCollection(ctx, "games/r1/players", func(c map[string]store.Document) { colls <- c }, nil)
	require.NoError(t, err)

	first := <-snaps
	assert.False(t, first.Exists)
	assert.Empty(t, <-colls)

	require.NoError(t, writer.Write(ctx, "games", "r1", store.Document{"phase": "preflop"}))
	select {
	case s := <-snaps:
		assert.True(t, s.Exists)
		assert.Equal(t, "preflop", s.Doc.String("phase"))
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot")
	}

	require.NoError(t, writer.Write(ctx, "games/r1/players", "x", store.Document{"money": 10000}))
	select {
	case c := <-colls:
		assert.Equal(t, 10000, c["x"].Int("money"))
	case <-time.After(2 * time.Second):
		t.Fatal("no collection update")
	}

	unsub()
	require.NoError(t, writer.Write(ctx, "games", "r1", store.Document{"phase": "flop"}))
	select {
	case s := <-snaps:
		t.Fatalf("unexpected snapshot after unsubscribe: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCallbackCanUseClient(t *testing.T) {
	t.Parallel()
	_, url := startServer(t)
	c := dial(t, url, "a")
	ctx := context.Background()

	done := make(chan int, 1)
	_, err := c.Subscribe(ctx, "counters", "n", func(s store.Snapshot) {
		if !s.Exists {
			return
		}
		n := s.Doc.Int("n")
		if n >= 3 {
			done <- n
			return
		}
		// Reading back through the same client from inside a callback must not
		// stall the read loop.
		doc, err := c.Read(ctx, "counters", "n")
		if assert.NoError(t, err) {
			assert.NoError(t, c.Write(ctx, "counters", "n", store.Document{"n": doc.Int("n") + 1}))
		}
	}, nil)
	require.NoError(t, err)

	require.NoError(t, c.Write(ctx, "counters", "n", store.Document{"n": 1}))
	select {
	case n := <-done:
		assert.Equal(t, 3, n)
	case <-time.After(2 * time.Second):
		t.Fatal("callback chain stalled")
	}
}

func TestCloseFailsPendingAndNotifiesSubscribers(t *testing.T) {
	t.Parallel()
	_, url := startServer(t)
	c := dial(t, url, "a")
	ctx := context.Background()

	errs := make(chan error, 1)
	_, err := c.Subscribe(ctx, "games", "r1", func(store.Snapshot) {}, func(err error) { errs <- err })
	require.NoError(t, err)

	require.NoError(t, c.Close())
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("onError not called")
	}

	_, err = c.Read(ctx, "games", "r1")
	assert.ErrorIs(t, err, ErrClosed)
	<-c.Done()
}
