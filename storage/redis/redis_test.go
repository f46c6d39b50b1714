package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-authcore/storage"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewWithClient(client, "test:")
	require.NoError(t, store.Connect(context.Background()))
	return store, mr
}

// ============================================================
// Lifecycle
// ============================================================

func TestConnectIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Connect(ctx))
	require.NoError(t, store.Connect(ctx))
	require.NoError(t, store.Disconnect(ctx))
	require.NoError(t, store.Disconnect(ctx))
}

func TestConnectFailsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	store := New(Config{Addr: addr})
	err := store.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

// ============================================================
// Clients
// ============================================================

func TestClientRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	client := &storage.Client{
		ClientID:      "client-1",
		ClientName:    "Test Client",
		RedirectURIs:  []string{"http://localhost:8085/callback"},
		AllowedScopes: []string{"read", "tools:execute"},
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.SaveClient(ctx, client))

	got, err := store.GetClient(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "Test Client", got.ClientName)
	assert.Equal(t, []string{"read", "tools:execute"}, got.AllowedScopes)

	// Duplicate registration is rejected
	err = store.SaveClient(ctx, &storage.Client{ClientID: "client-1"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestGetClientNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetClient(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrClientNotFound)
	assert.True(t, storage.IsNotFound(err))
}

func TestDeleteClientIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveClient(ctx, &storage.Client{ClientID: "client-1"}))
	require.NoError(t, store.DeleteClient(ctx, "client-1"))
	require.NoError(t, store.DeleteClient(ctx, "client-1"))

	_, err := store.GetClient(ctx, "client-1")
	assert.ErrorIs(t, err, storage.ErrClientNotFound)
}

func TestListClients(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveClient(ctx, &storage.Client{ClientID: id}))
	}

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 3)
}

func TestValidateClientSecret(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hash, err := storage.HashClientSecret("correct-horse")
	require.NoError(t, err)
	require.NoError(t, store.SaveClient(ctx, &storage.Client{
		ClientID:         "confidential",
		ClientSecretHash: hash,
	}))
	require.NoError(t, store.SaveClient(ctx, &storage.Client{ClientID: "public"}))

	assert.NoError(t, store.ValidateClientSecret(ctx, "confidential", "correct-horse"))
	assert.Error(t, store.ValidateClientSecret(ctx, "confidential", "wrong"))
	assert.NoError(t, store.ValidateClientSecret(ctx, "public", ""))
	assert.Error(t, store.ValidateClientSecret(ctx, "missing", "anything"))
}

// ============================================================
// Access tokens
// ============================================================

func TestTokenRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	token := &storage.AccessToken{
		Token:    "tok-1",
		ClientID: "client-1",
		Scopes:   []string{"read"},
	}
	require.NoError(t, store.SaveToken(ctx, token, time.Hour))

	got, err := store.GetToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", got.ClientID)
	assert.False(t, got.ExpiresAt.IsZero())

	err = store.SaveToken(ctx, &storage.AccessToken{Token: "tok-1"}, time.Hour)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestTokenExpiresNatively(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveToken(ctx, &storage.AccessToken{Token: "tok-1"}, time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err := store.GetToken(ctx, "tok-1")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestTokenExpiredByTimestamp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Sub-second TTLs beat Redis TTL resolution; the stored timestamp is
	// what expires the token here.
	require.NoError(t, store.SaveToken(ctx, &storage.AccessToken{Token: "tok-1"}, 30*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	_, err := store.GetToken(ctx, "tok-1")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestDeleteTokensByClient(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveToken(ctx, &storage.AccessToken{Token: "t1", ClientID: "alpha"}, time.Hour))
	require.NoError(t, store.SaveToken(ctx, &storage.AccessToken{Token: "t2", ClientID: "alpha"}, time.Hour))
	require.NoError(t, store.SaveToken(ctx, &storage.AccessToken{Token: "t3", ClientID: "beta"}, time.Hour))

	removed, err := store.DeleteTokensByClient(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.GetToken(ctx, "t3")
	assert.NoError(t, err, "other client's token must survive")
}

// ============================================================
// Refresh tokens
// ============================================================

func TestRefreshTokenRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rt := &storage.RefreshToken{
		Token:       "refresh-1",
		AccessToken: "tok-1",
		ClientID:    "client-1",
		Scopes:      []string{"read", "write"},
	}
	require.NoError(t, store.SaveRefreshToken(ctx, rt, 24*time.Hour))

	got, err := store.GetRefreshToken(ctx, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.AccessToken)
	assert.Equal(t, []string{"read", "write"}, got.Scopes)
}

func TestAtomicGetAndDeleteRefreshToken(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rt := &storage.RefreshToken{Token: "refresh-1", AccessToken: "tok-1", ClientID: "client-1"}
	require.NoError(t, store.SaveRefreshToken(ctx, rt, time.Hour))

	got, err := store.AtomicGetAndDeleteRefreshToken(ctx, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.AccessToken)

	_, err = store.AtomicGetAndDeleteRefreshToken(ctx, "refresh-1")
	assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound)
}

func TestConcurrentAtomicGetAndDeleteSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rt := &storage.RefreshToken{Token: "contested", ClientID: "client-1"}
	require.NoError(t, store.SaveRefreshToken(ctx, rt, time.Hour))

	const goroutines = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AtomicGetAndDeleteRefreshToken(ctx, "contested"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

// ============================================================
// Authorization codes
// ============================================================

func TestAuthorizationCodeRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{
		Code:          "code-1",
		ClientID:      "client-1",
		RedirectURI:   "http://localhost:8085/callback",
		CodeChallenge: "challenge",
		Scopes:        []string{"read"},
	}
	require.NoError(t, store.SaveAuthorizationCode(ctx, code, 10*time.Minute))

	got, err := store.GetAuthorizationCode(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "challenge", got.CodeChallenge)
	assert.False(t, got.Used)
}

func TestMarkAuthorizationCodeUsed(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{Code: "code-1", ClientID: "client-1"}
	require.NoError(t, store.SaveAuthorizationCode(ctx, code, 10*time.Minute))

	got, err := store.MarkAuthorizationCodeUsed(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", got.ClientID)
	assert.True(t, got.Used)

	// Replay is rejected but still reports the owning client
	replay, err := store.MarkAuthorizationCodeUsed(ctx, "code-1")
	assert.ErrorIs(t, err, storage.ErrAuthorizationCodeUsed)
	require.NotNil(t, replay)
	assert.Equal(t, "client-1", replay.ClientID)

	// GetAuthorizationCode reflects the used marker
	read, err := store.GetAuthorizationCode(ctx, "code-1")
	require.NoError(t, err)
	assert.True(t, read.Used)
}

func TestMarkAuthorizationCodeUsedNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.MarkAuthorizationCodeUsed(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrAuthorizationCodeNotFound)
}

func TestConcurrentMarkUsedSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{Code: "contested", ClientID: "client-1"}
	require.NoError(t, store.SaveAuthorizationCode(ctx, code, 10*time.Minute))

	const goroutines = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.MarkAuthorizationCodeUsed(ctx, "contested"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestDeleteAuthorizationCodeRemovesUsedMarker(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{Code: "code-1"}
	require.NoError(t, store.SaveAuthorizationCode(ctx, code, 10*time.Minute))
	_, err := store.MarkAuthorizationCodeUsed(ctx, "code-1")
	require.NoError(t, err)

	require.NoError(t, store.DeleteAuthorizationCode(ctx, "code-1"))

	// The code ID is reusable once fully deleted
	require.NoError(t, store.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{Code: "code-1"}, 10*time.Minute))
	fresh, err := store.GetAuthorizationCode(ctx, "code-1")
	require.NoError(t, err)
	assert.False(t, fresh.Used)
}

// ============================================================
// Transactions
// ============================================================

func TestTransactionCommit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID())

	require.NoError(t, tx.SaveToken(&storage.AccessToken{Token: "tok-1", ClientID: "c1"}, time.Hour))
	require.NoError(t, tx.SaveRefreshToken(&storage.RefreshToken{Token: "ref-1", AccessToken: "tok-1", ClientID: "c1"}, time.Hour))

	// Buffered writes are invisible before commit
	_, err = store.GetToken(ctx, "tok-1")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	require.NoError(t, tx.Commit(ctx))

	_, err = store.GetToken(ctx, "tok-1")
	assert.NoError(t, err)
	_, err = store.GetRefreshToken(ctx, "ref-1")
	assert.NoError(t, err)
}

func TestTransactionRollback(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveClient(&storage.Client{ClientID: "ghost"}))
	require.NoError(t, tx.Rollback())

	_, err = store.GetClient(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrClientNotFound)
}

func TestTransactionClosedAfterCommit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, tx.SaveToken(&storage.AccessToken{Token: "late"}, time.Hour), storage.ErrTransactionClosed)
	assert.ErrorIs(t, tx.Commit(ctx), storage.ErrTransactionClosed)
}

func TestTransactionCollisionReported(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveClient(ctx, &storage.Client{ClientID: "taken"}))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveToken(&storage.AccessToken{Token: "applied"}, time.Hour))
	require.NoError(t, tx.SaveClient(&storage.Client{ClientID: "taken"}))

	err = tx.Commit(ctx)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	// The non-colliding write went through
	_, err = store.GetToken(ctx, "applied")
	assert.NoError(t, err)
}

// ============================================================
// Stats
// ============================================================

func TestStats(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveClient(ctx, &storage.Client{ClientID: "c"}))
	require.NoError(t, store.SaveToken(ctx, &storage.AccessToken{Token: "t"}, time.Hour))
	require.NoError(t, store.SaveRefreshToken(ctx, &storage.RefreshToken{Token: "r"}, time.Hour))
	require.NoError(t, store.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{Code: "a"}, time.Hour))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Clients)
	assert.Equal(t, int64(1), stats.AccessTokens)
	assert.Equal(t, int64(1), stats.RefreshTokens)
	assert.Equal(t, int64(1), stats.AuthorizationCodes)
}
