package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/mcp-authcore/storage"
)

func newConnectedStore(t *testing.T) *Store {
	t.Helper()

	store := New()
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Disconnect(context.Background())
	})
	return store
}

// ============================================================
// Lifecycle
// ============================================================

func TestConnectDisconnectIdempotent(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Connect(ctx); err != nil {
			t.Fatalf("Connect() call %d error = %v", i+1, err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := store.Disconnect(ctx); err != nil {
			t.Fatalf("Disconnect() call %d error = %v", i+1, err)
		}
	}
}

func TestDataSurvivesReconnect(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client := &storage.Client{ClientID: "client-1", ClientName: "Test"}
	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	if err := store.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	defer func() { _ = store.Disconnect(ctx) }()

	got, err := store.GetClient(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetClient() after reconnect error = %v", err)
	}
	if got.ClientName != "Test" {
		t.Errorf("ClientName = %q, want %q", got.ClientName, "Test")
	}
}

// ============================================================
// Clients
// ============================================================

func TestSaveAndGetClient(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	client := &storage.Client{
		ClientID:      "client-1",
		ClientName:    "Test Client",
		RedirectURIs:  []string{"http://localhost:8085/callback"},
		AllowedScopes: []string{"read", "tools:execute"},
		CreatedAt:     time.Now(),
	}

	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	got, err := store.GetClient(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.ClientName != client.ClientName {
		t.Errorf("ClientName = %q, want %q", got.ClientName, client.ClientName)
	}
	if len(got.AllowedScopes) != 2 {
		t.Errorf("AllowedScopes = %v, want 2 entries", got.AllowedScopes)
	}
}

func TestSaveClientDuplicateFails(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	client := &storage.Client{ClientID: "client-1"}
	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("first SaveClient() error = %v", err)
	}

	err := store.SaveClient(ctx, &storage.Client{ClientID: "client-1", ClientName: "other"})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("duplicate SaveClient() error = %v, want ErrAlreadyExists", err)
	}

	// Original record must be untouched
	got, err := store.GetClient(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.ClientName != "" {
		t.Errorf("ClientName = %q, want original empty name preserved", got.ClientName)
	}
}

func TestGetClientNotFound(t *testing.T) {
	store := newConnectedStore(t)

	_, err := store.GetClient(context.Background(), "missing")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() error = %v, want ErrClientNotFound", err)
	}
	if !storage.IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}
}

func TestDeleteClientIdempotent(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	if err := store.SaveClient(ctx, &storage.Client{ClientID: "client-1"}); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}
	if err := store.DeleteClient(ctx, "client-1"); err != nil {
		t.Fatalf("DeleteClient() error = %v", err)
	}
	if err := store.DeleteClient(ctx, "client-1"); err != nil {
		t.Errorf("second DeleteClient() error = %v, want nil", err)
	}

	if _, err := store.GetClient(ctx, "client-1"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() after delete error = %v, want ErrClientNotFound", err)
	}
}

func TestListClients(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveClient(ctx, &storage.Client{ClientID: id}); err != nil {
			t.Fatalf("SaveClient(%q) error = %v", id, err)
		}
	}

	clients, err := store.ListClients(ctx)
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}
	if len(clients) != 3 {
		t.Errorf("ListClients() returned %d clients, want 3", len(clients))
	}
}

func TestClientCloneIsolation(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	client := &storage.Client{
		ClientID:      "client-1",
		AllowedScopes: []string{"read"},
	}
	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	// Mutating the caller's struct after save must not affect the store
	client.AllowedScopes[0] = "admin"

	got, err := store.GetClient(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.AllowedScopes[0] != "read" {
		t.Errorf("stored scope mutated to %q via caller slice", got.AllowedScopes[0])
	}

	// Mutating the returned struct must not affect the store either
	got.AllowedScopes[0] = "write"
	again, err := store.GetClient(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if again.AllowedScopes[0] != "read" {
		t.Errorf("stored scope mutated to %q via returned slice", again.AllowedScopes[0])
	}
}

func TestValidateClientSecret(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	hash, err := storage.HashClientSecret("correct-horse")
	if err != nil {
		t.Fatalf("HashClientSecret() error = %v", err)
	}
	if err := store.SaveClient(ctx, &storage.Client{
		ClientID:         "confidential",
		ClientSecretHash: hash,
	}); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}
	if err := store.SaveClient(ctx, &storage.Client{ClientID: "public"}); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	tests := []struct {
		name     string
		clientID string
		secret   string
		wantErr  bool
	}{
		{"correct secret", "confidential", "correct-horse", false},
		{"wrong secret", "confidential", "battery-staple", true},
		{"empty secret against confidential client", "confidential", "", true},
		{"public client needs no secret", "public", "", false},
		{"unknown client", "missing", "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.ValidateClientSecret(ctx, tt.clientID, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateClientSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ============================================================
// Access tokens
// ============================================================

func TestSaveAndGetToken(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	token := &storage.AccessToken{
		Token:    "tok-1",
		ClientID: "client-1",
		Scopes:   []string{"read"},
	}
	if err := store.SaveToken(ctx, token, time.Hour); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	got, err := store.GetToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if got.ClientID != "client-1" {
		t.Errorf("ClientID = %q, want %q", got.ClientID, "client-1")
	}
	if got.ExpiresAt.IsZero() {
		t.Error("ExpiresAt not set by store")
	}
	if remaining := time.Until(got.ExpiresAt); remaining < 59*time.Minute || remaining > time.Hour {
		t.Errorf("expiry %s away, want about one hour", remaining)
	}
}

func TestSaveTokenRejectsInvalidInput(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	if err := store.SaveToken(ctx, nil, time.Hour); err == nil {
		t.Error("SaveToken(nil) error = nil, want error")
	}
	if err := store.SaveToken(ctx, &storage.AccessToken{Token: ""}, time.Hour); err == nil {
		t.Error("SaveToken(empty token) error = nil, want error")
	}
	if err := store.SaveToken(ctx, &storage.AccessToken{Token: "t"}, 0); err == nil {
		t.Error("SaveToken(ttl=0) error = nil, want error")
	}
	if err := store.SaveToken(ctx, &storage.AccessToken{Token: "t"}, -time.Second); err == nil {
		t.Error("SaveToken(negative ttl) error = nil, want error")
	}
}

func TestSaveTokenDuplicateFails(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	if err := store.SaveToken(ctx, &storage.AccessToken{Token: "tok-1"}, time.Hour); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	err := store.SaveToken(ctx, &storage.AccessToken{Token: "tok-1"}, time.Hour)
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("duplicate SaveToken() error = %v, want ErrAlreadyExists", err)
	}
}

func TestGetTokenExpiredRemovedEagerly(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	if err := store.SaveToken(ctx, &storage.AccessToken{Token: "tok-1"}, 30*time.Millisecond); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	_, err := store.GetToken(ctx, "tok-1")
	if !errors.Is(err, storage.ErrTokenNotFound) {
		t.Fatalf("GetToken() after expiry error = %v, want ErrTokenNotFound", err)
	}

	// The expired read must also remove the entry
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.AccessTokens != 0 {
		t.Errorf("AccessTokens = %d after expired read, want 0", stats.AccessTokens)
	}
}

func TestGetTokenJustBeforeExpiry(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	if err := store.SaveToken(ctx, &storage.AccessToken{Token: "tok-1"}, 500*time.Millisecond); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	if _, err := store.GetToken(ctx, "tok-1"); err != nil {
		t.Errorf("GetToken() before expiry error = %v, want nil", err)
	}
}

func TestDeleteTokensByClient(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	for _, tok := range []struct{ token, client string }{
		{"t1", "alpha"}, {"t2", "alpha"}, {"t3", "beta"},
	} {
		if err := store.SaveToken(ctx, &storage.AccessToken{Token: tok.token, ClientID: tok.client}, time.Hour); err != nil {
			t.Fatalf("SaveToken(%q) error = %v", tok.token, err)
		}
	}

	removed, err := store.DeleteTokensByClient(ctx, "alpha")
	if err != nil {
		t.Fatalf("DeleteTokensByClient() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	if _, err := store.GetToken(ctx, "t3"); err != nil {
		t.Errorf("GetToken(t3) error = %v, other client's token must survive", err)
	}
}

// ============================================================
// Refresh tokens
// ============================================================

func TestSaveAndGetRefreshToken(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	rt := &storage.RefreshToken{
		Token:       "refresh-1",
		AccessToken: "tok-1",
		ClientID:    "client-1",
		Scopes:      []string{"read", "write"},
	}
	if err := store.SaveRefreshToken(ctx, rt, 24*time.Hour); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}

	got, err := store.GetRefreshToken(ctx, "refresh-1")
	if err != nil {
		t.Fatalf("GetRefreshToken() error = %v", err)
	}
	if got.AccessToken != "tok-1" {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, "tok-1")
	}
	if len(got.Scopes) != 2 {
		t.Errorf("Scopes = %v, want 2 entries", got.Scopes)
	}
}

func TestAtomicGetAndDeleteRefreshToken(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	rt := &storage.RefreshToken{Token: "refresh-1", AccessToken: "tok-1", ClientID: "client-1"}
	if err := store.SaveRefreshToken(ctx, rt, time.Hour); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}

	got, err := store.AtomicGetAndDeleteRefreshToken(ctx, "refresh-1")
	if err != nil {
		t.Fatalf("AtomicGetAndDeleteRefreshToken() error = %v", err)
	}
	if got.AccessToken != "tok-1" {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, "tok-1")
	}

	// Second attempt must fail: the token is gone
	if _, err := store.AtomicGetAndDeleteRefreshToken(ctx, "refresh-1"); !errors.Is(err, storage.ErrRefreshTokenNotFound) {
		t.Errorf("second AtomicGetAndDeleteRefreshToken() error = %v, want ErrRefreshTokenNotFound", err)
	}
}

func TestAtomicGetAndDeleteRefreshTokenExpired(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	rt := &storage.RefreshToken{Token: "refresh-1"}
	if err := store.SaveRefreshToken(ctx, rt, 30*time.Millisecond); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	_, err := store.AtomicGetAndDeleteRefreshToken(ctx, "refresh-1")
	if !errors.Is(err, storage.ErrExpired) {
		t.Errorf("AtomicGetAndDeleteRefreshToken() after expiry error = %v, want ErrExpired", err)
	}
}

func TestConcurrentAtomicGetAndDeleteSingleWinner(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	rt := &storage.RefreshToken{Token: "contested", ClientID: "client-1"}
	if err := store.SaveRefreshToken(ctx, rt, time.Hour); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}

	const goroutines = 50
	var wg sync.WaitGroup
	var winners atomic64

	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := store.AtomicGetAndDeleteRefreshToken(ctx, "contested"); err == nil {
				winners.inc()
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := winners.load(); got != 1 {
		t.Errorf("winners = %d, want exactly 1", got)
	}
}

// ============================================================
// Authorization codes
// ============================================================

func TestSaveAndGetAuthorizationCode(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{
		Code:          "code-1",
		ClientID:      "client-1",
		RedirectURI:   "http://localhost:8085/callback",
		CodeChallenge: "challenge",
		Scopes:        []string{"read"},
	}
	if err := store.SaveAuthorizationCode(ctx, code, 10*time.Minute); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	got, err := store.GetAuthorizationCode(ctx, "code-1")
	if err != nil {
		t.Fatalf("GetAuthorizationCode() error = %v", err)
	}
	if got.CodeChallenge != "challenge" {
		t.Errorf("CodeChallenge = %q, want %q", got.CodeChallenge, "challenge")
	}
	if got.Used {
		t.Error("Used = true on a freshly stored code")
	}
}

func TestMarkAuthorizationCodeUsed(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{Code: "code-1", ClientID: "client-1"}
	if err := store.SaveAuthorizationCode(ctx, code, 10*time.Minute); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	got, err := store.MarkAuthorizationCodeUsed(ctx, "code-1")
	if err != nil {
		t.Fatalf("MarkAuthorizationCodeUsed() error = %v", err)
	}
	if got.ClientID != "client-1" {
		t.Errorf("ClientID = %q, want %q", got.ClientID, "client-1")
	}

	// Replay must be rejected, and the record must report the owning client
	replay, err := store.MarkAuthorizationCodeUsed(ctx, "code-1")
	if !errors.Is(err, storage.ErrAuthorizationCodeUsed) {
		t.Fatalf("replay error = %v, want ErrAuthorizationCodeUsed", err)
	}
	if replay == nil || replay.ClientID != "client-1" {
		t.Error("replay must still return the code record for audit purposes")
	}
}

func TestMarkAuthorizationCodeUsedNotFound(t *testing.T) {
	store := newConnectedStore(t)

	_, err := store.MarkAuthorizationCodeUsed(context.Background(), "missing")
	if !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("MarkAuthorizationCodeUsed() error = %v, want ErrAuthorizationCodeNotFound", err)
	}
}

func TestMarkAuthorizationCodeUsedExpired(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{Code: "code-1"}
	if err := store.SaveAuthorizationCode(ctx, code, 30*time.Millisecond); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	_, err := store.MarkAuthorizationCodeUsed(ctx, "code-1")
	if !errors.Is(err, storage.ErrExpired) {
		t.Errorf("MarkAuthorizationCodeUsed() after expiry error = %v, want ErrExpired", err)
	}
}

func TestConcurrentMarkUsedSingleWinner(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{Code: "contested", ClientID: "client-1"}
	if err := store.SaveAuthorizationCode(ctx, code, 10*time.Minute); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	const goroutines = 50
	var wg sync.WaitGroup
	var winners, replays atomic64

	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.MarkAuthorizationCodeUsed(ctx, "contested")
			switch {
			case err == nil:
				winners.inc()
			case errors.Is(err, storage.ErrAuthorizationCodeUsed):
				replays.inc()
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := winners.load(); got != 1 {
		t.Errorf("winners = %d, want exactly 1", got)
	}
	if got := replays.load(); got != goroutines-1 {
		t.Errorf("replays = %d, want %d", got, goroutines-1)
	}
}

// ============================================================
// Sweep and stats
// ============================================================

func TestSweepRemovesExpiredEntries(t *testing.T) {
	store := NewWithInterval(50 * time.Millisecond)
	ctx := context.Background()
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = store.Disconnect(ctx) }()

	if err := store.SaveToken(ctx, &storage.AccessToken{Token: "short"}, 20*time.Millisecond); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	if err := store.SaveToken(ctx, &storage.AccessToken{Token: "long"}, time.Hour); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	// Let at least one sweep pass run after the short token expires
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.AccessTokens == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("sweep did not remove the expired token in time")
}

func TestSweepResumesAfterReconnect(t *testing.T) {
	store := NewWithInterval(50 * time.Millisecond)
	ctx := context.Background()
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := store.SaveToken(ctx, &storage.AccessToken{Token: "short"}, 20*time.Millisecond); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	// The expiry schedule must survive the disconnect, not just the data
	if err := store.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	defer func() { _ = store.Disconnect(ctx) }()

	// No reads of the expired token; only the resumed sweep can remove it
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.AccessTokens == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("sweep did not resume after reconnect")
}

func TestStatsCounts(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	if err := store.SaveClient(ctx, &storage.Client{ClientID: "c"}); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}
	if err := store.SaveToken(ctx, &storage.AccessToken{Token: "t"}, time.Hour); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	if err := store.SaveRefreshToken(ctx, &storage.RefreshToken{Token: "r"}, time.Hour); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}
	if err := store.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{Code: "a"}, time.Hour); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := storage.Stats{Clients: 1, AccessTokens: 1, RefreshTokens: 1, AuthorizationCodes: 1}
	if *stats != want {
		t.Errorf("Stats() = %+v, want %+v", *stats, want)
	}

	if err := store.DeleteToken(ctx, "t"); err != nil {
		t.Fatalf("DeleteToken() error = %v", err)
	}
	stats, _ = store.Stats(ctx)
	if stats.AccessTokens != 0 {
		t.Errorf("AccessTokens = %d after delete, want 0", stats.AccessTokens)
	}
}

// atomic64 is a tiny test counter safe for concurrent use.
type atomic64 struct {
	mu sync.Mutex
	n  int64
}

func (a *atomic64) inc() {
	a.mu.Lock()
	a.n++
	a.mu.Unlock()
}

func (a *atomic64) load() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}
