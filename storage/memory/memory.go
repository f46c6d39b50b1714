package memory

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-authcore/instrumentation"
	"github.com/giantswarm/mcp-authcore/internal/util"
	"github.com/giantswarm/mcp-authcore/security"
	"github.com/giantswarm/mcp-authcore/storage"
)

const (
	// idLogLength is the number of characters to include when logging
	// credential identifiers. Enough uniqueness for debugging while keeping
	// logs secure.
	idLogLength = 8

	// DefaultSweepInterval is how often the background sweep removes expired
	// entries and releases their scheduled expiry work.
	DefaultSweepInterval = 60 * time.Second
)

// Store is the in-memory implementation of storage.Provider.
type Store struct {
	mu sync.RWMutex

	clients       map[string]*storage.Client
	tokens        map[string]*storage.AccessToken
	refreshTokens map[string]*storage.RefreshToken
	authCodes     map[string]*storage.AuthorizationCode

	// One sorted-by-expiry structure swept by one periodic task, instead of
	// a timer per credential.
	expiries expiryHeap

	// Atomic counters back Stats and the instrumentation gauges, so reading
	// counts never contends with the write path.
	clientsCount       atomic.Int64
	tokensCount        atomic.Int64
	refreshTokensCount atomic.Int64
	authCodesCount     atomic.Int64

	sweepInterval time.Duration
	connected     bool
	stopSweep     chan struct{}
	logger        *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// Compile-time interface check
var _ storage.Provider = (*Store)(nil)

// New creates a new in-memory store with the default sweep interval (60s).
// The store must be connected before the background sweep runs.
func New() *Store {
	return NewWithInterval(DefaultSweepInterval)
}

// NewWithInterval creates a new in-memory store with a custom sweep interval.
// If sweepInterval is 0 or negative, the default of 60 seconds is used.
func NewWithInterval(sweepInterval time.Duration) *Store {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	return &Store{
		clients:       make(map[string]*storage.Client),
		tokens:        make(map[string]*storage.AccessToken),
		refreshTokens: make(map[string]*storage.RefreshToken),
		authCodes:     make(map[string]*storage.AuthorizationCode),
		sweepInterval: sweepInterval,
		logger:        slog.Default(),
	}
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStoreSizeCallbacks(
			func() int64 { return s.clientsCount.Load() },
			func() int64 { return s.tokensCount.Load() },
			func() int64 { return s.refreshTokensCount.Load() },
			func() int64 { return s.authCodesCount.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register store size callbacks", "error", err)
		}
	}
}

// Connect starts the background sweep. Idempotent.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	s.stopSweep = make(chan struct{})
	s.connected = true
	go s.sweepLoop(s.stopSweep)

	s.logger.Debug("In-memory store connected", "sweep_interval", s.sweepInterval)
	return nil
}

// Disconnect stops the sweep loop. Stored entries and their scheduled
// expiry work survive a disconnect/reconnect cycle; only the background
// goroutine is cancelled, and a later Connect resumes sweeping the same
// schedule. Idempotent.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	close(s.stopSweep)
	s.stopSweep = nil
	s.connected = false

	s.logger.Debug("In-memory store disconnected")
	return nil
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a registered client. Clients are immutable after
// registration, so saving an existing ID fails with ErrAlreadyExists.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil || client.ClientID == "" {
		err = fmt.Errorf("invalid client")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.saveClientLocked(client)
	return err
}

func (s *Store) saveClientLocked(client *storage.Client) error {
	if _, exists := s.clients[client.ClientID]; exists {
		return fmt.Errorf("%w: client %s", storage.ErrAlreadyExists, client.ClientID)
	}

	s.clients[client.ClientID] = client.Clone()
	s.clientsCount.Add(1)

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}

	return client.Clone(), nil
}

// DeleteClient removes a client registration. Idempotent.
func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteClientLocked(clientID)
	return nil
}

func (s *Store) deleteClientLocked(clientID string) {
	if _, existed := s.clients[clientID]; existed {
		delete(s.clients, clientID)
		s.clientsCount.Add(-1)
		s.logger.Debug("Deleted client", "client_id", clientID)
	}
}

// ListClients lists all registered clients
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client.Clone())
	}

	return clients, nil
}

// ValidateClientSecret validates a client's secret using bcrypt.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	client, err := s.GetClient(ctx, clientID)
	return storage.VerifyClientSecret(client, err, clientSecret)
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveToken stores an access token with expiry at now + ttl.
func (s *Store) SaveToken(ctx context.Context, token *storage.AccessToken, ttl time.Duration) error {
	ctx, span := s.startStorageSpan(ctx, "save_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_token", err, startTime)
	}()

	if token == nil || token.Token == "" {
		err = fmt.Errorf("invalid access token")
		return err
	}
	if ttl <= 0 {
		err = fmt.Errorf("ttl must be positive, got %s", ttl)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.saveTokenLocked(token, ttl)
	return err
}

func (s *Store) saveTokenLocked(token *storage.AccessToken, ttl time.Duration) error {
	if existing, exists := s.tokens[token.Token]; exists {
		if !security.IsExpired(existing.ExpiresAt) {
			return fmt.Errorf("%w: access token", storage.ErrAlreadyExists)
		}
		// Expired remnant occupies the key; reclaim it first.
		s.removeTokenLocked(token.Token)
	}

	stored := token.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.ExpiresAt = time.Now().Add(ttl)

	s.tokens[stored.Token] = stored
	s.tokensCount.Add(1)
	heap.Push(&s.expiries, expiryEntry{at: stored.ExpiresAt, kind: kindToken, key: stored.Token})

	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(stored.Token, idLogLength),
		"client_id", stored.ClientID,
		"expires_at", stored.ExpiresAt)
	return nil
}

// GetToken retrieves a copy of the stored token. An absent or expired token
// is reported identically as not found; reading an expired entry removes it.
func (s *Store) GetToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	ctx, span := s.startStorageSpan(ctx, "get_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_token", err, startTime)
	}()

	s.mu.Lock() // write lock: expired reads remove eagerly
	defer s.mu.Unlock()

	stored, ok := s.tokens[token]
	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}

	if security.IsExpired(stored.ExpiresAt) {
		s.removeTokenLocked(token)
		err = fmt.Errorf("%w: expired", storage.ErrTokenNotFound)
		return nil, err
	}

	return stored.Clone(), nil
}

// DeleteToken removes an access token. Idempotent.
func (s *Store) DeleteToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeTokenLocked(token)
	return nil
}

func (s *Store) removeTokenLocked(token string) {
	if _, existed := s.tokens[token]; existed {
		delete(s.tokens, token)
		s.tokensCount.Add(-1)
	}
}

// DeleteTokensByClient removes all access tokens owned by a client and
// returns the number removed.
func (s *Store) DeleteTokensByClient(ctx context.Context, clientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, token := range s.tokens {
		if token.ClientID == clientID {
			s.removeTokenLocked(key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Deleted access tokens by client", "client_id", clientID, "count", removed)
	}
	return removed, nil
}

// ============================================================
// RefreshTokenStore Implementation
// ============================================================

// SaveRefreshToken stores a refresh token mapping with expiry at now + ttl.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken, ttl time.Duration) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveRefreshTokenLocked(token, ttl)
}

func (s *Store) saveRefreshTokenLocked(token *storage.RefreshToken, ttl time.Duration) error {
	if existing, exists := s.refreshTokens[token.Token]; exists {
		if !security.IsExpired(existing.ExpiresAt) {
			return fmt.Errorf("%w: refresh token", storage.ErrAlreadyExists)
		}
		s.removeRefreshTokenLocked(token.Token)
	}

	stored := token.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.ExpiresAt = time.Now().Add(ttl)

	s.refreshTokens[stored.Token] = stored
	s.refreshTokensCount.Add(1)
	heap.Push(&s.expiries, expiryEntry{at: stored.ExpiresAt, kind: kindRefreshToken, key: stored.Token})

	s.logger.Debug("Saved refresh token",
		"token_prefix", util.SafeTruncate(stored.Token, idLogLength),
		"client_id", stored.ClientID,
		"expires_at", stored.ExpiresAt)
	return nil
}

// GetRefreshToken retrieves a copy of the stored refresh token.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.refreshTokens[token]
	if !ok {
		return nil, storage.ErrRefreshTokenNotFound
	}

	if security.IsExpired(stored.ExpiresAt) {
		s.removeRefreshTokenLocked(token)
		return nil, fmt.Errorf("%w: expired", storage.ErrRefreshTokenNotFound)
	}

	return stored.Clone(), nil
}

// DeleteRefreshToken removes a refresh token. Idempotent.
func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeRefreshTokenLocked(token)
	return nil
}

func (s *Store) removeRefreshTokenLocked(token string) {
	if _, existed := s.refreshTokens[token]; existed {
		delete(s.refreshTokens, token)
		s.refreshTokensCount.Add(-1)
	}
}

// DeleteRefreshTokensByClient removes all refresh tokens owned by a client
// and returns the number removed.
func (s *Store) DeleteRefreshTokensByClient(ctx context.Context, clientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, token := range s.refreshTokens {
		if token.ClientID == clientID {
			s.removeRefreshTokenLocked(key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Deleted refresh tokens by client", "client_id", clientID, "count", removed)
	}
	return removed, nil
}

// AtomicGetAndDeleteRefreshToken atomically retrieves and deletes a refresh
// token. This is the synchronization point for rotate-on-use: only ONE
// concurrent request can succeed, all others observe not-found.
func (s *Store) AtomicGetAndDeleteRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	ctx, span := s.startStorageSpan(ctx, "atomic_get_delete_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "atomic_get_delete_refresh_token", err, startTime)
	}()

	s.mu.Lock() // MUST use write lock for atomic get-and-delete
	defer s.mu.Unlock()

	stored, ok := s.refreshTokens[token]
	if !ok {
		err = fmt.Errorf("%w: not found or already rotated", storage.ErrRefreshTokenNotFound)
		return nil, err
	}

	if security.IsExpired(stored.ExpiresAt) {
		s.removeRefreshTokenLocked(token)
		err = fmt.Errorf("%w: refresh token", storage.ErrExpired)
		return nil, err
	}

	// ATOMIC DELETE - ensures only one request succeeds
	result := stored.Clone()
	s.removeRefreshTokenLocked(token)

	s.logger.Debug("Atomically retrieved and deleted refresh token",
		"token_prefix", util.SafeTruncate(token, idLogLength),
		"client_id", result.ClientID)

	return result, nil
}

// ============================================================
// FlowStore Implementation
// ============================================================

// SaveAuthorizationCode stores an issued authorization code with expiry at
// now + ttl.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode, ttl time.Duration) error {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_code", err, startTime)
	}()

	if code == nil || code.Code == "" {
		err = fmt.Errorf("invalid authorization code")
		return err
	}
	if ttl <= 0 {
		err = fmt.Errorf("ttl must be positive, got %s", ttl)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.saveAuthorizationCodeLocked(code, ttl)
	return err
}

func (s *Store) saveAuthorizationCodeLocked(code *storage.AuthorizationCode, ttl time.Duration) error {
	if existing, exists := s.authCodes[code.Code]; exists {
		if !security.IsExpired(existing.ExpiresAt) {
			return fmt.Errorf("%w: authorization code", storage.ErrAlreadyExists)
		}
		s.removeAuthorizationCodeLocked(code.Code)
	}

	stored := code.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.ExpiresAt = time.Now().Add(ttl)

	s.authCodes[stored.Code] = stored
	s.authCodesCount.Add(1)
	heap.Push(&s.expiries, expiryEntry{at: stored.ExpiresAt, kind: kindAuthorizationCode, key: stored.Code})

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(stored.Code, idLogLength),
		"client_id", stored.ClientID)
	return nil
}

// GetAuthorizationCode retrieves a copy of the stored code without modifying
// it. For actual code exchange, use MarkAuthorizationCodeUsed instead.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.Lock() // write lock: expired reads remove eagerly
	defer s.mu.Unlock()

	stored, ok := s.authCodes[code]
	if !ok {
		return nil, storage.ErrAuthorizationCodeNotFound
	}

	if security.IsExpired(stored.ExpiresAt) {
		s.removeAuthorizationCodeLocked(code)
		return nil, fmt.Errorf("%w: authorization code", storage.ErrExpired)
	}

	return stored.Clone(), nil
}

// DeleteAuthorizationCode removes an authorization code. Idempotent.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeAuthorizationCodeLocked(code)
	return nil
}

func (s *Store) removeAuthorizationCodeLocked(code string) {
	if _, existed := s.authCodes[code]; existed {
		delete(s.authCodes, code)
		s.authCodesCount.Add(-1)
	}
}

// MarkAuthorizationCodeUsed atomically checks that a code is unused and
// flips its Used flag. Exactly one caller observes success.
//
// SECURITY: The check-and-flip runs under the write lock; only ONE
// concurrent exchange can win, all others receive ErrAuthorizationCodeUsed.
// The flag never flips back to false.
func (s *Store) MarkAuthorizationCodeUsed(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "mark_authorization_code_used")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "mark_authorization_code_used", err, startTime)
	}()

	s.mu.Lock() // MUST use write lock for atomic check-and-set
	defer s.mu.Unlock()

	stored, ok := s.authCodes[code]
	if !ok {
		err = storage.ErrAuthorizationCodeNotFound
		return nil, err
	}

	if security.IsExpired(stored.ExpiresAt) {
		s.removeAuthorizationCodeLocked(code)
		err = fmt.Errorf("%w: authorization code", storage.ErrExpired)
		return nil, err
	}

	if stored.Used {
		// Return the record alongside the error so the caller can log the
		// reuse attempt with the owning client.
		err = storage.ErrAuthorizationCodeUsed
		return stored.Clone(), err
	}

	stored.Used = true
	s.logger.Debug("Marked authorization code as used",
		"code_prefix", util.SafeTruncate(code, idLogLength))

	return stored.Clone(), nil
}

// ============================================================
// Stats
// ============================================================

// Stats returns live entity counts from the atomic counters. It never takes
// the store lock, so it cannot block behind in-flight writes.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	return &storage.Stats{
		Clients:            s.clientsCount.Load(),
		AccessTokens:       s.tokensCount.Load(),
		RefreshTokens:      s.refreshTokensCount.Load(),
		AuthorizationCodes: s.authCodesCount.Load(),
	}, nil
}

// ============================================================
// Sweep
// ============================================================

func (s *Store) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep pops due entries off the expiry heap and removes credentials whose
// expiry has actually passed. Stale heap entries (credential deleted early
// or re-saved with a later expiry) are discarded without effect; the live
// record is always re-checked before removal.
func (s *Store) sweep() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0
	for s.expiries.Len() > 0 && !s.expiries[0].at.After(now) {
		entry := heap.Pop(&s.expiries).(expiryEntry)

		switch entry.kind {
		case kindToken:
			if stored, ok := s.tokens[entry.key]; ok && security.IsExpired(stored.ExpiresAt) {
				s.removeTokenLocked(entry.key)
				cleaned++
			}
		case kindRefreshToken:
			if stored, ok := s.refreshTokens[entry.key]; ok && security.IsExpired(stored.ExpiresAt) {
				s.removeRefreshTokenLocked(entry.key)
				cleaned++
			}
		case kindAuthorizationCode:
			if stored, ok := s.authCodes[entry.key]; ok && security.IsExpired(stored.ExpiresAt) {
				s.removeAuthorizationCodeLocked(entry.key)
				cleaned++
			}
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Swept expired entries", "count", cleaned, "heap_remaining", s.expiries.Len())
	}
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else if span != nil {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
