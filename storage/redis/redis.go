package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/mcp-authcore/security"
	"github.com/giantswarm/mcp-authcore/storage"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second

	// DefaultKeyPrefix namespaces all keys so the store can share a Redis
	// with other tenants.
	DefaultKeyPrefix = "authcore:"
)

// Key type segments. Full key shape: "<prefix><type>:<id>".
const (
	keyTypeClient   = "client"
	keyTypeToken    = "token"
	keyTypeRefresh  = "refresh"
	keyTypeCode     = "code"
	keyTypeCodeUsed = "code_used"

	keyTypeClientTokenIndex   = "idx:client_tokens"
	keyTypeClientRefreshIndex = "idx:client_refresh"
)

// Config holds Redis connection configuration.
type Config struct {
	// Addr is the host:port of the Redis server.
	Addr string

	Username string
	Password string
	DB       int

	// KeyPrefix namespaces all keys (default "authcore:").
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store is the Redis-backed implementation of storage.Provider.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *slog.Logger

	// ownsClient is true when Connect created the client from Config and
	// Disconnect should close it.
	ownsClient bool
	cfg        Config
	connected  bool
}

// Compile-time interface check
var _ storage.Provider = (*Store)(nil)

// New creates a Redis store from connection configuration. The connection is
// established by Connect.
func New(cfg Config) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	return &Store{
		keyPrefix:  cfg.KeyPrefix,
		cfg:        cfg,
		ownsClient: true,
		logger:     slog.Default(),
	}
}

// NewWithClient creates a Redis store around a pre-configured client.
// Useful for testing with miniredis and for callers managing their own
// connection pool; Disconnect will not close an injected client.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    slog.Default(),
	}
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Connect establishes and verifies the Redis connection. Idempotent.
func (s *Store) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}

	if s.client == nil {
		s.client = redis.NewClient(&redis.Options{
			Addr:         s.cfg.Addr,
			Username:     s.cfg.Username,
			Password:     s.cfg.Password,
			DB:           s.cfg.DB,
			DialTimeout:  s.cfg.DialTimeout,
			ReadTimeout:  s.cfg.ReadTimeout,
			WriteTimeout: s.cfg.WriteTimeout,
		})
	}

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: failed to connect to redis: %w", storage.ErrUnavailable, err)
	}

	s.connected = true
	s.logger.Debug("Redis store connected", "key_prefix", s.keyPrefix)
	return nil
}

// Disconnect closes the connection if this store owns it. Idempotent.
func (s *Store) Disconnect(ctx context.Context) error {
	if !s.connected {
		return nil
	}
	s.connected = false

	if s.ownsClient && s.client != nil {
		if err := s.client.Close(); err != nil {
			return fmt.Errorf("failed to close redis client: %w", err)
		}
		s.client = nil
	}

	s.logger.Debug("Redis store disconnected")
	return nil
}

func (s *Store) key(keyType, id string) string {
	return s.keyPrefix + keyType + ":" + id
}

// wrapUnavailable classifies transport-level failures as retryable.
func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", storage.ErrUnavailable, op, err)
}

// ============================================================
// Serialized record shapes
// ============================================================

type storedClient struct {
	ClientID         string   `json:"client_id"`
	ClientSecretHash string   `json:"client_secret_hash,omitempty"`
	ClientName       string   `json:"client_name,omitempty"`
	RedirectURIs     []string `json:"redirect_uris,omitempty"`
	AllowedScopes    []string `json:"allowed_scopes,omitempty"`
	CreatedAt        int64    `json:"created_at"`
}

type storedAccessToken struct {
	Token     string   `json:"token"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes,omitempty"`
	CreatedAt int64    `json:"created_at"`
	ExpiresAt int64    `json:"expires_at"`
}

type storedRefreshToken struct {
	Token       string   `json:"token"`
	AccessToken string   `json:"access_token"`
	ClientID    string   `json:"client_id"`
	Scopes      []string `json:"scopes,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	ExpiresAt   int64    `json:"expires_at"`
}

type storedAuthorizationCode struct {
	Code          string   `json:"code"`
	ClientID      string   `json:"client_id"`
	RedirectURI   string   `json:"redirect_uri"`
	CodeChallenge string   `json:"code_challenge"`
	Scopes        []string `json:"scopes,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	ExpiresAt     int64    `json:"expires_at"`
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a registered client. SETNX enforces create-only
// semantics across all server instances.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	createdAt := client.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	data, err := json.Marshal(storedClient{
		ClientID:         client.ClientID,
		ClientSecretHash: client.ClientSecretHash,
		ClientName:       client.ClientName,
		RedirectURIs:     client.RedirectURIs,
		AllowedScopes:    client.AllowedScopes,
		CreatedAt:        createdAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	// Clients don't expire (TTL=0)
	created, err := s.client.SetNX(ctx, s.key(keyTypeClient, client.ClientID), data, 0).Result()
	if err != nil {
		return wrapUnavailable("save client", err)
	}
	if !created {
		return fmt.Errorf("%w: client %s", storage.ErrAlreadyExists, client.ClientID)
	}

	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeClient, clientID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		}
		return nil, wrapUnavailable("get client", err)
	}

	var stored storedClient
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}

	return &storage.Client{
		ClientID:         stored.ClientID,
		ClientSecretHash: stored.ClientSecretHash,
		ClientName:       stored.ClientName,
		RedirectURIs:     stored.RedirectURIs,
		AllowedScopes:    stored.AllowedScopes,
		CreatedAt:        millisToTime(stored.CreatedAt),
	}, nil
}

// DeleteClient removes a client registration. Idempotent.
func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	if err := s.client.Del(ctx, s.key(keyTypeClient, clientID)).Err(); err != nil {
		return wrapUnavailable("delete client", err)
	}
	return nil
}

// ListClients lists all registered clients via incremental SCAN.
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	var clients []*storage.Client

	iter := s.client.Scan(ctx, 0, s.keyPrefix+keyTypeClient+":*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // deleted between scan and read
			}
			return nil, wrapUnavailable("list clients", err)
		}

		var stored storedClient
		if err := json.Unmarshal(data, &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal client: %w", err)
		}

		clients = append(clients, &storage.Client{
			ClientID:         stored.ClientID,
			ClientSecretHash: stored.ClientSecretHash,
			ClientName:       stored.ClientName,
			RedirectURIs:     stored.RedirectURIs,
			AllowedScopes:    stored.AllowedScopes,
			CreatedAt:        millisToTime(stored.CreatedAt),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, wrapUnavailable("list clients", err)
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

// SaveToken stores an access token with a native Redis TTL.
func (s *Store) SaveToken(ctx context.Context, token *storage.AccessToken, ttl time.Duration) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	createdAt := token.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	expiresAt := time.Now().Add(ttl)

	data, err := json.Marshal(storedAccessToken{
		Token:     token.Token,
		ClientID:  token.ClientID,
		Scopes:    token.Scopes,
		CreatedAt: createdAt.UnixMilli(),
		ExpiresAt: expiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal access token: %w", err)
	}

	key := s.key(keyTypeToken, token.Token)
	created, err := s.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return wrapUnavailable("save token", err)
	}
	if !created {
		return fmt.Errorf("%w: access token", storage.ErrAlreadyExists)
	}

	// Secondary index for revoke-by-client. Best effort TTL refresh keeps the
	// set from outliving its last token by much.
	if token.ClientID != "" {
		idxKey := s.key(keyTypeClientTokenIndex, token.ClientID)
		if err := s.client.SAdd(ctx, idxKey, token.Token).Err(); err != nil {
			_ = s.client.Del(ctx, key).Err()
			return wrapUnavailable("index token", err)
		}
		_ = s.client.Expire(ctx, idxKey, ttl).Err()
	}

	return nil
}

// GetToken retrieves an access token. An absent or expired token is
// reported identically as not found.
func (s *Store) GetToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeToken, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, wrapUnavailable("get token", err)
	}

	var stored storedAccessToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access token: %w", err)
	}

	// Redis TTL expiry has second granularity; the stored timestamp is
	// authoritative.
	if security.IsExpired(millisToTime(stored.ExpiresAt)) {
		_ = s.client.Del(ctx, s.key(keyTypeToken, token)).Err()
		return nil, fmt.Errorf("%w: expired", storage.ErrTokenNotFound)
	}

	return &storage.AccessToken{
		Token:     stored.Token,
		ClientID:  stored.ClientID,
		Scopes:    stored.Scopes,
		CreatedAt: millisToTime(stored.CreatedAt),
		ExpiresAt: millisToTime(stored.ExpiresAt),
	}, nil
}

// DeleteToken removes an access token. Idempotent.
func (s *Store) DeleteToken(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(keyTypeToken, token)).Err(); err != nil {
		return wrapUnavailable("delete token", err)
	}
	return nil
}

// DeleteTokensByClient removes all access tokens owned by a client using the
// secondary index. Returns the number of live tokens removed.
func (s *Store) DeleteTokensByClient(ctx context.Context, clientID string) (int, error) {
	idxKey := s.key(keyTypeClientTokenIndex, clientID)

	members, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, wrapUnavailable("delete tokens by client", err)
	}

	removed := 0
	for _, token := range members {
		n, err := s.client.Del(ctx, s.key(keyTypeToken, token)).Result()
		if err != nil {
			return removed, wrapUnavailable("delete tokens by client", err)
		}
		// Stale index members (token already expired) don't count
		removed += int(n)
	}

	_ = s.client.Del(ctx, idxKey).Err()
	return removed, nil
}

// ============================================================
// RefreshTokenStore Implementation
// ============================================================

// SaveRefreshToken stores a refresh token with a native Redis TTL.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken, ttl time.Duration) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	createdAt := token.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	expiresAt := time.Now().Add(ttl)

	data, err := json.Marshal(storedRefreshToken{
		Token:       token.Token,
		AccessToken: token.AccessToken,
		ClientID:    token.ClientID,
		Scopes:      token.Scopes,
		CreatedAt:   createdAt.UnixMilli(),
		ExpiresAt:   expiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	key := s.key(keyTypeRefresh, token.Token)
	created, err := s.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return wrapUnavailable("save refresh token", err)
	}
	if !created {
		return fmt.Errorf("%w: refresh token", storage.ErrAlreadyExists)
	}

	if token.ClientID != "" {
		idxKey := s.key(keyTypeClientRefreshIndex, token.ClientID)
		if err := s.client.SAdd(ctx, idxKey, token.Token).Err(); err != nil {
			_ = s.client.Del(ctx, key).Err()
			return wrapUnavailable("index refresh token", err)
		}
		_ = s.client.Expire(ctx, idxKey, ttl).Err()
	}

	return nil
}

// GetRefreshToken retrieves a refresh token.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeRefresh, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrRefreshTokenNotFound
		}
		return nil, wrapUnavailable("get refresh token", err)
	}

	stored, err := unmarshalRefreshToken(data)
	if err != nil {
		return nil, err
	}

	if security.IsExpired(stored.ExpiresAt) {
		_ = s.client.Del(ctx, s.key(keyTypeRefresh, token)).Err()
		return nil, fmt.Errorf("%w: expired", storage.ErrRefreshTokenNotFound)
	}

	return stored, nil
}

func unmarshalRefreshToken(data []byte) (*storage.RefreshToken, error) {
	var stored storedRefreshToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}

	return &storage.RefreshToken{
		Token:       stored.Token,
		AccessToken: stored.AccessToken,
		ClientID:    stored.ClientID,
		Scopes:      stored.Scopes,
		CreatedAt:   millisToTime(stored.CreatedAt),
		ExpiresAt:   millisToTime(stored.ExpiresAt),
	}, nil
}

// DeleteRefreshToken removes a refresh token. Idempotent.
func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(keyTypeRefresh, token)).Err(); err != nil {
		return wrapUnavailable("delete refresh token", err)
	}
	return nil
}

// DeleteRefreshTokensByClient removes all refresh tokens owned by a client.
func (s *Store) DeleteRefreshTokensByClient(ctx context.Context, clientID string) (int, error) {
	idxKey := s.key(keyTypeClientRefreshIndex, clientID)

	members, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, wrapUnavailable("delete refresh tokens by client", err)
	}

	removed := 0
	for _, token := range members {
		n, err := s.client.Del(ctx, s.key(keyTypeRefresh, token)).Result()
		if err != nil {
			return removed, wrapUnavailable("delete refresh tokens by client", err)
		}
		removed += int(n)
	}

	_ = s.client.Del(ctx, idxKey).Err()
	return removed, nil
}

// getAndDeleteScript atomically reads and deletes a key, so exactly one of
// many concurrent callers receives the value.
var getAndDeleteScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if data then
	redis.call('DEL', KEYS[1])
end
return data
`)

// AtomicGetAndDeleteRefreshToken atomically retrieves and deletes a refresh
// token. The Lua script runs as one unit on the server, so rotation is safe
// across multiple server instances sharing this Redis.
func (s *Store) AtomicGetAndDeleteRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	result, err := getAndDeleteScript.Run(ctx, s.client, []string{s.key(keyTypeRefresh, token)}).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: not found or already rotated", storage.ErrRefreshTokenNotFound)
		}
		return nil, wrapUnavailable("atomic get-and-delete refresh token", err)
	}

	stored, err := unmarshalRefreshToken([]byte(result))
	if err != nil {
		return nil, err
	}

	if security.IsExpired(stored.ExpiresAt) {
		return nil, fmt.Errorf("%w: refresh token", storage.ErrExpired)
	}

	return stored, nil
}

// ============================================================
// FlowStore Implementation
// ============================================================

// SaveAuthorizationCode stores an issued authorization code with a native
// Redis TTL.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode, ttl time.Duration) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	createdAt := code.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	expiresAt := time.Now().Add(ttl)

	data, err := json.Marshal(storedAuthorizationCode{
		Code:          code.Code,
		ClientID:      code.ClientID,
		RedirectURI:   code.RedirectURI,
		CodeChallenge: code.CodeChallenge,
		Scopes:        code.Scopes,
		CreatedAt:     createdAt.UnixMilli(),
		ExpiresAt:     expiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.key(keyTypeCode, code.Code), data, ttl).Result()
	if err != nil {
		return wrapUnavailable("save authorization code", err)
	}
	if !created {
		return fmt.Errorf("%w: authorization code", storage.ErrAlreadyExists)
	}

	return nil
}

// GetAuthorizationCode retrieves an authorization code without consuming it.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeCode, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrAuthorizationCodeNotFound
		}
		return nil, wrapUnavailable("get authorization code", err)
	}

	stored, err := unmarshalAuthorizationCode(data)
	if err != nil {
		return nil, err
	}

	if security.IsExpired(stored.ExpiresAt) {
		_ = s.client.Del(ctx, s.key(keyTypeCode, code)).Err()
		return nil, fmt.Errorf("%w: authorization code", storage.ErrExpired)
	}

	used, err := s.client.Exists(ctx, s.key(keyTypeCodeUsed, code)).Result()
	if err != nil {
		return nil, wrapUnavailable("get authorization code", err)
	}
	stored.Used = used > 0

	return stored, nil
}

func unmarshalAuthorizationCode(data []byte) (*storage.AuthorizationCode, error) {
	var stored storedAuthorizationCode
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}

	return &storage.AuthorizationCode{
		Code:          stored.Code,
		ClientID:      stored.ClientID,
		RedirectURI:   stored.RedirectURI,
		CodeChallenge: stored.CodeChallenge,
		Scopes:        stored.Scopes,
		CreatedAt:     millisToTime(stored.CreatedAt),
		ExpiresAt:     millisToTime(stored.ExpiresAt),
	}, nil
}

// DeleteAuthorizationCode removes an authorization code and its used marker.
// Idempotent.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	err := s.client.Del(ctx, s.key(keyTypeCode, code), s.key(keyTypeCodeUsed, code)).Err()
	if err != nil {
		return wrapUnavailable("delete authorization code", err)
	}
	return nil
}

// markCodeUsedScript atomically checks a code's used marker and sets it.
// A separate marker key carries the single-use state so the script never has
// to parse the record JSON. The marker inherits the code's remaining TTL.
//
// Returns {0, ''} when the code does not exist, {2, record} when it was
// already used, {1, record} for the single winner.
var markCodeUsedScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
	return {0, ''}
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return {2, data}
end
redis.call('SET', KEYS[2], '1')
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[2], ttl)
end
return {1, data}
`)

// MarkAuthorizationCodeUsed atomically checks that a code is unused and
// marks it used. Exactly one concurrent caller wins, even across multiple
// server instances.
func (s *Store) MarkAuthorizationCodeUsed(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	result, err := markCodeUsedScript.Run(ctx, s.client,
		[]string{s.key(keyTypeCode, code), s.key(keyTypeCodeUsed, code)}).Slice()
	if err != nil {
		return nil, wrapUnavailable("mark authorization code used", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected script result: %v", result)
	}

	status, _ := result[0].(int64)
	payload, _ := result[1].(string)

	if status == 0 {
		return nil, storage.ErrAuthorizationCodeNotFound
	}

	stored, err := unmarshalAuthorizationCode([]byte(payload))
	if err != nil {
		return nil, err
	}

	if security.IsExpired(stored.ExpiresAt) {
		_ = s.DeleteAuthorizationCode(ctx, code)
		return nil, fmt.Errorf("%w: authorization code", storage.ErrExpired)
	}

	if status == 2 {
		stored.Used = true
		return stored, storage.ErrAuthorizationCodeUsed
	}

	stored.Used = true
	return stored, nil
}

// ============================================================
// Stats
// ============================================================

// Stats counts live entries per kind via incremental SCAN.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{}

	counts := []struct {
		keyType string
		dest    *int64
	}{
		{keyTypeClient, &stats.Clients},
		{keyTypeToken, &stats.AccessTokens},
		{keyTypeRefresh, &stats.RefreshTokens},
		{keyTypeCode, &stats.AuthorizationCodes},
	}

	for _, c := range counts {
		iter := s.client.Scan(ctx, 0, s.keyPrefix+c.keyType+":*", 100).Iterator()
		for iter.Next(ctx) {
			*c.dest++
		}
		if err := iter.Err(); err != nil {
			return nil, wrapUnavailable("stats", err)
		}
	}

	return stats, nil
}
