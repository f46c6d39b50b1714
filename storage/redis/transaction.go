package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/giantswarm/mcp-authcore/storage"
)

// txOp is one buffered mutation. enqueue adds the operation's commands to
// the pipeline and returns a check run after EXEC to surface per-command
// failures such as key collisions.
type txOp struct {
	enqueue func(pipe goredis.Pipeliner) func() error
}

// transaction buffers writes and applies them through a Redis MULTI/EXEC
// pipeline on Commit, so all writes become visible together. Reads during an
// open transaction go to Redis directly and do not observe buffered writes.
type transaction struct {
	id    string
	store *Store

	mu     sync.Mutex
	ops    []txOp
	closed bool
}

var _ storage.Tx = (*transaction)(nil)

// BeginTx starts a buffered transaction against the store.
func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx := &transaction{
		id:    uuid.NewString(),
		store: s,
	}

	s.logger.Debug("Began transaction", "tx_id", tx.id)
	return tx, nil
}

// ID returns the unique transaction identifier
func (t *transaction) ID() string {
	return t.id
}

func (t *transaction) add(op txOp) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return storage.ErrTransactionClosed
	}

	t.ops = append(t.ops, op)
	return nil
}

// SaveClient buffers a client save
func (t *transaction) SaveClient(client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	cloned := client.Clone()
	return t.add(txOp{enqueue: func(pipe goredis.Pipeliner) func() error {
		createdAt := cloned.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		data, err := json.Marshal(storedClient{
			ClientID:         cloned.ClientID,
			ClientSecretHash: cloned.ClientSecretHash,
			ClientName:       cloned.ClientName,
			RedirectURIs:     cloned.RedirectURIs,
			AllowedScopes:    cloned.AllowedScopes,
			CreatedAt:        createdAt.UnixMilli(),
		})
		if err != nil {
			return func() error { return err }
		}

		cmd := pipe.SetNX(context.Background(), t.store.key(keyTypeClient, cloned.ClientID), data, 0)
		return func() error {
			created, err := cmd.Result()
			if err != nil {
				return wrapUnavailable("save client", err)
			}
			if !created {
				return fmt.Errorf("%w: client %s", storage.ErrAlreadyExists, cloned.ClientID)
			}
			return nil
		}
	}})
}

// DeleteClient buffers a client deletion
func (t *transaction) DeleteClient(clientID string) error {
	return t.add(t.delOp(t.store.key(keyTypeClient, clientID)))
}

// SaveToken buffers an access token save
func (t *transaction) SaveToken(token *storage.AccessToken, ttl time.Duration) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	cloned := token.Clone()
	return t.add(txOp{enqueue: func(pipe goredis.Pipeliner) func() error {
		createdAt := cloned.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		data, err := json.Marshal(storedAccessToken{
			Token:     cloned.Token,
			ClientID:  cloned.ClientID,
			Scopes:    cloned.Scopes,
			CreatedAt: createdAt.UnixMilli(),
			ExpiresAt: time.Now().Add(ttl).UnixMilli(),
		})
		if err != nil {
			return func() error { return err }
		}

		ctx := context.Background()
		cmd := pipe.SetNX(ctx, t.store.key(keyTypeToken, cloned.Token), data, ttl)
		if cloned.ClientID != "" {
			idxKey := t.store.key(keyTypeClientTokenIndex, cloned.ClientID)
			pipe.SAdd(ctx, idxKey, cloned.Token)
			pipe.Expire(ctx, idxKey, ttl)
		}
		return func() error {
			created, err := cmd.Result()
			if err != nil {
				return wrapUnavailable("save token", err)
			}
			if !created {
				return fmt.Errorf("%w: access token", storage.ErrAlreadyExists)
			}
			return nil
		}
	}})
}

// DeleteToken buffers an access token deletion
func (t *transaction) DeleteToken(token string) error {
	return t.add(t.delOp(t.store.key(keyTypeToken, token)))
}

// SaveRefreshToken buffers a refresh token save
func (t *transaction) SaveRefreshToken(token *storage.RefreshToken, ttl time.Duration) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	cloned := token.Clone()
	return t.add(txOp{enqueue: func(pipe goredis.Pipeliner) func() error {
		createdAt := cloned.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		data, err := json.Marshal(storedRefreshToken{
			Token:       cloned.Token,
			AccessToken: cloned.AccessToken,
			ClientID:    cloned.ClientID,
			Scopes:      cloned.Scopes,
			CreatedAt:   createdAt.UnixMilli(),
			ExpiresAt:   time.Now().Add(ttl).UnixMilli(),
		})
		if err != nil {
			return func() error { return err }
		}

		ctx := context.Background()
		cmd := pipe.SetNX(ctx, t.store.key(keyTypeRefresh, cloned.Token), data, ttl)
		if cloned.ClientID != "" {
			idxKey := t.store.key(keyTypeClientRefreshIndex, cloned.ClientID)
			pipe.SAdd(ctx, idxKey, cloned.Token)
			pipe.Expire(ctx, idxKey, ttl)
		}
		return func() error {
			created, err := cmd.Result()
			if err != nil {
				return wrapUnavailable("save refresh token", err)
			}
			if !created {
				return fmt.Errorf("%w: refresh token", storage.ErrAlreadyExists)
			}
			return nil
		}
	}})
}

// DeleteRefreshToken buffers a refresh token deletion
func (t *transaction) DeleteRefreshToken(token string) error {
	return t.add(t.delOp(t.store.key(keyTypeRefresh, token)))
}

// SaveAuthorizationCode buffers an authorization code save
func (t *transaction) SaveAuthorizationCode(code *storage.AuthorizationCode, ttl time.Duration) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	cloned := code.Clone()
	return t.add(txOp{enqueue: func(pipe goredis.Pipeliner) func() error {
		createdAt := cloned.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		data, err := json.Marshal(storedAuthorizationCode{
			Code:          cloned.Code,
			ClientID:      cloned.ClientID,
			RedirectURI:   cloned.RedirectURI,
			CodeChallenge: cloned.CodeChallenge,
			Scopes:        cloned.Scopes,
			CreatedAt:     createdAt.UnixMilli(),
			ExpiresAt:     time.Now().Add(ttl).UnixMilli(),
		})
		if err != nil {
			return func() error { return err }
		}

		cmd := pipe.SetNX(context.Background(), t.store.key(keyTypeCode, cloned.Code), data, ttl)
		return func() error {
			created, err := cmd.Result()
			if err != nil {
				return wrapUnavailable("save authorization code", err)
			}
			if !created {
				return fmt.Errorf("%w: authorization code", storage.ErrAlreadyExists)
			}
			return nil
		}
	}})
}

// DeleteAuthorizationCode buffers an authorization code deletion
func (t *transaction) DeleteAuthorizationCode(code string) error {
	return t.add(txOp{enqueue: func(pipe goredis.Pipeliner) func() error {
		cmd := pipe.Del(context.Background(),
			t.store.key(keyTypeCode, code), t.store.key(keyTypeCodeUsed, code))
		return func() error {
			if err := cmd.Err(); err != nil {
				return wrapUnavailable("delete authorization code", err)
			}
			return nil
		}
	}})
}

func (t *transaction) delOp(key string) txOp {
	return txOp{enqueue: func(pipe goredis.Pipeliner) func() error {
		cmd := pipe.Del(context.Background(), key)
		return func() error {
			if err := cmd.Err(); err != nil {
				return wrapUnavailable("delete", err)
			}
			return nil
		}
	}}
}

// Commit applies the buffered writes through MULTI/EXEC, so they all become
// visible together. Key collisions surface after EXEC; the error names the
// failing write, and the remaining writes stay applied.
func (t *transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return storage.ErrTransactionClosed
	}
	t.closed = true

	pipe := t.store.client.TxPipeline()

	checks := make([]func() error, 0, len(t.ops))
	for _, op := range t.ops {
		checks = append(checks, op.enqueue(pipe))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return wrapUnavailable(fmt.Sprintf("commit of transaction %s", t.id), err)
	}

	for i, check := range checks {
		if err := check(); err != nil {
			t.store.logger.Warn("Transaction commit reported a failed write",
				"tx_id", t.id,
				"write", i+1,
				"total", len(checks),
				"error", err)
			return fmt.Errorf("commit of transaction %s failed at write %d of %d: %w",
				t.id, i+1, len(checks), err)
		}
	}

	t.ops = nil
	t.store.logger.Debug("Committed transaction", "tx_id", t.id)
	return nil
}

// Rollback discards the buffered writes. Rolling back an already closed
// transaction is a no-op.
func (t *transaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.ops = nil

	t.store.logger.Debug("Rolled back transaction", "tx_id", t.id)
	return nil
}
