package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/mcp-authcore/storage"
)

// txWrite is one buffered mutation, captured as a closure over the store's
// locked helpers. Record arguments are cloned at enqueue time so later caller
// mutations cannot leak into the commit.
type txWrite func() error

// transaction buffers writes until Commit. Reads during an open transaction
// go directly to the store and do NOT observe buffered writes
// (read-committed, not read-your-writes).
type transaction struct {
	id    string
	store *Store

	mu     sync.Mutex
	writes []txWrite
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

func (t *transaction) enqueue(write txWrite) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return storage.ErrTransactionClosed
	}

	t.writes = append(t.writes, write)
	return nil
}

// SaveClient buffers a client save
func (t *transaction) SaveClient(client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	cloned := client.Clone()
	return t.enqueue(func() error {
		return t.store.saveClientLocked(cloned)
	})
}

// DeleteClient buffers a client deletion
func (t *transaction) DeleteClient(clientID string) error {
	return t.enqueue(func() error {
		t.store.deleteClientLocked(clientID)
		return nil
	})
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
	return t.enqueue(func() error {
		return t.store.saveTokenLocked(cloned, ttl)
	})
}

// DeleteToken buffers an access token deletion
func (t *transaction) DeleteToken(token string) error {
	return t.enqueue(func() error {
		t.store.removeTokenLocked(token)
		return nil
	})
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
	return t.enqueue(func() error {
		return t.store.saveRefreshTokenLocked(cloned, ttl)
	})
}

// DeleteRefreshToken buffers a refresh token deletion
func (t *transaction) DeleteRefreshToken(token string) error {
	return t.enqueue(func() error {
		t.store.removeRefreshTokenLocked(token)
		return nil
	})
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
	return t.enqueue(func() error {
		return t.store.saveAuthorizationCodeLocked(cloned, ttl)
	})
}

// DeleteAuthorizationCode buffers an authorization code deletion
func (t *transaction) DeleteAuthorizationCode(code string) error {
	return t.enqueue(func() error {
		t.store.removeAuthorizationCodeLocked(code)
		return nil
	})
}

// Commit applies the buffered writes in order under the store lock, so no
// reader observes a partially applied transaction. On failure the writes
// already applied remain applied; the error names the failing position.
func (t *transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return storage.ErrTransactionClosed
	}
	t.closed = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for i, write := range t.writes {
		if err := write(); err != nil {
			t.store.logger.Warn("Transaction commit failed partway",
				"tx_id", t.id,
				"applied", i,
				"total", len(t.writes),
				"error", err)
			return fmt.Errorf("commit of transaction %s failed at write %d of %d: %w",
				t.id, i+1, len(t.writes), err)
		}
	}

	t.writes = nil
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
	t.writes = nil

	t.store.logger.Debug("Rolled back transaction", "tx_id", t.id)
	return nil
}
