package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/giantswarm/mcp-authcore/storage"
)

func TestTransactionCommitAppliesWrites(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if tx.ID() == "" {
		t.Error("transaction ID is empty")
	}

	if err := tx.SaveToken(&storage.AccessToken{Token: "tok-1", ClientID: "c1"}, time.Hour); err != nil {
		t.Fatalf("tx.SaveToken() error = %v", err)
	}
	if err := tx.SaveRefreshToken(&storage.RefreshToken{Token: "ref-1", AccessToken: "tok-1", ClientID: "c1"}, time.Hour); err != nil {
		t.Fatalf("tx.SaveRefreshToken() error = %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if _, err := store.GetToken(ctx, "tok-1"); err != nil {
		t.Errorf("GetToken() after commit error = %v", err)
	}
	if _, err := store.GetRefreshToken(ctx, "ref-1"); err != nil {
		t.Errorf("GetRefreshToken() after commit error = %v", err)
	}
}

func TestTransactionBuffersUntilCommit(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if err := tx.SaveToken(&storage.AccessToken{Token: "pending"}, time.Hour); err != nil {
		t.Fatalf("tx.SaveToken() error = %v", err)
	}

	// Buffered write must not be visible before commit
	if _, err := store.GetToken(ctx, "pending"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetToken() before commit error = %v, want ErrTokenNotFound", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, err := store.GetToken(ctx, "pending"); err != nil {
		t.Errorf("GetToken() after commit error = %v", err)
	}
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if err := tx.SaveClient(&storage.Client{ClientID: "ghost"}); err != nil {
		t.Fatalf("tx.SaveClient() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if _, err := store.GetClient(ctx, "ghost"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() after rollback error = %v, want ErrClientNotFound", err)
	}

	// Rolling back twice is a no-op
	if err := tx.Rollback(); err != nil {
		t.Errorf("second Rollback() error = %v, want nil", err)
	}
}

func TestTransactionClosedAfterCommit(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := tx.SaveToken(&storage.AccessToken{Token: "late"}, time.Hour); !errors.Is(err, storage.ErrTransactionClosed) {
		t.Errorf("SaveToken() after commit error = %v, want ErrTransactionClosed", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, storage.ErrTransactionClosed) {
		t.Errorf("second Commit() error = %v, want ErrTransactionClosed", err)
	}
}

func TestTransactionClosedAfterRollback(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if err := tx.DeleteToken("whatever"); !errors.Is(err, storage.ErrTransactionClosed) {
		t.Errorf("DeleteToken() after rollback error = %v, want ErrTransactionClosed", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, storage.ErrTransactionClosed) {
		t.Errorf("Commit() after rollback error = %v, want ErrTransactionClosed", err)
	}
}

func TestTransactionCommitFailurePartway(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	// Pre-existing client makes the second buffered write collide
	if err := store.SaveClient(ctx, &storage.Client{ClientID: "taken"}); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if err := tx.SaveToken(&storage.AccessToken{Token: "applied"}, time.Hour); err != nil {
		t.Fatalf("tx.SaveToken() error = %v", err)
	}
	if err := tx.SaveClient(&storage.Client{ClientID: "taken"}); err != nil {
		t.Fatalf("tx.SaveClient() error = %v", err)
	}

	err = tx.Commit(ctx)
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("Commit() error = %v, want wrapped ErrAlreadyExists", err)
	}

	// Writes before the failure remain applied
	if _, err := store.GetToken(ctx, "applied"); err != nil {
		t.Errorf("GetToken() for write preceding the failure error = %v", err)
	}
}

func TestTransactionWriteIsolationFromCallerMutation(t *testing.T) {
	store := newConnectedStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}

	token := &storage.AccessToken{Token: "tok-1", Scopes: []string{"read"}}
	if err := tx.SaveToken(token, time.Hour); err != nil {
		t.Fatalf("tx.SaveToken() error = %v", err)
	}

	// Mutations after enqueue must not reach the committed record
	token.Scopes[0] = "admin"

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, err := store.GetToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if got.Scopes[0] != "read" {
		t.Errorf("committed scope = %q, want %q", got.Scopes[0], "read")
	}
}
