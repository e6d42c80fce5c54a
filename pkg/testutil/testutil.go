// Package testutil provides testing utilities for birdfeed
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/openaviary/birdfeed/pkg/store"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// OpenMemoryStore opens an in-memory SQLite store scoped to the test and
// closes it on cleanup.
func OpenMemoryStore(t *testing.T, dataset string) *store.SQLiteStore {
	t.Helper()

	s, err := store.OpenSQLite(":memory:", dataset, TestLogger(t))
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
