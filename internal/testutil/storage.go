package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcoot/partyroom/internal/partition"
	"github.com/mcoot/partyroom/internal/storage"
	"github.com/mcoot/partyroom/internal/storage/memory"
)

// MemoryHost returns a host owning every partition of router, each backed
// by a fresh in-memory store
func MemoryHost(t testing.TB, service partition.Service, router partition.Router) *storage.Host {
	t.Helper()

	host := storage.NewHost(string(service), func(context.Context, int) (storage.Store, error) {
		return memory.New(memory.Options{})
	}, NopLogger())

	ctx := context.Background()
	for _, p := range router.All() {
		require.NoError(t, host.Acquire(ctx, p))
	}
	t.Cleanup(func() { _ = host.Close(context.Background()) })
	return host
}
