// Package ledgertest holds the behaviour every ledger.Store must share.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpantry/internal/ledger"
)

// Publication returns a valid publication for state published at t.
func Publication(id, state string, t time.Time) ledger.Publication {
	return ledger.Publication{
		ID:          id,
		State:       state,
		Key:         state + "_food_pantries_" + t.Format("20060102150405") + ".json",
		Version:     t.Format("20060102150405"),
		Duplicates:  1,
		Stats:       ledger.Stats{Total: 3, WithWebsite: 1, WithPhone: 2, WithEmail: 0, WithHours: 3},
		Size:        512,
		ETag:        "etag-" + id,
		PublishedAt: t,
	}
}

// Run exercises Record and List against a fresh store.
func Run(t *testing.T, store ledger.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first := Publication("p1", "NV", base)
	require.NoError(t, store.Record(ctx, first))
	require.NoError(t, store.Record(ctx, Publication("p2", "CA", base.Add(time.Hour))))
	require.NoError(t, store.Record(ctx, Publication("p3", "NV", base.Add(2*time.Hour))))

	err := store.Record(ctx, first)
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
	assert.Error(t, store.Record(ctx, ledger.Publication{ID: "p4"}))

	all, err := store.List(ctx, ledger.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"p3", "p2", "p1"}, ids(all))
	assert.Equal(t, first.Stats, all[2].Stats)
	assert.Equal(t, first.Key, all[2].Key)
	assert.Equal(t, first.Duplicates, all[2].Duplicates)
	assert.EqualValues(t, 512, all[2].Size)
	assert.True(t, first.PublishedAt.Equal(all[2].PublishedAt))

	nv, err := store.List(ctx, ledger.Filter{State: "nv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p1"}, ids(nv))

	latest, err := store.List(ctx, ledger.Filter{State: "NV", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, ids(latest))

	none, err := store.List(ctx, ledger.Filter{State: "WY"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func ids(ps []ledger.Publication) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}
