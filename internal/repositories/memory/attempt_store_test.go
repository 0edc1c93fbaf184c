package memory

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptStore_ListAndTotals(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	add := func(offset time.Duration, ip string, outcome models.AttemptOutcome) {
		require.NoError(t, store.Append(ctx, &models.AttemptRecord{
			ID: uuid.New(), Timestamp: t0.Add(offset), SourceIP: ip, Outcome: outcome,
		}))
	}
	add(0, "10.0.0.1", models.OutcomeDenied)
	add(time.Minute, "10.0.0.1", models.OutcomeAllowed)
	add(2*time.Minute, "10.0.0.2", models.OutcomeFlagged)
	add(time.Hour, "10.0.0.1", models.OutcomeDenied) // outside range

	q := models.AttemptQuery{From: t0, To: t0.Add(30 * time.Minute)}

	all, err := store.List(ctx, q)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "10.0.0.2", all[0].SourceIP, "newest first")

	q.SourceIP = "10.0.0.1"
	byIP, err := store.List(ctx, q)
	require.NoError(t, err)
	assert.Len(t, byIP, 2)

	q.SourceIP = ""
	totals, err := store.Totals(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptTotals{Total: 3, Allowed: 1, Flagged: 1, Denied: 1}, totals)
	assert.Equal(t, int64(2), totals.Admitted())

	q.Limit = 1
	limited, err := store.List(ctx, q)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
