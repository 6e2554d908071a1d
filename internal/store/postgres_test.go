package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbot-go/internal/paper"
)

// Set SLOTBOT_TEST_DATABASE_URL to a disposable database to run these.
func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("SLOTBOT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SLOTBOT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	p, err := OpenPostgres(ctx, dsn, WithStartingEquity(1000), WithRetry(RetryPolicy{MaxAttempts: 3, Backoff: FixedBackoff(10 * time.Millisecond)}))
	require.NoError(t, err)
	_, err = p.db.Exec(ctx, `TRUNCATE price_ticks, trades`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPostgresTradeLifecycle(t *testing.T) {
	p := openTestPostgres(t)
	ctx := context.Background()

	id, err := p.OpenTrade(ctx, btcYes())
	require.NoError(t, err)

	require.NoError(t, p.RecordTick(ctx, id, 0.54, 0.56))
	require.NoError(t, p.RecordTick(ctx, id, 0.64, 0.68))
	mid, ok, err := p.LatestMid(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.66, mid, 1e-9)

	res, err := p.CloseTrade(ctx, id, 0.66, paper.ExitLimitHit)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.InDelta(t, 3.0, res.PnL, 1e-6)
	assert.InDelta(t, 1003.0, res.EquityAfter, 1e-6)

	again, err := p.CloseTrade(ctx, id, 0.66, paper.ExitExpired)
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, p.RecordTick(ctx, id, 0.1, 0.2))
	ticks, err := p.Ticks(ctx, id)
	require.NoError(t, err)
	assert.Len(t, ticks, 2)

	all, err := p.AllTrades(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].NumTicks)
	assert.Equal(t, paper.ExitLimitHit, all[0].ExitReason)

	st, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Wins)
}
