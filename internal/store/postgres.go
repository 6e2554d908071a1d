package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"slotbot-go/internal/paper"
	"slotbot-go/internal/slot"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trades (
    id                 UUID PRIMARY KEY,
    slot_label         TEXT NOT NULL,
    asset              TEXT NOT NULL,
    side_chosen        TEXT NOT NULL,
    token_id           TEXT NOT NULL,
    entry_time_utc     TIMESTAMPTZ NOT NULL,
    hour_of_day        INTEGER NOT NULL,
    day_of_week        TEXT NOT NULL,
    entry_price        DOUBLE PRECISION NOT NULL,
    yes_price_at_entry DOUBLE PRECISION NOT NULL,
    no_price_at_entry  DOUBLE PRECISION NOT NULL,
    side_price_delta   DOUBLE PRECISION NOT NULL,
    shares             DOUBLE PRECISION NOT NULL,
    trade_amount_usd   DOUBLE PRECISION NOT NULL,
    limit_sell_price   DOUBLE PRECISION NOT NULL,
    min_price          DOUBLE PRECISION NOT NULL,
    max_price          DOUBLE PRECISION NOT NULL,
    min_price_time     TIMESTAMPTZ,
    max_price_time     TIMESTAMPTZ,
    max_adverse_pct    DOUBLE PRECISION NOT NULL DEFAULT 0,
    max_favorable_pct  DOUBLE PRECISION NOT NULL DEFAULT 0,
    num_price_updates  INTEGER NOT NULL DEFAULT 0,
    exit_price         DOUBLE PRECISION,
    exit_time_utc      TIMESTAMPTZ,
    exit_reason        TEXT,
    fill_latency_sec   DOUBLE PRECISION,
    pnl_usd            DOUBLE PRECISION NOT NULL DEFAULT 0,
    pnl_pct            DOUBLE PRECISION NOT NULL DEFAULT 0,
    outcome            TEXT NOT NULL DEFAULT 'pending',
    equity_before      DOUBLE PRECISION NOT NULL,
    equity_after       DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS trades_outcome_idx ON trades (outcome);
CREATE TABLE IF NOT EXISTS price_ticks (
    id            BIGSERIAL PRIMARY KEY,
    trade_id      UUID NOT NULL REFERENCES trades(id),
    timestamp_utc TIMESTAMPTZ NOT NULL,
    bid           DOUBLE PRECISION NOT NULL,
    ask           DOUBLE PRECISION NOT NULL,
    mid           DOUBLE PRECISION NOT NULL,
    spread        DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS price_ticks_trade_idx ON price_ticks (trade_id, id);
`

const tradeColumns = `
    id, slot_label, asset, side_chosen, token_id,
    entry_time_utc, hour_of_day, day_of_week,
    entry_price, yes_price_at_entry, no_price_at_entry, side_price_delta,
    shares, trade_amount_usd, limit_sell_price,
    min_price, max_price, min_price_time, max_price_time,
    max_adverse_pct, max_favorable_pct, num_price_updates,
    exit_price, exit_time_utc, exit_reason, fill_latency_sec,
    pnl_usd, pnl_pct, outcome, equity_before, equity_after`

// equityLockKey serializes closes so equity_after is computed against every prior close.
const equityLockKey = 7_300_451

type rowScanner interface {
	Scan(dest ...any) error
}

// Postgres is a Backend on a pgx connection pool.
type Postgres struct {
	db   *pgxpool.Pool
	opts options
}

var _ Backend = (*Postgres)(nil)

// OpenPostgres connects, verifies the connection and creates the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	p := NewPostgres(pool, opts...)
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *pgxpool.Pool, opts ...Option) *Postgres {
	return &Postgres{db: db, opts: applyOptions(opts)}
}

// Migrate creates the tables when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

// OpenTrade inserts a pending trade row.
func (p *Postgres) OpenTrade(ctx context.Context, params paper.OpenParams) (string, error) {
	return retryValue(ctx, p.opts.retry, func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
		defer cancel()
		equity, err := p.equity(ctx, p.db)
		if err != nil {
			return "", err
		}
		rec := newTradeRecord(uuid.NewString(), params, p.opts.now(), p.opts.loc, equity)
		const insertSQL = `
            INSERT INTO trades (
                id, slot_label, asset, side_chosen, token_id,
                entry_time_utc, hour_of_day, day_of_week,
                entry_price, yes_price_at_entry, no_price_at_entry, side_price_delta,
                shares, trade_amount_usd, limit_sell_price,
                min_price, max_price, outcome, equity_before
            )
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
		_, err = p.db.Exec(ctx, insertSQL,
			rec.ID, rec.SlotLabel, string(rec.Asset), string(rec.Side), rec.AssetID,
			rec.EntryTime, rec.HourOfDay, rec.DayOfWeek,
			rec.EntryPrice, rec.YesPrice, rec.NoPrice, rec.SideDelta,
			rec.Shares, rec.AmountUSD, rec.TargetPrice,
			rec.MinPrice, rec.MaxPrice, string(rec.Outcome), rec.EquityBefore,
		)
		if err != nil {
			return "", fmt.Errorf("store: insert trade: %w", err)
		}
		return rec.ID, nil
	})
}

// RecordTick appends a tick and updates excursion columns of a pending trade.
func (p *Postgres) RecordTick(ctx context.Context, tradeID string, bid, ask float64) error {
	return p.opts.retry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
		defer cancel()
		tx, err := p.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		var (
			entry, minP, maxP float64
			minAt, maxAt      *time.Time
			numTicks          int
		)
		err = tx.QueryRow(ctx, `
            SELECT entry_price, min_price, max_price, min_price_time, max_price_time, num_price_updates
            FROM trades
            WHERE id = $1 AND outcome = 'pending'
            FOR UPDATE`, tradeID).Scan(&entry, &minP, &maxP, &minAt, &maxAt, &numTicks)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		tick := newTickRecord(tradeID, bid, ask, p.opts.now())
		if _, err := tx.Exec(ctx, `
            INSERT INTO price_ticks (trade_id, timestamp_utc, bid, ask, mid, spread)
            VALUES ($1,$2,$3,$4,$5,$6)`,
			tradeID, tick.Ts, tick.Bid, tick.Ask, tick.Mid, tick.Spread); err != nil {
			return fmt.Errorf("store: insert tick: %w", err)
		}

		ex := paper.Excursion{Entry: entry, Min: minP, Max: maxP, NumTicks: numTicks}
		if minAt != nil {
			ex.MinAt = *minAt
		}
		if maxAt != nil {
			ex.MaxAt = *maxAt
		}
		ex.Observe(tick.Mid, tick.Ts)
		var rec paper.TradeRecord
		applyExcursion(&rec, ex)
		if _, err := tx.Exec(ctx, `
            UPDATE trades SET
                min_price = $2, max_price = $3,
                min_price_time = $4, max_price_time = $5,
                max_adverse_pct = $6, max_favorable_pct = $7,
                num_price_updates = $8
            WHERE id = $1`,
			tradeID, rec.MinPrice, rec.MaxPrice, rec.MinPriceTime, rec.MaxPriceTime,
			rec.MaxAdversePct, rec.MaxFavorablePct, rec.NumTicks); err != nil {
			return fmt.Errorf("store: update excursion: %w", err)
		}
		return tx.Commit(ctx)
	})
}

// CloseTrade resolves a pending trade. A trade row locked by a concurrent
// close surfaces as a busy error and is retried.
func (p *Postgres) CloseTrade(ctx context.Context, tradeID string, exitPrice float64, reason paper.ExitReason) (*paper.CloseResult, error) {
	res, err := retryValue(ctx, p.opts.retry, func(ctx context.Context) (*paper.CloseResult, error) {
		ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
		defer cancel()
		tx, err := p.db.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, equityLockKey); err != nil {
			return nil, err
		}
		rec, err := scanTrade(tx.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1 FOR UPDATE NOWAIT`, tradeID))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if rec.Closed() {
			return nil, nil
		}

		equity, err := p.equity(ctx, tx)
		if err != nil {
			return nil, err
		}
		pnl, pct := paper.ComputePnL(rec.EntryPrice, exitPrice, rec.Shares)
		closeRecord(&rec, exitPrice, reason, p.opts.now(), pnl, pct, equity+pnl)
		if _, err := tx.Exec(ctx, `
            UPDATE trades SET
                exit_price = $2, exit_time_utc = $3, exit_reason = $4,
                fill_latency_sec = $5, pnl_usd = $6, pnl_pct = $7,
                outcome = $8, equity_after = $9
            WHERE id = $1`,
			tradeID, exitPrice, rec.ExitTime, string(reason),
			rec.FillLatency.Seconds(), rec.PnL, rec.PnLPct,
			string(rec.Outcome), rec.EquityAfter); err != nil {
			return nil, fmt.Errorf("store: close trade: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		result := resultFor(rec)
		return &result, nil
	})
	if err != nil || res == nil {
		return res, err
	}
	if p.opts.recorder != nil {
		p.opts.recorder.Record(*res)
	}
	return res, nil
}

// CurrentEquity returns starting equity plus realized P&L.
func (p *Postgres) CurrentEquity(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.equity(ctx, p.db)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *Postgres) equity(ctx context.Context, q querier) (float64, error) {
	var realized float64
	err := q.QueryRow(ctx, `
        SELECT COALESCE(SUM(pnl_usd), 0)
        FROM trades
        WHERE outcome <> 'pending'`).Scan(&realized)
	if err != nil {
		return 0, fmt.Errorf("store: equity: %w", err)
	}
	return p.opts.startingEquity + realized, nil
}

// PendingTrades lists open trades oldest first.
func (p *Postgres) PendingTrades(ctx context.Context) ([]paper.TradeRecord, error) {
	return p.listTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE outcome = 'pending' ORDER BY entry_time_utc`)
}

// AllTrades lists every trade oldest first.
func (p *Postgres) AllTrades(ctx context.Context) ([]paper.TradeRecord, error) {
	return p.listTrades(ctx, `SELECT `+tradeColumns+` FROM trades ORDER BY entry_time_utc`)
}

func (p *Postgres) listTrades(ctx context.Context, query string) ([]paper.TradeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []paper.TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ticks returns the tick history of a trade, oldest first.
func (p *Postgres) Ticks(ctx context.Context, tradeID string) ([]paper.TickRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	rows, err := p.db.Query(ctx, `
        SELECT timestamp_utc, bid, ask, mid, spread
        FROM price_ticks
        WHERE trade_id = $1
        ORDER BY id`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []paper.TickRecord
	for rows.Next() {
		t := paper.TickRecord{TradeID: tradeID}
		if err := rows.Scan(&t.Ts, &t.Bid, &t.Ask, &t.Mid, &t.Spread); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LatestMid returns the mid of the newest tick.
func (p *Postgres) LatestMid(ctx context.Context, tradeID string) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var mid float64
	err := p.db.QueryRow(ctx, `
        SELECT mid FROM price_ticks
        WHERE trade_id = $1
        ORDER BY id DESC
        LIMIT 1`, tradeID).Scan(&mid)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return mid, true, nil
}

// Stats summarizes all trades.
func (p *Postgres) Stats(ctx context.Context) (paper.Stats, error) {
	all, err := p.AllTrades(ctx)
	if err != nil {
		return paper.Stats{}, err
	}
	return paper.Summarize(all, p.opts.startingEquity), nil
}

func scanTrade(row rowScanner) (paper.TradeRecord, error) {
	var (
		rec         paper.TradeRecord
		asset, side string
		exitReason  *string
		latencySec  *float64
		outcome     string
	)
	err := row.Scan(
		&rec.ID, &rec.SlotLabel, &asset, &side, &rec.AssetID,
		&rec.EntryTime, &rec.HourOfDay, &rec.DayOfWeek,
		&rec.EntryPrice, &rec.YesPrice, &rec.NoPrice, &rec.SideDelta,
		&rec.Shares, &rec.AmountUSD, &rec.TargetPrice,
		&rec.MinPrice, &rec.MaxPrice, &rec.MinPriceTime, &rec.MaxPriceTime,
		&rec.MaxAdversePct, &rec.MaxFavorablePct, &rec.NumTicks,
		&rec.ExitPrice, &rec.ExitTime, &exitReason, &latencySec,
		&rec.PnL, &rec.PnLPct, &outcome, &rec.EquityBefore, &rec.EquityAfter,
	)
	if err != nil {
		return paper.TradeRecord{}, err
	}
	rec.Asset = slot.Asset(asset)
	rec.Side = slot.Side(side)
	rec.Outcome = paper.Outcome(outcome)
	if exitReason != nil {
		rec.ExitReason = paper.ExitReason(*exitReason)
	}
	if latencySec != nil {
		rec.FillLatency = time.Duration(*latencySec * float64(time.Second))
	}
	return rec, nil
}
