package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	pkgch "FinSignal/pkg/clickhouse"
	applogger "FinSignal/pkg/logger"
)

// CHSignalStore implements SignalStore backed by ClickHouse. Rows are
// versioned by updated_at and read with FINAL. A status change inserts a new
// version of the row; updated_at is the engine's version column and cannot be
// rewritten by an ALTER ... UPDATE mutation.
type CHSignalStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
	now   func() time.Time
}

var _ domrepo.SignalStore = (*CHSignalStore)(nil)

func NewCHSignalStore(ch *pkgch.Client, table string) *CHSignalStore {
	return &CHSignalStore{db: ch.DB(), table: table, l: applogger.Nop(), now: time.Now}
}

// SetLogger injects a structured logger.
func (s *CHSignalStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// SignalSchema returns the DDL for the signals table.
func SignalSchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id            String,
            symbol        LowCardinality(String),
            type          LowCardinality(String),
            signal        LowCardinality(String),
            reason        String,
            strength      LowCardinality(String),
            ts            DateTime64(3, 'UTC'),
            price         Float64,
            entry_price   Float64,
            stop_loss     Float64,
            target_price  Float64,
            success_rate  Float64,
            timeframe     LowCardinality(String),
            expiry        DateTime64(3, 'UTC'),
            risk_reward   String,
            status        LowCardinality(String),
            related_asset String,
            metadata      String,
            updated_at    DateTime64(3, 'UTC')
        )
        ENGINE = ReplacingMergeTree(updated_at)
        ORDER BY id
    `, table)}
}

var signalColumnList = []string{
	"id", "symbol", "type", "signal", "reason", "strength", "ts", "price", "entry_price", "stop_loss",
	"target_price", "success_rate", "timeframe", "expiry", "risk_reward", "status", "related_asset", "metadata",
}

var signalColumns = strings.Join(signalColumnList, ", ")

// statusVersionQuery copies the latest version of one row with a new status
// and version. Arguments: status, updated_at, id.
func statusVersionQuery(table string) string {
	sel := make([]string, 0, len(signalColumnList)+1)
	for _, c := range signalColumnList {
		if c == "status" {
			c = "? AS status"
		}
		sel = append(sel, c)
	}
	sel = append(sel, "? AS updated_at")
	return fmt.Sprintf(`INSERT INTO %s (%s, updated_at) SELECT %s FROM %s FINAL WHERE id = ?`,
		table, signalColumns, strings.Join(sel, ", "), table)
}

func (s *CHSignalStore) SaveSignal(ctx context.Context, sig models.TradingSignal) (models.TradingSignal, error) {
	if sig.ID == "" {
		return models.TradingSignal{}, fmt.Errorf("save signal: empty id")
	}
	args, err := signalArgs(sig)
	if err != nil {
		return models.TradingSignal{}, err
	}
	args = append(args, s.now().UTC())
	q := fmt.Sprintf(`INSERT INTO %s (%s, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table, signalColumns)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("clickhouse save_signal error",
			applogger.String("table", s.table),
			applogger.String("id", sig.ID),
			applogger.String("symbol", sig.Symbol),
			applogger.Error(err),
		)
		return models.TradingSignal{}, fmt.Errorf("save signal: %w", err)
	}
	return sig, nil
}

func (s *CHSignalStore) UpdateSignalStatus(ctx context.Context, id string, status models.Status) error {
	var n uint64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count() FROM %s WHERE id = ?`, s.table), id).Scan(&n); err != nil {
		return fmt.Errorf("lookup signal: %w", err)
	}
	if n == 0 {
		return domrepo.ErrSignalNotFound
	}
	if _, err := s.db.ExecContext(ctx, statusVersionQuery(s.table), string(status), s.now().UTC(), id); err != nil {
		s.l.Error("clickhouse update_status error",
			applogger.String("table", s.table),
			applogger.String("id", id),
			applogger.String("status", string(status)),
			applogger.Error(err),
		)
		return fmt.Errorf("update signal status: %w", err)
	}
	return nil
}

func (s *CHSignalStore) LoadActiveSignals(ctx context.Context) ([]models.TradingSignal, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE status = ?
        ORDER BY ts ASC
    `, signalColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, string(models.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("load active signals: %w", err)
	}
	defer rows.Close()

	var out []models.TradingSignal
	for rows.Next() {
		var (
			r    signalRow
			meta string
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Type, &r.Signal, &r.Reason, &r.Strength, &r.Timestamp,
			&r.Price, &r.EntryPrice, &r.StopLoss, &r.TargetPrice, &r.SuccessRate, &r.Timeframe,
			&r.Expiry, &r.RiskReward, &r.Status, &r.RelatedAsset, &meta); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig, err := r.toSignal(meta)
		if err != nil {
			s.l.Warn("skipping signal with unreadable metadata", applogger.String("id", r.ID), applogger.Error(err))
			continue
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse load_active ok",
		applogger.String("table", s.table),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// signalRow mirrors the table columns with plain string enums.
type signalRow struct {
	ID, Symbol, Type, Signal, Reason, Strength string
	Timestamp, Expiry                          time.Time
	Price, EntryPrice, StopLoss, TargetPrice   float64
	SuccessRate                                float64
	Timeframe, RiskReward, Status              string
	RelatedAsset                               string
}

func (r signalRow) toSignal(meta string) (models.TradingSignal, error) {
	md, err := decodeMetadata(meta)
	if err != nil {
		return models.TradingSignal{}, err
	}
	return models.TradingSignal{
		ID:           r.ID,
		Symbol:       r.Symbol,
		Type:         models.SignalType(r.Type),
		Signal:       models.Direction(r.Signal),
		Reason:       r.Reason,
		Strength:     models.Strength(r.Strength),
		Timestamp:    r.Timestamp.UTC(),
		Price:        r.Price,
		EntryPrice:   r.EntryPrice,
		StopLoss:     r.StopLoss,
		TargetPrice:  r.TargetPrice,
		SuccessRate:  r.SuccessRate,
		Timeframe:    r.Timeframe,
		Expiry:       r.Expiry.UTC(),
		RiskReward:   r.RiskReward,
		Status:       models.Status(r.Status),
		RelatedAsset: r.RelatedAsset,
		Metadata:     md,
	}, nil
}

// signalArgs renders sig in signalColumns order.
func signalArgs(sig models.TradingSignal) ([]interface{}, error) {
	meta, err := encodeMetadata(sig.Metadata)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		sig.ID, sig.Symbol, string(sig.Type), string(sig.Signal), sig.Reason, string(sig.Strength),
		sig.Timestamp.UTC(), sig.Price, sig.EntryPrice, sig.StopLoss, sig.TargetPrice, sig.SuccessRate,
		sig.Timeframe, sig.Expiry.UTC(), sig.RiskReward, string(sig.Status), sig.RelatedAsset, meta,
	}, nil
}

func encodeMetadata(m models.Metadata) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (models.Metadata, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m models.Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
