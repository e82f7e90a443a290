package repository

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	pkgkafka "FinSignal/pkg/kafka"
)

var ts = time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)

func sampleSignal(id string) models.TradingSignal {
	return models.TradingSignal{
		ID:          id,
		Symbol:      "AAPL",
		Type:        models.TypeTechnical,
		Signal:      models.Buy,
		Reason:      "Golden cross",
		Strength:    models.Strong,
		Timestamp:   ts,
		Price:       100,
		EntryPrice:  100,
		StopLoss:    95,
		TargetPrice: 115,
		SuccessRate: 0.6,
		Timeframe:   "long-term",
		Expiry:      ts.Add(30 * 24 * time.Hour),
		RiskReward:  "3.00",
		Status:      models.StatusActive,
		Metadata:    models.Metadata{"rule": "golden_cross", "sma_fast": 100.0},
	}
}

func TestMemorySignalStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySignalStore()

	_, err := s.SaveSignal(ctx, models.TradingSignal{})
	assert.Error(t, err)

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.SaveSignal(ctx, sampleSignal(id))
		require.NoError(t, err)
	}
	require.NoError(t, s.UpdateSignalStatus(ctx, "b", models.StatusCompleted))
	assert.ErrorIs(t, s.UpdateSignalStatus(ctx, "zzz", models.StatusExpired), domrepo.ErrSignalNotFound)

	active, err := s.LoadActiveSignals(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "c", active[1].ID)

	b, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, b.Status)
}

func TestSignalRowMapping(t *testing.T) {
	sig := sampleSignal("id-1")
	args, err := signalArgs(sig)
	require.NoError(t, err)
	require.Len(t, args, len(strings.Split(signalColumns, ",")))
	assert.Equal(t, "id-1", args[0])
	assert.Equal(t, "BUY", args[3])
	assert.JSONEq(t, `{"rule":"golden_cross","sma_fast":100}`, args[len(args)-1].(string))

	r := signalRow{
		ID: sig.ID, Symbol: sig.Symbol, Type: "technical", Signal: "BUY", Reason: sig.Reason, Strength: "STRONG",
		Timestamp: sig.Timestamp, Expiry: sig.Expiry, Price: 100, EntryPrice: 100, StopLoss: 95, TargetPrice: 115,
		SuccessRate: 0.6, Timeframe: "long-term", RiskReward: "3.00", Status: "active",
	}
	back, err := r.toSignal(args[len(args)-1].(string))
	require.NoError(t, err)
	assert.Equal(t, sig, back)

	_, err = r.toSignal("{broken")
	assert.Error(t, err)

	empty, err := encodeMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)
	md, err := decodeMetadata(empty)
	require.NoError(t, err)
	assert.Nil(t, md)
}

func TestSchemas(t *testing.T) {
	ddl := SignalSchema("finsignal.trading_signals")
	require.Len(t, ddl, 1)
	assert.Contains(t, ddl[0], "CREATE TABLE IF NOT EXISTS finsignal.trading_signals")
	assert.Contains(t, ddl[0], "ReplacingMergeTree(updated_at)")

	candles := CandleSchema("finsignal")
	require.Len(t, candles, 4)
	assert.Contains(t, candles[3], "finsignal.candles_1d")
}

func TestStatusVersionQuery(t *testing.T) {
	q := statusVersionQuery("finsignal.trading_signals")

	assert.NotContains(t, q, "ALTER")
	assert.True(t, strings.HasPrefix(q, "INSERT INTO finsignal.trading_signals ("))
	assert.Contains(t, q, "FROM finsignal.trading_signals FINAL WHERE id = ?")
	assert.Equal(t, 3, strings.Count(q, "?"))

	// Bind order is status, updated_at, id.
	statusAt := strings.Index(q, "? AS status")
	versionAt := strings.Index(q, "? AS updated_at")
	require.Positive(t, statusAt)
	assert.Less(t, statusAt, versionAt)
	assert.Less(t, versionAt, strings.LastIndex(q, "id = ?"))

	// The selected expressions line up with the insert column list.
	open := strings.Index(q, "(")
	cols := strings.Split(q[open+1:strings.Index(q, ")")], ", ")
	sel := strings.Split(q[strings.Index(q, "SELECT ")+len("SELECT "):strings.Index(q, " FROM ")], ", ")
	require.Len(t, sel, len(cols))
	for i, c := range cols {
		if c == "status" || c == "updated_at" {
			assert.Equal(t, "? AS "+c, sel[i])
			continue
		}
		assert.Equal(t, c, sel[i])
	}
}

func TestCandleTable(t *testing.T) {
	table, err := candleTable("finsignal", domrepo.Interval5m)
	require.NoError(t, err)
	assert.Equal(t, "finsignal.candles_5m", table)

	_, err = candleTable("finsignal", domrepo.Interval("1w"))
	assert.ErrorIs(t, err, errUnsupportedInterval)
}

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaSignalPublisher(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaSignalPublisher(pkgkafka.NewProducerWithWriter(w, "trading-signals", "none"))
	ctx := context.Background()

	ev := models.SignalEvent{Event: models.EventCreated, Signal: sampleSignal("id-1"), At: ts}
	require.NoError(t, p.Publish(ctx, ev))
	require.NoError(t, p.PublishBatch(ctx, []models.SignalEvent{ev, ev}))
	require.NoError(t, p.PublishBatch(ctx, nil))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, []byte("AAPL"), w.msgs[0].Key)
	var got models.SignalEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, models.EventCreated, got.Event)
	assert.Equal(t, "id-1", got.Signal.ID)
	assert.NoError(t, p.Close())
}
