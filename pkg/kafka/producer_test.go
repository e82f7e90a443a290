package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestProducer_PublishEncodesJSON(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, "trading-signals", "gzip")

	err := p.Publish(context.Background(), []byte("AAPL"), map[string]string{"event": "created"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("AAPL"), w.msgs[0].Key)
	assert.JSONEq(t, `{"event":"created"}`, string(w.msgs[0].Value))
	assert.Equal(t, "trading-signals", p.Topic())
}

func TestProducer_PublishBatch(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, "t", "snappy")

	require.NoError(t, p.PublishBatch(context.Background(), nil))
	assert.Empty(t, w.msgs)

	err := p.PublishBatch(context.Background(), []Message{
		{Key: []byte("a"), Value: "raw"},
		{Key: []byte("b"), Value: []byte("bytes")},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "raw", string(w.msgs[0].Value))
	assert.Equal(t, "bytes", string(w.msgs[1].Value))
}

func TestProducer_PropagatesWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewProducerWithWriter(&recordingWriter{err: boom}, "t", "gzip")
	assert.ErrorIs(t, p.Publish(context.Background(), nil, "x"), boom)
}

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer(WithTopic("t"))
	assert.Error(t, err)
	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}))
	assert.Error(t, err)
	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}), WithTopic("t"), WithRequiredAcks(2))
	assert.Error(t, err)
}

func TestProducerConfig_Batching(t *testing.T) {
	cfg := defaultProducerConfig()
	WithBatching(0, 4096, 0)(cfg)
	WithMaxAttempts(0)(cfg)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 4096, cfg.BatchBytes)
	assert.Equal(t, time.Second, cfg.BatchTimeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Lz4, parseCompression("lz4"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Gzip, parseCompression("unknown"))
}
