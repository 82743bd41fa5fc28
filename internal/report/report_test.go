package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pideploy/pideploy/internal/config"
	"github.com/pideploy/pideploy/internal/models"
)

func sampleRun() *models.Run {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Second)
	run := &models.Run{
		ID:          "run-1",
		Target:      "https://pi.example.com/piwebapi",
		Suites:      []string{"preliminary", "piwebapi"},
		TriggeredBy: "cli",
		StartedAt:   started,
		FinishedAt:  &finished,
		Results: []models.CheckResult{
			{RunID: "run-1", Suite: "preliminary", CheckID: "webapi-home-page", Status: models.StatusPass, Duration: 120 * time.Millisecond},
			{RunID: "run-1", Suite: "piwebapi", CheckID: "omf", Status: models.StatusSkip, Message: "OMF is not enabled"},
			{RunID: "run-1", Suite: "piwebapi", CheckID: "batch", Status: models.StatusFail, Message: "expected 3 values\nsecond line", Duration: 2 * time.Second},
		},
	}
	for _, r := range run.Results {
		run.Summary.Add(r.Status)
	}
	run.Status = run.Summary.Status()
	return run
}

func TestRender_Console(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleRun(), FormatConsole))

	out := buf.String()
	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "STATUS"))
	assert.Contains(t, lines[1], "PASS")
	assert.Contains(t, lines[1], "webapi-home-page")
	assert.Contains(t, lines[2], "OMF is not enabled")
	assert.Contains(t, lines[3], "expected 3 values")
	assert.NotContains(t, out, "second line")
	assert.Contains(t, out, "FAIL: 1 passed, 1 failed, 1 skipped, 0 errored in 3s")
	assert.Contains(t, out, "against https://pi.example.com/piwebapi")
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleRun(), FormatJSON))

	var decoded models.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.ID)
	assert.Len(t, decoded.Results, 3)
	assert.Equal(t, 1, decoded.Summary.Failed)
}

func TestRender_UnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, sampleRun(), "xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestResultLine(t *testing.T) {
	line := ResultLine(models.CheckResult{Suite: "pida", CheckID: "snapshot-updates", Status: models.StatusFail,
		Message: "value did not change", Duration: 1500 * time.Millisecond})
	assert.Equal(t, "FAIL  pida/snapshot-updates (1.5s): value did not change", line)
}

type mockFlusher struct {
	mu      sync.Mutex
	results []models.CheckResult
	calls   int
	err     error
}

func (m *mockFlusher) FlushResults(ctx context.Context, results []models.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.results = append(m.results, results...)
	return nil
}

func (m *mockFlusher) snapshot() ([]models.CheckResult, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CheckResult(nil), m.results...), m.calls
}

func TestPublisher_FlushesOnInterval(t *testing.T) {
	flusher := &mockFlusher{}
	p := NewPublisher(Config{FlushInterval: 20 * time.Millisecond, BatchSize: 100}, flusher, nil)
	defer p.Stop()

	p.Publish(models.CheckResult{CheckID: "a", Status: models.StatusPass})
	p.Publish(models.CheckResult{CheckID: "b", Status: models.StatusFail})

	assert.Eventually(t, func() bool {
		results, _ := flusher.snapshot()
		return len(results) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_FlushesOnBatchSize(t *testing.T) {
	flusher := &mockFlusher{}
	p := NewPublisher(Config{FlushInterval: time.Hour, BatchSize: 3}, flusher, nil)
	defer p.Stop()

	for i := 0; i < 3; i++ {
		p.Publish(models.CheckResult{CheckID: "c", Status: models.StatusPass})
	}

	assert.Eventually(t, func() bool {
		results, calls := flusher.snapshot()
		return len(results) == 3 && calls == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_StopFlushesPending(t *testing.T) {
	flusher := &mockFlusher{}
	p := NewPublisher(Config{FlushInterval: time.Hour, BatchSize: 100}, flusher, nil)

	p.Publish(models.CheckResult{CheckID: "a", Status: models.StatusPass})
	p.Stop()
	p.Stop()

	results, _ := flusher.snapshot()
	assert.Len(t, results, 1)
	assert.Equal(t, 0, p.Pending())

	p.Publish(models.CheckResult{CheckID: "late"})
	assert.Equal(t, int64(1), p.Dropped())
}

func TestPublisher_ConcurrentPublishAndStop(t *testing.T) {
	const publishers, perPublisher = 8, 200

	for round := 0; round < 20; round++ {
		flusher := &mockFlusher{}
		p := NewPublisher(Config{FlushInterval: time.Hour, BatchSize: 10000, ChannelBuffer: publishers * perPublisher}, flusher, nil)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < publishers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < perPublisher; j++ {
					p.Publish(models.CheckResult{CheckID: "concurrent"})
				}
			}()
		}
		close(start)
		p.Stop()
		wg.Wait()

		results, _ := flusher.snapshot()
		require.Equal(t, int64(publishers*perPublisher), int64(len(results))+p.Dropped(), "round %d", round)
	}
}

func TestPublisher_FlushErrorDropsBatch(t *testing.T) {
	flusher := &mockFlusher{err: errors.New("broker down")}
	p := NewPublisher(Config{FlushInterval: time.Hour, BatchSize: 1}, flusher, nil)

	p.Publish(models.CheckResult{CheckID: "a"})
	p.Stop()

	_, calls := flusher.snapshot()
	assert.GreaterOrEqual(t, calls, 1)
	assert.Equal(t, 0, p.Pending())
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaFlusher_WritesOneMessagePerResult(t *testing.T) {
	w := &fakeWriter{}
	f := &KafkaFlusher{writer: w}

	run := sampleRun()
	require.NoError(t, f.FlushResults(context.Background(), run.Results))
	require.Len(t, w.msgs, 3)

	msg := w.msgs[2]
	assert.Equal(t, "run-1", string(msg.Key))
	var decoded models.CheckResult
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "batch", decoded.CheckID)
	assert.Equal(t, models.StatusFail, decoded.Status)
	assert.Contains(t, msg.Headers, kafka.Header{Key: "suite", Value: []byte("piwebapi")})

	require.NoError(t, f.FlushResults(context.Background(), nil))
	assert.Len(t, w.msgs, 3)

	require.NoError(t, f.Close())
	assert.True(t, w.closed)
}

func TestKafkaFlusher_WrapsWriteError(t *testing.T) {
	f := &KafkaFlusher{writer: &fakeWriter{err: errors.New("leader not available")}}
	err := f.FlushResults(context.Background(), sampleRun().Results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestKafkaFlusher_Integration(t *testing.T) {
	broker := os.Getenv("TEST_KAFKA")
	if broker == "" {
		t.Skip("TEST_KAFKA not set")
	}

	f := NewKafkaFlusher(config.KafkaConfig{Brokers: []string{broker}, Topic: "pideploy.results.test", BatchSize: 10})
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, f.FlushResults(ctx, sampleRun().Results))
}
