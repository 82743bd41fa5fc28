package report

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pideploy/pideploy/internal/metrics"
	"github.com/pideploy/pideploy/internal/models"
	"github.com/pideploy/pideploy/pkg/logger"
)

// Flusher persists a batch of results.
type Flusher interface {
	FlushResults(ctx context.Context, results []models.CheckResult) error
}

// Config holds configuration for the Publisher.
type Config struct {
	FlushInterval time.Duration // How often to flush buffered results
	BatchSize     int           // Flush when this many results are buffered
	ChannelBuffer int           // Size of the result channel buffer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 5 * time.Second,
		BatchSize:     50,
		ChannelBuffer: 1000,
	}
}

// Publisher provides non-blocking, batched result publishing.
type Publisher struct {
	flusher Flusher
	cfg     Config
	log     *logger.Logger

	resultChan chan models.CheckResult
	pending    []models.CheckResult
	pendingMu  sync.Mutex
	dropped    atomic.Int64

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
	// stateMu orders sends against Stop so none lands after the final drain.
	stateMu sync.RWMutex
	stopped bool
}

// NewPublisher creates a Publisher and starts its flush loop.
func NewPublisher(cfg Config, flusher Flusher, log *logger.Logger) *Publisher {
	def := DefaultConfig()
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = def.ChannelBuffer
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if log == nil {
		log = logger.Nop()
	}

	p := &Publisher{
		flusher:    flusher,
		cfg:        cfg,
		log:        log,
		resultChan: make(chan models.CheckResult, cfg.ChannelBuffer),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}

	go p.run()
	return p
}

// Publish queues a result (non-blocking). Results are dropped when the
// buffer is full or the publisher has stopped.
func (p *Publisher) Publish(result models.CheckResult) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if p.stopped {
		p.dropped.Add(1)
		return
	}

	select {
	case p.resultChan <- result:
	default:
		p.dropped.Add(1)
	}
}

// Stop stops the publisher and flushes buffered results.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		p.stateMu.Lock()
		p.stopped = true
		p.stateMu.Unlock()
		close(p.stopChan)
		<-p.doneChan
	})
}

// Pending returns the number of buffered, unflushed results.
func (p *Publisher) Pending() int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return len(p.pending)
}

// Dropped returns how many results were discarded.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Publisher) run() {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case result := <-p.resultChan:
			if p.add(result) >= p.cfg.BatchSize {
				p.flush()
			}

		case <-ticker.C:
			p.flush()

		case <-p.stopChan:
			p.drainChannel()
			p.flush()
			return
		}
	}
}

func (p *Publisher) add(result models.CheckResult) int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	p.pending = append(p.pending, result)
	return len(p.pending)
}

func (p *Publisher) drainChannel() {
	for {
		select {
		case result := <-p.resultChan:
			p.add(result)
		default:
			return
		}
	}
}

func (p *Publisher) flush() {
	p.pendingMu.Lock()
	if len(p.pending) == 0 {
		p.pendingMu.Unlock()
		return
	}
	batch := p.pending
	p.pending = nil
	p.pendingMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := p.flusher.FlushResults(ctx, batch)
	metrics.RecordPublished(len(batch), err)
	if err != nil {
		p.log.Error("failed to publish check results", "error", err.Error(), "count", len(batch))
		return
	}
	p.log.Debug("published check results", "count", len(batch))
}
