package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tubego/internal/logging"
)

// ErrClosed is returned for work submitted to, or still queued in, a closed pool.
var ErrClosed = errors.New("worker pool closed")

// DefaultSize is used when a non-positive size is requested.
const DefaultSize = 4

type job struct {
	ctx    context.Context
	run    func(context.Context)
	reject func(error)
}

// Pool is a fixed-size goroutine pool with an unbounded FIFO queue.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []job
	size    int
	running int
	closed  bool
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// Stats is a point-in-time view of pool load.
type Stats struct {
	Size    int
	Running int
	Queued  int
}

// New starts size workers.
func New(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pool{size: size, logger: logging.NewComponentLogger(logger, "workerpool")}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(size)
	for i := range size {
		go p.worker(i)
	}
	p.logger.Debug("worker pool started", logging.Int("size", size))
	return p
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue[0] = job{}
		p.queue = p.queue[1:]
		p.running++
		p.mu.Unlock()

		p.execute(n, j)

		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}
}

func (p *Pool) execute(n int, j job) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("worker panic: %v", r)
			logging.ErrorWithContext(p.logger, "worker recovered from panic", "worker_panic",
				logging.Int("worker", n),
				logging.Error(err),
			)
			j.reject(err)
		}
	}()
	if err := j.ctx.Err(); err != nil {
		j.reject(err)
		return
	}
	j.run(j.ctx)
}

func (p *Pool) enqueue(j job) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		j.reject(ErrClosed)
		return
	}
	p.queue = append(p.queue, j)
	p.mu.Unlock()
	p.cond.Signal()
}

// Stats reports the current load.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Size: p.size, Running: p.running, Queued: len(p.queue)}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Close stops accepting work, fails queued jobs with ErrClosed and waits for
// running jobs to return.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()
	p.cond.Broadcast()

	for _, j := range pending {
		j.reject(ErrClosed)
	}
	p.wg.Wait()
	p.logger.Debug("worker pool stopped", logging.Int("dropped", len(pending)))
}
