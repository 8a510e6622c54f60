package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Task is a unit of blocking work. ctx is cancelled once the pool stops.
type Task func(ctx context.Context)

type Config struct {
	Concurrency int
	QueueSize   int
}

// Pool runs submitted tasks on a fixed set of worker goroutines so callers
// never block on process execution or file I/O.
type Pool struct {
	cfg    Config
	tasks  chan Task
	stop   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	started bool
}

func New(cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:    cfg,
		tasks:  make(chan Task, cfg.QueueSize),
		stop:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.loop(i)
	}
}

// Submit queues t without blocking.
func (p *Pool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels the pool context and waits for workers. Tasks still queued are
// run with the cancelled context so their owners always observe completion.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	p.cancel()
	close(p.stop)
	if !started {
		p.drain()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) loop(id int) {
	defer p.wg.Done()
	log.Debug().Int("worker", id).Msg("dispatcher worker started")
	for {
		select {
		case <-p.stop:
			p.drain()
			log.Debug().Int("worker", id).Msg("dispatcher worker stopped")
			return
		case t := <-p.tasks:
			p.run(id, t)
		}
	}
}

func (p *Pool) drain() {
	for {
		select {
		case t := <-p.tasks:
			p.run(-1, t)
		default:
			return
		}
	}
}

func (p *Pool) run(id int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("worker", id).Str("panic", fmt.Sprint(r)).Msg("dispatcher task panicked")
		}
	}()
	t(p.ctx)
}
