// Пакет worker — пул фоновых задач (fire-and-forget).
// Задачи выполняются после ответа клиенту; ошибки и паники логируются,
// до вызывающего кода не доходят.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var backgroundTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ap_background_tasks_total",
	Help: "Количество фоновых задач по результату выполнения.",
}, []string{"task", "status"})

// TaskFunc — тело фоновой задачи.
type TaskFunc func(ctx context.Context) error

type task struct {
	name string
	fn   TaskFunc
}

// Pool — фиксированное число воркеров с ограниченной очередью.
type Pool struct {
	queue   chan task
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	pending sync.WaitGroup
	workers sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool запускает workers воркеров с очередью на queueSize задач.
func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan task, queueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(slog.String("component", "worker_pool")),
	}

	p.workers.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

// Submit ставит задачу в очередь без блокировки.
// Возвращает false, если очередь заполнена или пул остановлен; задача отбрасывается.
func (p *Pool) Submit(name string, fn TaskFunc) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		backgroundTasksTotal.WithLabelValues(name, "dropped").Inc()
		p.logger.Warn("Пул остановлен, задача отброшена", slog.String("task", name))
		return false
	}

	p.pending.Add(1)
	select {
	case p.queue <- task{name: name, fn: fn}:
		return true
	default:
		p.pending.Done()
		backgroundTasksTotal.WithLabelValues(name, "dropped").Inc()
		p.logger.Warn("Очередь фоновых задач заполнена, задача отброшена", slog.String("task", name))
		return false
	}
}

// Wait ждёт завершения всех поставленных задач.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Shutdown прекращает приём задач и ждёт выполнения очереди.
// По истечении ctx контекст задач отменяется.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("остановка пула фоновых задач: %w", ctx.Err())
	}
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for t := range p.queue {
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			backgroundTasksTotal.WithLabelValues(t.name, "panic").Inc()
			p.logger.Error("Паника в фоновой задаче",
				slog.String("task", t.name),
				slog.Any("panic", r),
			)
		}
	}()

	if err := t.fn(p.ctx); err != nil {
		backgroundTasksTotal.WithLabelValues(t.name, "error").Inc()
		p.logger.Error("Ошибка фоновой задачи",
			slog.String("task", t.name),
			slog.String("error", err.Error()),
		)
		return
	}
	backgroundTasksTotal.WithLabelValues(t.name, "ok").Inc()
	p.logger.Debug("Фоновая задача выполнена", slog.String("task", t.name))
}
