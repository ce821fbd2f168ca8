package acquirer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SettleJob asks a worker to settle one asynchronous charge after Delay.
type SettleJob struct {
	ChargeID string
	Delay    time.Duration
}

type Worker struct {
	ID         int
	WorkerPool chan chan SettleJob
	JobChannel chan SettleJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan SettleJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan SettleJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, process func(context.Context, SettleJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("settlement worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker settling charge", "worker_id", w.ID, "charge_id", job.ChargeID)
				process(ctx, job)
			case <-ctx.Done():
				w.Logger.Debug("settlement worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// pool fans queued jobs out to idle workers.
type pool struct {
	jobQueue   chan SettleJob
	workerPool chan chan SettleJob
	maxWorkers int
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func newPool(maxWorkers, queueSize int, logger *slog.Logger) *pool {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		jobQueue:   make(chan SettleJob, queueSize),
		workerPool: make(chan chan SettleJob, maxWorkers),
		maxWorkers: maxWorkers,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *pool) start(process func(context.Context, SettleJob)) {
	p.once.Do(func() {
		for i := 0; i < p.maxWorkers; i++ {
			NewWorker(i, p.workerPool, p.logger).Start(p.ctx, &p.wg, process)
		}

		p.wg.Add(1)
		go p.dispatch()

		p.logger.Info("settlement worker pool started",
			"max_workers", p.maxWorkers,
			"queue_size", cap(p.jobQueue))
	})
}

func (p *pool) dispatch() {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			select {
			case jobChannel := <-p.workerPool:
				select {
				case jobChannel <- job:
				case <-p.ctx.Done():
					return
				}
			case <-p.ctx.Done():
				return
			}
		case <-p.ctx.Done():
			p.logger.Info("settlement dispatcher shutting down")
			return
		}
	}
}

// enqueue never blocks; a full queue reports false.
func (p *pool) enqueue(job SettleJob) bool {
	select {
	case p.jobQueue <- job:
		return true
	default:
		return false
	}
}

func (p *pool) shutdown() {
	p.cancel()
	p.wg.Wait()
}
