package processor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Do after Shutdown.
var ErrPoolClosed = errors.New("worker pool is shut down")

// Task is a unit of recognition work run by the pool.
type Task func(ctx context.Context) error

// WorkerPool bounds the number of recognition requests processed at once.
type WorkerPool struct {
	jobs            chan *job
	workerCount     int
	activeJobs      int
	activeJobsMutex sync.Mutex
	shutdown        chan struct{}
	once            sync.Once
	wg              sync.WaitGroup
}

type job struct {
	ctx      context.Context
	task     Task
	resultCh chan error
}

// DefaultWorkerCount uses 75% of the available CPUs, at least 2.
func DefaultWorkerCount() int {
	return max(2, (runtime.NumCPU()*3)/4)
}

// NewWorkerPool starts workerCount workers. A non-positive count falls back to
// DefaultWorkerCount and a non-positive queue size to twice the worker count.
func NewWorkerPool(workerCount, queueSize int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount()
	}
	if queueSize <= 0 {
		queueSize = workerCount * 2
	}

	log.Infof("Initializing recognition worker pool with %d workers", workerCount)

	pool := &WorkerPool{
		jobs:        make(chan *job, queueSize),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}
	pool.startWorkers()
	return pool
}

func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			log.Debugf("Worker %d started", workerID)

			for {
				select {
				case j := <-p.jobs:
					p.run(workerID, j)
				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *WorkerPool) run(workerID int, j *job) {
	if err := j.ctx.Err(); err != nil {
		j.resultCh <- err
		return
	}

	p.activeJobsMutex.Lock()
	p.activeJobs++
	jobCount := p.activeJobs
	p.activeJobsMutex.Unlock()

	log.Debugf("Worker %d processing job (active jobs: %d)", workerID, jobCount)
	start := time.Now()

	err := j.task(j.ctx)

	p.activeJobsMutex.Lock()
	p.activeJobs--
	p.activeJobsMutex.Unlock()

	// resultCh is buffered, so this never blocks even if the caller gave up.
	j.resultCh <- err
	log.Debugf("Worker %d completed job in %v", workerID, time.Since(start))
}

// Do runs task on a worker and waits for it. It returns ctx.Err() if ctx is
// cancelled while queued or running.
func (p *WorkerPool) Do(ctx context.Context, task Task) error {
	j := &job{ctx: ctx, task: task, resultCh: make(chan error, 1)}

	select {
	case <-p.shutdown:
		return ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- j:
	case <-p.shutdown:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.shutdown:
		return ErrPoolClosed
	}
}

// ActiveJobCount returns the number of jobs currently running.
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// GetWorkerCount returns the number of workers.
func (p *WorkerPool) GetWorkerCount() int {
	return p.workerCount
}

// GetQueueCapacity returns the capacity of the job queue.
func (p *WorkerPool) GetQueueCapacity() int {
	return cap(p.jobs)
}

// QueuedJobCount returns the number of jobs waiting for a worker.
func (p *WorkerPool) QueuedJobCount() int {
	return len(p.jobs)
}

// Shutdown stops the workers after their current job. It is safe to call twice.
func (p *WorkerPool) Shutdown() {
	p.once.Do(func() {
		close(p.shutdown)
	})
	p.wg.Wait()
}
