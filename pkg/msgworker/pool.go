package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	"github.com/sirupsen/logrus"
)

// activeKeyTTL is how long a phone stays listed as active after dispatch.
const activeKeyTTL = 2 * time.Second

// DefaultDrainTimeout bounds how long Stop lets queued jobs run before their
// contexts are cancelled.
const DefaultDrainTimeout = 30 * time.Second

// Job is one unit of CRM sync work. Jobs with the same Phone always run on the
// same worker, in dispatch order.
type Job struct {
	Phone   string
	Kind    string
	Handler func(ctx context.Context) error
}

type PoolStats struct {
	NumWorkers      int            `json:"num_workers"`
	QueueSize       int            `json:"queue_size"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalDispatched int64          `json:"total_dispatched"`
	TotalProcessed  int64          `json:"total_processed"`
	TotalDropped    int64          `json:"total_dropped"`
	TotalErrors     int64          `json:"total_errors"`
	Uptime          string         `json:"uptime"`
	WorkerStats     []WorkerStats  `json:"worker_stats"`
	ActivePhones    map[string]int `json:"active_phones"`
}

type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

type activeEntry struct {
	workerID  int
	updatedAt time.Time
}

// Pool is a fixed set of workers, each with its own queue, sharded by phone.
type Pool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32
	stopCh     chan struct{}

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
	activeMu        sync.Mutex
	active          map[string]activeEntry
	startTime       time.Time

	// DrainTimeout applies to Stop; zero means DefaultDrainTimeout.
	DrainTimeout time.Duration
}

type worker struct {
	id            int
	jobQueue      chan Job
	ctx           context.Context
	cancel        context.CancelFunc
	jobCtx        context.Context
	jobCancel     context.CancelFunc
	isProcessing  int32
	jobsProcessed int64
	pool          *Pool
}

func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 8
	}
	if queueSize <= 0 {
		queueSize = 500
	}

	return &Pool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
		active:     make(map[string]activeEntry),
		stopCh:     make(chan struct{}),
		startTime:  time.Now(),
	}
}

// Start launches the workers. Cancelling ctx drains the queues and stops them.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.pruneActive(time.Now())
			}
		}
	}()

	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		// Job contexts keep the parent's values but not its cancellation, so
		// queued syncs still complete while the pool shuts down.
		jobCtx, jobCancel := context.WithCancel(context.WithoutCancel(ctx))
		w := &worker{
			id:        i,
			jobQueue:  make(chan Job, p.queueSize),
			ctx:       workerCtx,
			cancel:    cancel,
			jobCtx:    jobCtx,
			jobCancel: jobCancel,
			pool:      p,
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[MSG_WORKER_POOL] started with %d workers, queue size %d", p.numWorkers, p.queueSize)
}

// TryDispatch enqueues without blocking and reports whether the job was accepted.
func (p *Pool) TryDispatch(job Job) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	job.Phone = utils.NormalizePhone(job.Phone)
	shard := p.shardFor(job.Phone)
	atomic.AddInt64(&p.totalDispatched, 1)

	p.activeMu.Lock()
	p.active[job.Phone] = activeEntry{workerID: shard, updatedAt: time.Now()}
	p.activeMu.Unlock()

	sent := func() (ok bool) {
		// Stop may close the queue between the stopped check and the send.
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].jobQueue <- job:
			return true
		default:
			return false
		}
	}()
	if sent {
		return true
	}

	p.activeMu.Lock()
	delete(p.active, job.Phone)
	p.activeMu.Unlock()

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[MSG_WORKER_POOL] worker %d queue full or stopped, dropping %s job for %s", shard, job.Kind, job.Phone)
	return false
}

func (p *Pool) Dispatch(job Job) {
	_ = p.TryDispatch(job)
}

// Stop closes every queue and waits for in-flight and queued jobs to finish.
// Jobs still running after DrainTimeout see their context cancelled.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		close(p.stopCh)
		logrus.Info("[MSG_WORKER_POOL] stopping workers")

		for _, w := range p.workers {
			if w != nil {
				close(w.jobQueue)
			}
		}

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		timeout := p.DrainTimeout
		if timeout <= 0 {
			timeout = DefaultDrainTimeout
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			logrus.Warnf("[MSG_WORKER_POOL] drain timeout %s reached, cancelling remaining jobs", timeout)
			p.cancelJobs()
			<-done
		}

		for _, w := range p.workers {
			if w != nil {
				w.cancel()
				w.jobCancel()
			}
		}
		logrus.Info("[MSG_WORKER_POOL] all workers stopped")
	})
}

func (p *Pool) cancelJobs() {
	for _, w := range p.workers {
		if w != nil {
			w.jobCancel()
		}
	}
}

func (p *Pool) shardFor(phone string) int {
	h := fnv.New32a()
	h.Write([]byte(phone))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *Pool) pruneActive(now time.Time) {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for k, v := range p.active {
		if now.Sub(v.updatedAt) > activeKeyTTL {
			delete(p.active, k)
		}
	}
}

func (p *Pool) GetStats() PoolStats {
	workerStats := make([]WorkerStats, 0, len(p.workers))
	activeWorkers := 0
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		processing := atomic.LoadInt32(&w.isProcessing) == 1
		if processing {
			activeWorkers++
		}
		workerStats = append(workerStats, WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			IsProcessing:  processing,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		})
	}

	p.pruneActive(time.Now())
	p.activeMu.Lock()
	phones := make(map[string]int, len(p.active))
	for k, v := range p.active {
		phones[k] = v.workerID
	}
	p.activeMu.Unlock()

	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   activeWorkers,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		Uptime:          time.Since(p.startTime).Round(time.Second).String(),
		WorkerStats:     workerStats,
		ActivePhones:    phones,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[MSG_WORKER_POOL] worker %d started", w.id)

	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				logrus.Debugf("[MSG_WORKER_POOL] worker %d shutting down", w.id)
				return
			}
			w.process(job)
		case <-w.ctx.Done():
			logrus.Debugf("[MSG_WORKER_POOL] worker %d context cancelled, draining queue", w.id)
			atomic.StoreInt32(&w.pool.stopped, 1)
			w.drain()
			return
		}
	}
}

func (w *worker) process(job Job) {
	atomic.StoreInt32(&w.isProcessing, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[MSG_WORKER_POOL] worker %d panic on %s job for %s: %v", w.id, job.Kind, job.Phone, r)
		}
		atomic.StoreInt32(&w.isProcessing, 0)
		atomic.AddInt64(&w.jobsProcessed, 1)
		atomic.AddInt64(&w.pool.totalProcessed, 1)
	}()

	// Jobs outlive the HTTP request that dispatched them, so they get the
	// worker's job context rather than the caller's.
	if err := job.Handler(w.jobCtx); err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Errorf("[MSG_WORKER_POOL] worker %d %s job failed for %s", w.id, job.Kind, job.Phone)
	}
}

func (w *worker) drain() {
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			w.process(job)
		default:
			return
		}
	}
}
