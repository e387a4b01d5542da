// Package queue implements the outbound push-notification delivery pool
// named in spec §2/§4.5: a bounded set of goroutines draining an in-memory
// job queue, at-least-once, fire-and-forget. Adapted from the teacher's
// pkg/queue WorkerPool/Worker shape — the DB-polling session queue and
// orphan-recovery scan are dropped since this queue holds transient jobs,
// not durable work; what's kept is the Start/Stop/sync.Once graceful
// shutdown and per-worker health accounting.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wayfarian/groupjourney/pkg/external"
)

// Job is a single outbound push notification.
type Job struct {
	Notification external.PushNotification
	Attempt      int
}

// Config tunes the Notifier.
type Config struct {
	Enabled     bool
	WorkerCount int
	QueueSize   int
	MaxRetries  int
	RetryDelay  time.Duration
}

// DefaultConfig mirrors the teacher's modest worker counts, scaled down for
// a fire-and-forget notification fan-out rather than long-running agent
// sessions.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		WorkerCount: 4,
		QueueSize:   1000,
		MaxRetries:  2,
		RetryDelay:  time.Second,
	}
}

// WorkerHealth reports a single worker's recent activity.
type WorkerHealth struct {
	ID          string
	Processed   int64
	Failed      int64
	LastActivity time.Time
}

// Notifier owns the job channel and worker goroutines. A disabled Notifier
// (Config.Enabled == false, per spec §6.3's notifier enable flag) still
// accepts Enqueue calls but drops every job, logging once when Start is called.
type Notifier struct {
	cfg    Config
	sender external.PushSender

	jobs     chan Job
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	mu      sync.Mutex
	workers []*workerState
}

type workerState struct {
	id           string
	processed    atomic.Int64
	failed       atomic.Int64
	lastActivity atomic.Int64 // unix nanos
}

// NewNotifier creates a Notifier. sender is the external.PushSender
// collaborator (spec §1: push delivery is an out-of-scope collaborator);
// when cfg.Enabled is false, sender may be nil.
func NewNotifier(cfg Config, sender external.PushSender) *Notifier {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	return &Notifier{
		cfg:    cfg,
		sender: sender,
		jobs:   make(chan Job, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
}

// Start spawns the worker pool. Safe to call once; subsequent calls are
// no-ops.
func (n *Notifier) Start(ctx context.Context) {
	if n.started {
		return
	}
	n.started = true

	if !n.cfg.Enabled {
		slog.Info("notifier disabled, notifications will be dropped")
		return
	}

	for i := 0; i < n.cfg.WorkerCount; i++ {
		ws := &workerState{id: workerID(i)}
		n.mu.Lock()
		n.workers = append(n.workers, ws)
		n.mu.Unlock()

		n.wg.Add(1)
		go n.runWorker(ctx, ws)
	}
	slog.Info("notifier started", "workers", n.cfg.WorkerCount)
}

func workerID(i int) string {
	return "notifier-worker-" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Stop signals all workers to exit and waits for them to return. Jobs still
// in the queue when the workers stop are not delivered.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
	n.wg.Wait()
}

// Enqueue submits a notification for best-effort delivery. It never blocks
// the caller on delivery and never returns an error: a full queue or a
// disabled notifier both result in the job being dropped and counted,
// matching the "Notifier; best-effort" contract.
func (n *Notifier) Enqueue(notification external.PushNotification) {
	if !n.cfg.Enabled {
		n.dropped.Add(1)
		return
	}
	select {
	case n.jobs <- Job{Notification: notification}:
	default:
		n.dropped.Add(1)
		slog.Warn("notifier queue full, dropping notification", "user_id", notification.UserID)
	}
}

func (n *Notifier) runWorker(ctx context.Context, ws *workerState) {
	defer n.wg.Done()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ctx.Done():
			return
		case job := <-n.jobs:
			n.deliver(ctx, ws, job)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, ws *workerState, job Job) {
	ws.lastActivity.Store(time.Now().UnixNano())

	err := n.sender.Send(ctx, job.Notification)
	if err == nil {
		ws.processed.Add(1)
		n.processed.Add(1)
		return
	}

	if job.Attempt < n.cfg.MaxRetries {
		job.Attempt++
		slog.Warn("push notification failed, retrying",
			"user_id", job.Notification.UserID, "attempt", job.Attempt, "error", err)
		select {
		case <-time.After(n.cfg.RetryDelay):
		case <-n.stopCh:
			return
		case <-ctx.Done():
			return
		}
		n.deliver(ctx, ws, job)
		return
	}

	ws.failed.Add(1)
	n.failed.Add(1)
	slog.Error("push notification dropped after retries",
		"user_id", job.Notification.UserID, "error", err)
}

// Health reports aggregate counters plus per-worker activity, mirroring the
// teacher's PoolHealth/WorkerHealth composition used by the /health route.
type Health struct {
	Enabled   bool
	Workers   []WorkerHealth
	Processed int64
	Failed    int64
	Dropped   int64
	QueueDepth int
}

func (n *Notifier) Health() Health {
	n.mu.Lock()
	defer n.mu.Unlock()

	workers := make([]WorkerHealth, 0, len(n.workers))
	for _, ws := range n.workers {
		workers = append(workers, WorkerHealth{
			ID:           ws.id,
			Processed:    ws.processed.Load(),
			Failed:       ws.failed.Load(),
			LastActivity: time.Unix(0, ws.lastActivity.Load()),
		})
	}

	return Health{
		Enabled:    n.cfg.Enabled,
		Workers:    workers,
		Processed:  n.processed.Load(),
		Failed:     n.failed.Load(),
		Dropped:    n.dropped.Load(),
		QueueDepth: len(n.jobs),
	}
}
