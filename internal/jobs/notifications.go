package jobs

import (
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Ananth-NQI/truckpe-crew/internal/services"
)

// TemplateSender sends one named WhatsApp template.
type TemplateSender interface {
	SendTemplate(to string, templateName string, params map[string]string) error
}

// NotificationStats counts deliveries since Start.
type NotificationStats struct {
	Queued  int64 `json:"queued"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Workers int   `json:"workers"`
	Running bool  `json:"running"`
}

// NotificationJob delivers queued notifications on a fixed pool of workers.
type NotificationJob struct {
	sender    TemplateSender
	workers   int
	queueSize int

	mu        sync.RWMutex
	queue     chan services.Notification
	group     *errgroup.Group
	isRunning bool

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewNotificationJob creates a new notification dispatcher
func NewNotificationJob(sender TemplateSender, workers, queueSize int) *NotificationJob {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &NotificationJob{
		sender:    sender,
		workers:   workers,
		queueSize: queueSize,
	}
}

var _ services.Dispatcher = (*NotificationJob)(nil)

// Start launches the workers.
func (n *NotificationJob) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.isRunning {
		log.Println("Notification workers already running")
		return
	}

	n.queue = make(chan services.Notification, n.queueSize)
	// Workers never fail, so Stop closes the queue instead of cancelling a context.
	n.group = new(errgroup.Group)
	for i := 0; i < n.workers; i++ {
		queue := n.queue
		n.group.Go(func() error {
			n.work(queue)
			return nil
		})
	}
	n.isRunning = true
	log.Printf("📨 Notification workers started (%d workers, queue %d)", n.workers, n.queueSize)
}

func (n *NotificationJob) work(queue <-chan services.Notification) {
	for note := range queue {
		if err := n.sender.SendTemplate(note.To, note.Template, note.Params); err != nil {
			n.failed.Add(1)
			log.Printf("❌ Notification %s to %s failed: %v", note.Template, note.To, err)
			continue
		}
		n.sent.Add(1)
	}
}

// Enqueue hands a notification to the workers without blocking.
// It returns false when the job is stopped or the queue is full.
func (n *NotificationJob) Enqueue(note services.Notification) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.isRunning {
		n.dropped.Add(1)
		return false
	}
	select {
	case n.queue <- note:
		return true
	default:
		n.dropped.Add(1)
		return false
	}
}

// Stop drains the queue and waits for the workers to finish.
func (n *NotificationJob) Stop() {
	n.mu.Lock()
	if !n.isRunning {
		n.mu.Unlock()
		return
	}
	n.isRunning = false
	close(n.queue)
	group := n.group
	n.mu.Unlock()

	log.Println("Stopping notification workers...")
	_ = group.Wait()
	log.Println("✅ Notification workers stopped")
}

// Stats returns delivery counters.
func (n *NotificationJob) Stats() NotificationStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	queued := 0
	if n.isRunning {
		queued = len(n.queue)
	}
	return NotificationStats{
		Queued:  int64(queued),
		Sent:    n.sent.Load(),
		Failed:  n.failed.Load(),
		Dropped: n.dropped.Load(),
		Workers: n.workers,
		Running: n.isRunning,
	}
}
