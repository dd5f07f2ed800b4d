package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// queueDepthInterval is how often queue lengths are exported as metrics
const queueDepthInterval = 15 * time.Second

// PeriodicTask is a function the manager runs on a fixed interval while it is running
type PeriodicTask struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Manager manages the global job queue and background tasks
type Manager struct {
	queue   *Queue
	tasks   []PeriodicTask
	cancel  context.CancelFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager wraps a queue. The queue depth export is always registered.
func NewManager(queue *Queue) *Manager {
	m := &Manager{
		queue:  queue,
		stopCh: make(chan struct{}),
	}
	m.AddPeriodicTask(PeriodicTask{
		Name:     "queue-depth",
		Interval: queueDepthInterval,
		Run:      queue.PublishDepth,
	})
	return m
}

// InitializeManager sets up the global manager with a configured queue. Later calls are no-ops.
func InitializeManager(queue *Queue) *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(queue)
	})
	return globalManager
}

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(NewQueue(nil, DefaultOptions()))
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// AddPeriodicTask registers a task. Tasks added while running start with the next Start.
func (m *Manager) AddPeriodicTask(task PeriodicTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	for _, task := range m.tasks {
		if task.Interval <= 0 || task.Run == nil {
			log.Warnf("[JobQueue Manager] Skipping periodic task %q without interval or function", task.Name)
			continue
		}
		m.wg.Add(1)
		go m.taskWorker(ctx, task)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops background tasks, then the job queue
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	// Signal workers to stop
	close(m.stopCh)
	m.cancel()
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// taskWorker runs one periodic task until the manager stops
func (m *Manager) taskWorker(ctx context.Context, task PeriodicTask) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started %s worker (interval: %s)", task.Name, task.Interval)

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			log.Infof("[JobQueue Manager] %s worker stopping", task.Name)
			return
		case <-ticker.C:
			if err := task.Run(ctx); err != nil {
				log.Errorf("[JobQueue Manager] %s error: %v", task.Name, err)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
