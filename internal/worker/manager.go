// Package worker serializes chat handling per owner: one goroutine per
// active owner drains that owner's tasks in order, so two messages from the
// same owner can never interleave a history read with an append.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"tgchatbot/internal/models"
	"tgchatbot/internal/service/history"
)

const queueLen = 16

const defaultIdleTimeout = 5 * time.Minute

// ErrBusy is returned when an owner's task queue is full.
var ErrBusy = errors.New("owner task queue full")

// ErrStopped is returned for tasks still queued when the manager shuts down.
var ErrStopped = errors.New("worker manager stopped")

// Responder produces a reply for a user message given bounded history.
// *ai.Service satisfies it.
type Responder interface {
	Respond(ctx context.Context, history []models.Message, userMessage string) (string, error)
}

// Manager owns the per-owner workers. Workers spawn on demand and retire
// after sitting idle.
type Manager struct {
	history   *history.Service
	responder Responder
	idle      time.Duration

	mu     sync.Mutex
	owners map[int64]*ownerWorker
}

type ownerWorker struct {
	taskCh chan chatTask
	stopCh chan struct{}
}

type chatTask struct {
	ctx      context.Context
	text     string
	resultCh chan chatResult
}

type chatResult struct {
	reply string
	err   error
}

// NewManager builds a manager around the context store and the responder.
func NewManager(historySvc *history.Service, responder Responder, idle time.Duration) *Manager {
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	return &Manager{
		history:   historySvc,
		responder: responder,
		idle:      idle,
		owners:    make(map[int64]*ownerWorker),
	}
}

// Chat runs one exchange for the owner: fetch bounded history, orchestrate a
// reply, and persist the pair only on success. Requests for the same owner
// execute strictly in order; ErrBusy is returned when the owner's queue is
// full.
func (m *Manager) Chat(ctx context.Context, ownerID int64, text string) (string, error) {
	task := chatTask{ctx: ctx, text: text, resultCh: make(chan chatResult, 1)}

	m.mu.Lock()
	w, ok := m.owners[ownerID]
	if !ok {
		w = &ownerWorker{
			taskCh: make(chan chatTask, queueLen),
			stopCh: make(chan struct{}),
		}
		m.owners[ownerID] = w
		go m.runWorker(ownerID, w)
	}
	select {
	case w.taskCh <- task:
	default:
		m.mu.Unlock()
		return "", ErrBusy
	}
	m.mu.Unlock()

	select {
	case res := <-task.resultCh:
		return res.reply, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop shuts down all workers. Tasks still queued are answered with
// ErrStopped so no caller is left blocked.
func (m *Manager) Stop() {
	m.mu.Lock()
	for ownerID, w := range m.owners {
		close(w.stopCh)
		delete(m.owners, ownerID)
	}
	m.mu.Unlock()
}

func (m *Manager) runWorker(ownerID int64, w *ownerWorker) {
	idle := time.NewTimer(m.idle)
	defer idle.Stop()

	for {
		select {
		case <-w.stopCh:
			// The stop channel is closed under the manager lock, so every
			// task enqueued before shutdown is already in the buffer.
			for {
				select {
				case task := <-w.taskCh:
					task.resultCh <- chatResult{err: ErrStopped}
				default:
					return
				}
			}
		case task := <-w.taskCh:
			task.resultCh <- m.handle(ownerID, task)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.idle)
		case <-idle.C:
			if m.retire(ownerID, w) {
				log.Printf("worker for owner %d retired after idle timeout", ownerID)
				return
			}
			idle.Reset(m.idle)
		}
	}
}

// retire removes the worker from the map unless tasks are still queued.
// Enqueue and retire both hold the manager lock, so no task can slip into a
// retired worker's queue.
func (m *Manager) retire(ownerID int64, w *ownerWorker) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(w.taskCh) > 0 {
		return false
	}
	if m.owners[ownerID] == w {
		delete(m.owners, ownerID)
	}
	return true
}

func (m *Manager) handle(ownerID int64, task chatTask) chatResult {
	ctx := task.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	hist, err := m.history.Recent(ctx, ownerID)
	if err != nil {
		return chatResult{err: err}
	}

	reply, err := m.responder.Respond(ctx, hist, task.text)
	if err != nil {
		// Nothing is persisted on any failure, including an empty
		// completion: a user message whose reply never existed must not
		// enter the history.
		return chatResult{err: err}
	}

	if _, err := m.history.Append(ctx, ownerID, models.RoleUser, task.text); err != nil {
		return chatResult{err: err}
	}
	if _, err := m.history.Append(ctx, ownerID, models.RoleAssistant, reply); err != nil {
		return chatResult{err: err}
	}
	return chatResult{reply: reply}
}
