package batcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/docchat/internal/storage"
)

// Defaults for the debounce window and batch size.
const (
	DefaultWindow   = 15 * time.Second
	DefaultMaxBatch = 10
)

// MessageQueue abstracts the persistent per-user message queue.
type MessageQueue interface {
	AddMessage(m storage.PendingMessage) (int64, error)
	ClaimBatch(userID, batchID string, limit int) ([]storage.PendingMessage, error)
	AttachResponse(batchID, response string) error
}

// Handler processes one claimed batch and returns the response text to
// attach to it.
type Handler interface {
	HandleBatch(ctx context.Context, userID string, messages []storage.PendingMessage) (string, error)
}

// Batcher debounces inbound messages per user: the first message opens a
// window, and when it closes everything queued is drained in batches of at
// most maxBatch, oldest first. Messages arriving during a drain are picked
// up before the worker goes idle, so at most one worker runs per user and
// no message waits for a window that already fired.
type Batcher struct {
	queue    MessageQueue
	handler  Handler
	window   time.Duration
	maxBatch int
	logger   *slog.Logger

	mu    sync.Mutex
	users map[string]*userState
	done  chan struct{}
	wg    sync.WaitGroup
}

type userState struct {
	active bool
	dirty  bool
}

// New creates a Batcher. Non-positive window or maxBatch fall back to the
// defaults.
func New(queue MessageQueue, handler Handler, window time.Duration, maxBatch int) *Batcher {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Batcher{
		queue:    queue,
		handler:  handler,
		window:   window,
		maxBatch: maxBatch,
		logger:   slog.Default(),
		users:    make(map[string]*userState),
		done:     make(chan struct{}),
	}
}

// Submit persists a message and schedules it for processing. The message
// survives a crash between submission and processing; the queue is
// re-drained on the next submission for the same user.
func (b *Batcher) Submit(userID, text string, isFile bool) error {
	_, err := b.queue.AddMessage(storage.PendingMessage{
		UserID:     userID,
		Text:       text,
		IsFile:     isFile,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		// Shutting down. The message is persisted and will be drained
		// on the next start.
		return nil
	default:
	}

	st, ok := b.users[userID]
	if !ok {
		st = &userState{}
		b.users[userID] = st
	}
	st.dirty = true
	if !st.active {
		st.active = true
		b.wg.Add(1)
		go b.run(userID, st)
	}
	return nil
}

// Shutdown flushes every open window immediately and waits for in-flight
// workers to finish, or for ctx to expire.
func (b *Batcher) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	select {
	case <-b.done:
	default:
		close(b.done)
	}
	b.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Batcher) run(userID string, st *userState) {
	defer b.wg.Done()

	timer := time.NewTimer(b.window)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-b.done:
		// Flush without waiting out the window.
	}

	for {
		b.mu.Lock()
		st.dirty = false
		b.mu.Unlock()

		batchID := uuid.New().String()
		messages, err := b.queue.ClaimBatch(userID, batchID, b.maxBatch)
		if err != nil {
			b.logger.Error("claiming batch", "user_id", userID, "error", err)
			b.idle(userID, st)
			return
		}

		if len(messages) == 0 {
			b.mu.Lock()
			if st.dirty {
				b.mu.Unlock()
				continue
			}
			st.active = false
			delete(b.users, userID)
			b.mu.Unlock()
			return
		}

		b.handle(userID, batchID, messages)
	}
}

func (b *Batcher) handle(userID, batchID string, messages []storage.PendingMessage) {
	response, err := b.handler.HandleBatch(context.Background(), userID, messages)
	if err != nil {
		b.logger.Error("handling batch",
			"user_id", userID, "batch_id", batchID, "size", len(messages), "error", err)
		return
	}
	if err := b.queue.AttachResponse(batchID, response); err != nil {
		b.logger.Error("attaching response", "batch_id", batchID, "error", err)
	}
}

func (b *Batcher) idle(userID string, st *userState) {
	b.mu.Lock()
	st.active = false
	delete(b.users, userID)
	b.mu.Unlock()
}
