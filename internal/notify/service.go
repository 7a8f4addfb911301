package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
)

type Message struct {
	OwnerID   string
	Kind      models.AlertKind
	Details   map[string]string
	CreatedAt time.Time
}

// Sender delivers one message, e.g. by mail or push.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Service queues notifications and delivers them from a fixed pool of
// workers. Notify never blocks: when the queue is full the message is dropped
// and logged.
type Service struct {
	sender       Sender
	messageQueue chan Message
	workers      int
	shutdownChan chan struct{}
	mu           sync.RWMutex // orders enqueues before the shutdown close
	closed       bool
	wg           sync.WaitGroup
	logger       *slog.Logger
}

func NewService(sender Sender, workers, queueSize int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}

	service := &Service{
		sender:       sender,
		messageQueue: make(chan Message, queueSize),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	service.startWorkers()

	return service
}

func (s *Service) Notify(ctx context.Context, ownerID string, kind models.AlertKind, details map[string]string) {
	msg := Message{
		OwnerID:   ownerID,
		Kind:      kind,
		Details:   details,
		CreatedAt: time.Now(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.WarnContext(ctx, "Notification dropped after shutdown",
			slog.String("owner_id", ownerID),
			slog.String("kind", string(kind)))
		return
	}

	select {
	case s.messageQueue <- msg:
		s.logger.DebugContext(ctx, "Notification queued",
			slog.String("owner_id", ownerID),
			slog.String("kind", string(kind)))
	default:
		s.logger.WarnContext(ctx, "Notification queue full, message dropped",
			slog.String("owner_id", ownerID),
			slog.String("kind", string(kind)))
	}
}

func (s *Service) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case msg := <-s.messageQueue:
			s.deliver(msg, id)
		case <-s.shutdownChan:
			s.drain(id)
			return
		}
	}
}

// drain delivers whatever is still queued when shutdown starts.
func (s *Service) drain(id int) {
	for {
		select {
		case msg := <-s.messageQueue:
			s.deliver(msg, id)
		default:
			return
		}
	}
}

func (s *Service) deliver(msg Message, workerID int) {
	startTime := time.Now()
	err := s.sender.Send(context.Background(), msg)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Failed to send notification",
			slog.String("owner_id", msg.OwnerID),
			slog.String("kind", string(msg.Kind)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
		return
	}
	s.logger.Debug("Notification sent",
		slog.String("owner_id", msg.OwnerID),
		slog.String("kind", string(msg.Kind)),
		slog.Int("worker_id", workerID),
		slog.Duration("duration", duration))
}

// Shutdown stops accepting messages and waits for the workers to flush the
// queue or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.shutdownChan)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
