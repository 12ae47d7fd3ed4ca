// Package chat holds the channel directory, message ledger and reaction toggle.
// Every operation takes the caller's Principal explicitly, checks ownership, writes
// through one store transaction and then broadcasts the change.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/mention"
	"github.com/chatterbox/internal/metrics"
	"github.com/chatterbox/internal/repository"
)

// Broadcaster fans an event out to the clients joined to room, or to every client
// when room is GlobalRoom. Delivery is best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, room string, event EventType, payload any)
}

// Notifier delivers an out-of-band alert (Web Push) to a single user.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

const notifyTimeout = 10 * time.Second

type Service struct {
	store    repository.Store
	mentions *mention.Resolver
	bc       Broadcaster
	notifier Notifier
	now      func() time.Time
	bg       sync.WaitGroup
}

// NewService wires the core. notifier may be nil to disable mention alerts.
func NewService(store repository.Store, bc Broadcaster, notifier Notifier) *Service {
	return &Service{
		store:    store,
		mentions: mention.NewResolver(store),
		bc:       bc,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Wait blocks until background mention alerts have finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

// storeErr maps a repository error onto the domain vocabulary. Typed errors pass
// through; a missing row becomes notFound; anything else is a store failure.
func storeErr(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var ae *apperror.AppError
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) && notFound != nil {
		return notFound
	}
	return apperror.Store(err)
}

func (s *Service) broadcast(ctx context.Context, room string, event EventType, payload any) {
	if s.bc == nil {
		return
	}
	s.bc.Broadcast(ctx, room, event, payload)
}

// observe records the outcome of op; store failures are also logged with their cause.
func observe(op string, err error) {
	metrics.ObserveOp(op, err)
	if err != nil && apperror.CodeOf(err) == apperror.CodeStore {
		logger.Errorf("chat.%s: %v", op, err)
	}
}
