// Package realtime delivers row-change notifications to per-user subscribers
// over Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	TableCartItems = "cart_items"
	TableFavorites = "favorites"
	TableReviews   = "reviews"

	// TableSession carries identity changes; a signed_out event closes
	// every subscription of that user.
	TableSession = "session"
)

const (
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpSignedOut = "signed_out"
)

const channelPrefix = "perfume-store:changes"

// Event describes a change to rows owned by one user
type Event struct {
	Table  string    `json:"table"`
	Op     string    `json:"op"`
	UserID uuid.UUID `json:"user_id"`
	At     time.Time `json:"at"`
}

// Feed publishes and subscribes to change events
type Feed struct {
	client *redis.Client
	logger *zap.Logger
}

// NewFeed creates a change feed on top of a Redis client
func NewFeed(client *redis.Client, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{client: client, logger: logger.Named("realtime")}
}

func channel(table string, userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", channelPrefix, table, userID)
}

// Publish sends the event to the subscribers of its (table, user) channel
func (f *Feed) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}

	if err := f.client.Publish(ctx, channel(event.Table, event.UserID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	return nil
}

// Notify publishes the event and logs a failure instead of returning it.
// Mutations have already been committed when it runs.
func (f *Feed) Notify(ctx context.Context, table, op string, userID uuid.UUID) {
	if f == nil {
		return
	}
	if err := f.Publish(ctx, Event{Table: table, Op: op, UserID: userID}); err != nil {
		f.logger.Warn("Failed to publish change event",
			zap.Error(err),
			zap.String("table", table),
			zap.String("op", op),
			zap.String("user_id", userID.String()),
		)
	}
}

// Subscribe listens for changes to table rows owned by userID. fn runs on
// the subscription goroutine, one event at a time. The subscription ends on
// Unsubscribe, on ctx cancellation or when the user signs out.
func (f *Feed) Subscribe(ctx context.Context, table string, userID uuid.UUID, fn func(Event)) (*Subscription, error) {
	channels := []string{channel(table, userID)}
	if table != TableSession {
		channels = append(channels, channel(TableSession, userID))
	}

	pubsub := f.client.Subscribe(ctx, channels...)

	// Wait for every channel to be confirmed so no publish is missed afterwards
	var pending []*redis.Message
	for confirmed := 0; confirmed < len(channels); {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			_ = pubsub.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
		}
		switch m := msg.(type) {
		case *redis.Subscription:
			confirmed = m.Count
		case *redis.Message:
			pending = append(pending, m)
		}
	}

	sub := &Subscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
		logger: f.logger,
		table:  table,
		userID: userID,
	}

	sub.wg.Add(1)
	go sub.run(ctx, pending, fn)

	f.logger.Debug("Subscription opened",
		zap.String("table", table),
		zap.String("user_id", userID.String()),
	)

	return sub, nil
}

// Subscription is a live registration on the feed
type Subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
	table  string
	userID uuid.UUID
}

// Done is closed once the subscription has been released
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe releases the subscription and waits for its goroutine to exit.
// Safe to call more than once, but not from inside the event callback.
func (s *Subscription) Unsubscribe() {
	s.release()
	s.wg.Wait()
}

func (s *Subscription) release() {
	s.once.Do(func() {
		close(s.done)
		if err := s.pubsub.Close(); err != nil {
			s.logger.Debug("Failed to close pubsub", zap.Error(err))
		}
		s.logger.Debug("Subscription released",
			zap.String("table", s.table),
			zap.String("user_id", s.userID.String()),
		)
	})
}

func (s *Subscription) run(ctx context.Context, pending []*redis.Message, fn func(Event)) {
	defer s.wg.Done()
	defer s.release()

	for _, msg := range pending {
		if !s.dispatch(msg, fn) {
			return
		}
	}

	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if !s.dispatch(msg, fn) {
				return
			}
		}
	}
}

// dispatch reports whether the subscription should keep running
func (s *Subscription) dispatch(msg *redis.Message, fn func(Event)) bool {
	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		s.logger.Warn("Dropping malformed change event", zap.Error(err), zap.String("channel", msg.Channel))
		return true
	}

	if event.Table == TableSession && event.Op == OpSignedOut {
		return false
	}

	fn(event)
	return true
}
