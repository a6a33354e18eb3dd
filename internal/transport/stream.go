package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"perfume-store/internal/realtime"
	"perfume-store/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// ChangeSubscriber opens per-user change subscriptions
type ChangeSubscriber interface {
	Subscribe(ctx context.Context, table string, userID uuid.UUID, fn func(realtime.Event)) (*realtime.Subscription, error)
}

// CartCountMessage is pushed to the client whenever the cart changes
type CartCountMessage struct {
	Count      int    `json:"count"`
	Generation uint64 `json:"generation"`
}

// CartStream pushes the caller's live cart count over a websocket. The
// connection closes when the user signs out.
type CartStream struct {
	cart     service.CartLedger
	feed     ChangeSubscriber
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewCartStream creates a cart count stream. allowedOrigins follows the CORS
// list; "*" accepts any origin.
func NewCartStream(cart service.CartLedger, feed ChangeSubscriber, allowedOrigins []string, logger *zap.Logger) *CartStream {
	origins := make(map[string]struct{}, len(allowedOrigins))
	anyOrigin := len(allowedOrigins) == 0
	for _, o := range allowedOrigins {
		if o == "*" {
			anyOrigin = true
		}
		origins[o] = struct{}{}
	}

	return &CartStream{
		cart: cart,
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if anyOrigin {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
		logger: logger,
	}
}

func (s *CartStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		s.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var (
		wg      sync.WaitGroup
		writeMu sync.Mutex
		gen     realtime.Generation
	)
	defer wg.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	write := func(fn func() error) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return fn()
	}

	// push reads the count and sends it unless a newer read already went out
	push := func() {
		defer wg.Done()
		ticket := gen.Next()
		count, err := s.cart.Count(ctx, userID)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Failed to refresh cart count", zap.Error(err), zap.String("user_id", userID.String()))
			}
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if !gen.Apply(ticket) {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(CartCountMessage{Count: count, Generation: ticket}); err != nil {
			cancel()
		}
	}

	sub, err := s.feed.Subscribe(ctx, realtime.TableCartItems, userID, func(realtime.Event) {
		wg.Add(1)
		go push()
	})
	if err != nil {
		s.logger.Error("Failed to subscribe to cart changes", zap.Error(err), zap.String("user_id", userID.String()))
		_ = write(func() error {
			return conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"))
		})
		return
	}
	defer sub.Unsubscribe()

	wg.Add(1)
	go push()

	// The server read timeout still applies to the hijacked conn; pongs extend it
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// Client frames are ignored; a read error means the peer went away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			_ = write(func() error {
				return conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"))
			})
			return
		case <-ticker.C:
			if err := write(func() error {
				return conn.WriteMessage(websocket.PingMessage, nil)
			}); err != nil {
				return
			}
		}
	}
}
