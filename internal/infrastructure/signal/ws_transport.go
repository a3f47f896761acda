package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"famcall/internal/core/domain"
	"famcall/internal/core/ports"
	"famcall/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSTransport is the client-side transport for engines that reach the
// signaling relay over WebSocket instead of Redis directly (mobile and home
// networks). One connection multiplexes all channels of the local user.
type WSTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *zap.SugaredLogger

	mu       sync.RWMutex
	handlers map[string]map[string]func(*domain.SignalMessage) // channel -> scope -> handler
	closed   bool

	writeTimeout time.Duration
	pingInterval time.Duration
	done         chan struct{}
}

// DialWS connects to the relay and starts the read and ping pumps.
func DialWS(ctx context.Context, url string, logger *zap.SugaredLogger) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("relay dial failed: %w", err)
	}

	t := &WSTransport{
		conn:         conn,
		logger:       logger,
		handlers:     make(map[string]map[string]func(*domain.SignalMessage)),
		writeTimeout: 10 * time.Second,
		pingInterval: 30 * time.Second,
		done:         make(chan struct{}),
	}
	go t.readPump()
	go t.pingPump()
	return t, nil
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()
	return t.conn.Close()
}

func (t *WSTransport) Send(ctx context.Context, callID domain.CallID, msg *domain.SignalMessage) error {
	return t.write(&Envelope{Op: OpPublish, Channel: CallChannel(callID), Message: msg})
}

func (t *WSTransport) SendInvite(ctx context.Context, target domain.UserID, msg *domain.SignalMessage) error {
	return t.write(&Envelope{Op: OpPublish, Channel: InviteChannel(target), Message: msg})
}

func (t *WSTransport) Subscribe(ctx context.Context, callID domain.CallID, handler func(*domain.SignalMessage)) (ports.Subscription, error) {
	return t.subscribe(CallChannel(callID), handler)
}

func (t *WSTransport) SubscribeInvites(ctx context.Context, user domain.UserID, handler func(*domain.SignalMessage)) (ports.Subscription, error) {
	return t.subscribe(InviteChannel(user), handler)
}

func (t *WSTransport) subscribe(channel string, handler func(*domain.SignalMessage)) (ports.Subscription, error) {
	scope := utils.GenerateScopeID()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, domain.ErrSignalingUnavailable
	}
	first := len(t.handlers[channel]) == 0
	if t.handlers[channel] == nil {
		t.handlers[channel] = make(map[string]func(*domain.SignalMessage))
	}
	t.handlers[channel][scope] = handler
	t.mu.Unlock()

	if first {
		if err := t.write(&Envelope{Op: OpSubscribe, Channel: channel}); err != nil {
			t.mu.Lock()
			delete(t.handlers[channel], scope)
			t.mu.Unlock()
			return nil, err
		}
	}

	return &wsSub{t: t, channel: channel, scope: scope}, nil
}

type wsSub struct {
	t       *WSTransport
	channel string
	scope   string
	once    sync.Once
}

func (s *wsSub) Close() error {
	var err error
	s.once.Do(func() {
		s.t.mu.Lock()
		delete(s.t.handlers[s.channel], s.scope)
		last := len(s.t.handlers[s.channel]) == 0
		closed := s.t.closed
		s.t.mu.Unlock()
		if last && !closed {
			err = s.t.write(&Envelope{Op: OpUnsubscribe, Channel: s.channel})
		}
	})
	return err
}

func (t *WSTransport) write(env *Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("relay write failed: %w", err)
	}
	return nil
}

func (t *WSTransport) readPump() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.RLock()
			closed := t.closed
			t.mu.RUnlock()
			if !closed {
				t.logger.Warnw("relay connection lost", "error", err)
			}
			return
		}

		env, err := UnmarshalEnvelope(data)
		if err != nil {
			t.logger.Warnw("dropping undecodable relay frame", "error", err)
			continue
		}
		if env.Op != OpDeliver || env.Message == nil {
			continue
		}

		t.mu.RLock()
		handlers := make([]func(*domain.SignalMessage), 0, len(t.handlers[env.Channel]))
		for _, h := range t.handlers[env.Channel] {
			handlers = append(handlers, h)
		}
		t.mu.RUnlock()

		for _, h := range handlers {
			h(env.Message)
		}
	}
}

func (t *WSTransport) pingPump() {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debugw("relay ping failed", "error", err)
				return
			}
		}
	}
}
