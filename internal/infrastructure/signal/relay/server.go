package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"famcall/internal/infrastructure/signal"
	"famcall/pkg/config"
	"famcall/pkg/utils"
	"famcall/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server is the signaling relay. It fans call and invite channels out to
// connected WebSocket clients, and through Redis to other relay instances so
// two parties can land on different relays.
type Server struct {
	cfg        *config.Config
	rdb        *redis.Client
	instanceID string

	mu       sync.RWMutex
	channels map[string]map[*client]struct{}

	httpServer *http.Server
	logger     *zap.SugaredLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(cfg *config.Config, rdb *redis.Client, logger *zap.SugaredLogger) *Server {
	return &Server{
		cfg:        cfg,
		rdb:        rdb,
		instanceID: utils.GenerateScopeID(),
		channels:   make(map[string]map[*client]struct{}),
		logger:     logger,
	}
}

// Start runs the HTTP listener and, when Redis is configured, the
// cross-instance fan-out loop. It returns once the listener is up.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.rdb != nil {
		s.wg.Add(1)
		go s.fanoutLoop(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "instance": s.instanceID})
	})
	router.GET("/ws", func(c *gin.Context) {
		s.handleWebSocket(c.Writer, c.Request)
	})

	s.httpServer = &http.Server{
		Addr:    s.cfg.Relay.Address,
		Handler: router,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorw("relay listener stopped", "error", err)
		}
	}()

	s.logger.Infow("relay started", "address", s.cfg.Relay.Address, "instance", s.instanceID)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		server:  s,
		conn:    conn,
		subs:    make(map[string]struct{}),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.Relay.MessagesPerSecond), s.cfg.Relay.Burst),
	}
	relayConnections.Inc()
	defer relayConnections.Dec()

	cl.run()
}

// publish delivers an envelope to local subscribers and forwards it to the
// other relay instances over Redis.
func (s *Server) publish(ctx context.Context, env *signal.Envelope, from *client) {
	s.deliverLocal(env, from)

	if s.rdb == nil {
		return
	}
	data, err := signal.MarshalFanout(s.instanceID, env)
	if err != nil {
		s.logger.Errorw("fan-out marshal failed", "error", err)
		return
	}
	if err := s.rdb.Publish(ctx, fanoutChannel, data).Err(); err != nil {
		s.logger.Warnw("fan-out publish failed", "channel", env.Channel, "error", err)
	}
}

func (s *Server) deliverLocal(env *signal.Envelope, from *client) {
	out := &signal.Envelope{Op: signal.OpDeliver, Channel: env.Channel, Message: env.Message}

	s.mu.RLock()
	targets := make([]*client, 0, len(s.channels[env.Channel]))
	for cl := range s.channels[env.Channel] {
		if cl == from {
			continue
		}
		targets = append(targets, cl)
	}
	s.mu.RUnlock()

	for _, cl := range targets {
		cl.send(out)
	}
	relayMessagesDelivered.Add(float64(len(targets)))
}

const fanoutChannel = "famcall:relay:fanout"

func (s *Server) fanoutLoop(ctx context.Context) {
	defer s.wg.Done()

	pubsub := s.rdb.Subscribe(ctx, fanoutChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			instance, env, err := signal.UnmarshalFanout([]byte(msg.Payload))
			if err != nil {
				s.logger.Warnw("dropping undecodable fan-out frame", "error", err)
				continue
			}
			if instance == s.instanceID {
				continue
			}
			s.deliverLocal(env, nil)
		}
	}
}

func (s *Server) subscribe(channel string, cl *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channels[channel] == nil {
		s.channels[channel] = make(map[*client]struct{})
	}
	s.channels[channel][cl] = struct{}{}
	cl.subs[channel] = struct{}{}
}

func (s *Server) unsubscribe(channel string, cl *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels[channel], cl)
	if len(s.channels[channel]) == 0 {
		delete(s.channels, channel)
	}
	delete(cl.subs, channel)
}

func (s *Server) dropClient(cl *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for channel := range cl.subs {
		delete(s.channels[channel], cl)
		if len(s.channels[channel]) == 0 {
			delete(s.channels, channel)
		}
	}
}

// client is one WebSocket connection to the relay.
type client struct {
	server *Server
	conn   *websocket.Conn

	writeMu sync.Mutex
	subs    map[string]struct{} // guarded by server.mu
	limiter *rate.Limiter
}

func (c *client) run() {
	s := c.server
	defer func() {
		s.dropClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(s.cfg.Relay.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(s.cfg.Relay.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(s.cfg.Relay.PongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.cfg.Relay.PingInterval)
	defer pingTicker.Stop()

	frames := make(chan *signal.Envelope, 16)
	errs := make(chan error, 1)

	go func() {
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			c.conn.SetReadDeadline(time.Now().Add(s.cfg.Relay.PongTimeout))
			env, err := signal.UnmarshalEnvelope(data)
			if err != nil {
				s.logger.Warnw("dropping undecodable client frame", "error", err)
				continue
			}
			frames <- env
		}
	}()

	for {
		select {
		case env := <-frames:
			c.handle(env)

		case <-pingTicker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}

		case err := <-errs:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("client read error", "error", err)
			}
			return
		}
	}
}

func (c *client) handle(env *signal.Envelope) {
	s := c.server
	switch env.Op {
	case signal.OpSubscribe:
		s.subscribe(env.Channel, c)

	case signal.OpUnsubscribe:
		s.unsubscribe(env.Channel, c)

	case signal.OpPublish:
		if !c.limiter.Allow() {
			relayMessagesThrottled.Inc()
			s.logger.Warnw("client exceeded publish rate, dropping message", "channel", env.Channel)
			return
		}
		if env.Message == nil || validation.ValidateSignalMessage(env.Message) != nil {
			relayMessagesRejected.Inc()
			return
		}
		s.publish(context.Background(), env, c)

	default:
		s.logger.Debugw("ignoring unknown op", "op", env.Op)
	}
}

func (c *client) send(env *signal.Envelope) {
	data, err := env.Marshal()
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.server.logger.Debugw("client write failed", "error", err)
	}
}
