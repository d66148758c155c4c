package signal

import (
	"context"
	"net/http"
	"sync"

	"github.com/dkeye/StreamRoom/internal/app/orch"
	"github.com/dkeye/StreamRoom/internal/config"
	"github.com/dkeye/StreamRoom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// SignalWSController owns the lifecycle of every signaling websocket:
// Connecting (upgrade, register) -> Active (pumps) -> Closed (cleanup).
type SignalWSController struct {
	Orch    *orch.Orchestrator
	Cfg     *config.Config
	Limiter *RateLimiter

	// wg tracks live connections so shutdown can wait for their cleanup.
	wg sync.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		Cfg:     cfg,
		Limiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the connection. It returns as
// soon as the pumps are running; ctx bounds the connection's lifetime.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	sid := domain.NewUserID()
	logger := log.With().Str("module", "signal").Str("sid", sid.String()).Logger()
	if token := c.GetString("client_token"); token != "" {
		logger = logger.With().Str("client", token).Logger()
	}

	conn := NewWsSignalConn(ws, ctl.Cfg.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	if err := ctl.Orch.Registry.Register(sid, conn, cancel); err != nil {
		logger.Error().Err(err).Msg("register")
		cancel()
		conn.Close()
		return
	}
	ctl.Orch.Connect(sid)
	logger.Info().Str("remote", c.Request.RemoteAddr).Msg("new WS connection")

	ctl.wg.Add(1)
	go func() {
		defer ctl.wg.Done()
		ctl.serve(ctx, cancel, sid, conn, logger)
	}()
}

// serve runs the pump pair. Cleanup runs once, on the read side, after the
// last inbound message was handled.
func (ctl *SignalWSController) serve(ctx context.Context, cancel context.CancelFunc, sid domain.UserID, conn *WsSignalConn, logger zerolog.Logger) {
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			cancel()
			ctl.Orch.Disconnect(sid)
			ctl.Orch.Registry.Deregister(sid)
			ctl.Limiter.Forget(sid)
			conn.Close()
			logger.Info().Msg("connection closed")
		})
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		ctl.writePump(ctx, cancel, sid, conn, logger)
	})
	wg.Go(func() {
		defer cleanup()
		ctl.readPump(sid, conn, logger)
	})
	if r := wg.WaitAndRecover(); r != nil {
		logger.Error().Str("panic", r.String()).Msg("connection handler panicked")
	}
}

// Wait blocks until every connection accepted so far has been cleaned up.
func (ctl *SignalWSController) Wait() {
	ctl.wg.Wait()
}
