package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/StreamRoom/internal/domain"
	"github.com/dkeye/StreamRoom/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func (ctl *SignalWSController) writePump(ctx context.Context, cancel context.CancelFunc, sid domain.UserID, c *WsSignalConn, logger zerolog.Logger) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		// Unblocks the read side; it owns the rest of the cleanup.
		cancel()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(ctl.Cfg.WriteWait))
			return
		case data, ok := <-c.send:
			if !ok {
				logger.Debug().Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteWait)); err != nil {
				logger.Error().Err(err).Msg("writePump set deadline")
				ctl.Orch.Registry.Deregister(sid)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn().Err(err).Msg("writePump write error")
				ctl.Orch.Registry.Deregister(sid)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Cfg.WriteWait)); err != nil {
				logger.Warn().Err(err).Msg("writePump ping error")
				ctl.Orch.Registry.Deregister(sid)
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(sid domain.UserID, c *WsSignalConn, logger zerolog.Logger) {
	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Cfg.PongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Warn().Err(err).Msg("readPump read error")
			} else {
				logger.Debug().Err(err).Msg("readPump closing")
			}
			return
		}
		if kind != websocket.TextMessage {
			logger.Debug().Int("kind", kind).Msg("non-text frame dropped")
			continue
		}
		ctl.handleFrame(sid, data, logger)
	}
}

func (ctl *SignalWSController) handleFrame(sid domain.UserID, data []byte, logger zerolog.Logger) {
	if !ctl.Limiter.Allow(sid) {
		logger.Debug().Msg("rate limited, frame dropped")
		return
	}
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		if errors.Is(err, protocol.ErrMalformed) {
			logger.Debug().Err(err).Msg("malformed frame dropped")
		} else {
			logger.Warn().Err(err).Msg("decode")
		}
		return
	}
	ctl.Orch.Handle(sid, msg)
}
