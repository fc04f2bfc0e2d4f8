package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/amoylab/tokengate/internal/common/errorx"
	"github.com/amoylab/tokengate/internal/gateway"
	"github.com/amoylab/tokengate/internal/ledger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxMessageSize = 64 * 1024

// credentials reads the token from ?token= or the Authorization header, and
// the declared wallet from ?address=
func credentials(c *gin.Context) gateway.Credentials {
	token := c.Query("token")
	if token == "" {
		if h := c.GetHeader("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			token = strings.TrimSpace(h[7:])
		}
	}
	return gateway.Credentials{
		Token:           token,
		DeclaredAddress: c.Query("address"),
	}
}

// handleWebSocket upgrades, admits, registers and then serves one connection
func (s *Server) handleWebSocket(c *gin.Context) {
	creds := credentials(c)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade WebSocket connection",
			zap.String("remote_addr", c.Request.RemoteAddr),
			zap.Error(err))
		return
	}
	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()

	pongWait := 2 * s.cfg.PingInterval
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The reader runs from the start so a peer leaving mid-admission cancels it
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	inbox := make(chan []byte, s.cfg.SendQueueSize)
	go s.readPump(ctx, cancel, conn, pongWait, inbox)

	sess, err := s.admitter.Admit(ctx, creds)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("client left during admission", zap.String("remote_addr", c.Request.RemoteAddr))
			_ = conn.Close()
			return
		}
		s.reject(conn, err)
		return
	}

	cl := newClient(sess.ConnID, conn, s.cfg.SendQueueSize)
	s.hub.add(cl)
	s.registry.Register(sess.Identity, sess.ConnID)
	go cl.writePump(s.cfg.WriteTimeout, s.cfg.PingInterval)
	s.logger.Info("client connected",
		zap.String("conn_id", sess.ConnID),
		zap.String("identity", sess.Identity),
		zap.String("address", sess.Address),
		zap.String("balance", ledger.FormatUnits(sess.Balance, s.decimals)))

	defer func() {
		s.registry.Unregister(sess.Identity, sess.ConnID)
		s.hub.remove(sess.ConnID)
		cl.close()
		s.logger.Info("client disconnected",
			zap.String("conn_id", sess.ConnID),
			zap.String("identity", sess.Identity),
			zap.NamedError("reason", context.Cause(ctx)))
	}()

	s.greet(sess)
	s.serve(ctx, sess, inbox)
}

// readPump forwards text frames to inbox until the peer goes away
func (s *Server) readPump(ctx context.Context, cancel context.CancelCauseFunc, conn *websocket.Conn, pongWait time.Duration, inbox chan<- []byte) {
	defer close(inbox)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			cancel(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case inbox <- data:
		case <-ctx.Done():
			return
		}
	}
}

// reject sends the client-safe reason then closes with policy violation
func (s *Server) reject(conn *websocket.Conn, err error) {
	defer conn.Close()

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	msg := errorx.PublicMessage(err)
	data, encErr := gateway.Encode(gateway.Error{Message: msg})
	if encErr != nil {
		return
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return
	}
	reason := string(errorx.CodeOf(err))
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
}

// greet sends the welcome line and, when eligibility ran, the balance
func (s *Server) greet(sess *gateway.Session) {
	_ = s.hub.Deliver(sess.ConnID, gateway.Response{Content: s.cfg.WelcomeMessage})
	if sess.BalanceChecked {
		_ = s.hub.Deliver(sess.ConnID, gateway.Balance{Amount: ledger.FormatUnits(sess.Balance, s.decimals)})
	}
}

// serve handles client frames in arrival order until the reader stops
func (s *Server) serve(ctx context.Context, sess *gateway.Session, inbox <-chan []byte) {
	for data := range inbox {
		frame, err := gateway.Decode(data)
		if err != nil {
			s.logger.Debug("malformed client frame", zap.String("conn_id", sess.ConnID), zap.Error(err))
			_ = s.hub.Deliver(sess.ConnID, gateway.Error{Message: errorx.PublicMessage(err)})
			continue
		}
		input, ok := frame.(gateway.Input)
		if !ok {
			_ = s.hub.Deliver(sess.ConnID, gateway.Error{Message: errorx.ErrMalformedEvent.Message})
			continue
		}

		receipt, err := s.inputs.HandleInput(ctx, sess, input.Content)
		if err != nil && errors.Is(err, errorx.ErrUnauthenticated) {
			_ = s.hub.Deliver(sess.ConnID, gateway.Error{Message: errorx.PublicMessage(err)})
			continue
		}
		_ = s.hub.Deliver(sess.ConnID, gateway.Ack{Status: receipt.Status})
	}
}
