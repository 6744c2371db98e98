package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type attemptPayload struct {
	AttemptID      string `json:"attemptId"`
	ScenarioIndex  int    `json:"scenarioIndex"`
	SelectedOption int    `json:"selectedOption"`
	TimeSpent      int    `json:"timeSpent"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type wsError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ServeWS runs one drill session over a websocket: the client receives the
// live drill leaderboard and can drive its own attempts with start,
// respond, complete, timeout and abandon messages.
func (s *Server) ServeWS(c *gin.Context) {
	drillID := c.Query("drillId")
	if drillID == "" {
		badRequest(c, "missing drillId")
		return
	}
	if _, err := s.catalog.Get(c.Request.Context(), drillID); err != nil {
		s.fail(c, err)
		return
	}
	userID := identityFrom(c).UserID

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, stop := context.WithCancel(c.Request.Context())
	defer stop()

	updates, cancel, err := s.hub.Subscribe(ctx, drillID)
	if err != nil {
		_, body := errorBodyFor(err)
		_ = conn.WriteJSON(outboundMessage[wsError]{Type: "error", Payload: wsError{Message: body.Error, Code: body.Code}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer: gorilla connections allow one concurrent writer.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		typ, payload := s.handleWSMessage(ctx, userID, drillID, inbound)
		send <- outboundMessage[any]{Type: typ, Payload: payload}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (s *Server) handleWSMessage(ctx context.Context, userID, drillID string, in inboundMessage) (string, any) {
	var p attemptPayload
	if len(in.Payload) > 0 {
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return "error", wsError{Message: "invalid payload", Code: "bad_request"}
		}
	}

	var (
		typ string
		out any
		err error
	)
	switch in.Type {
	case "start":
		typ = "started"
		out, err = s.engine.Start(ctx, userID, drillID)
	case "respond":
		typ = "responseResult"
		out, err = s.engine.Respond(ctx, userID, p.AttemptID, p.ScenarioIndex, p.SelectedOption, p.TimeSpent)
	case "complete":
		typ = "completed"
		res, ferr := s.engine.Complete(ctx, userID, p.AttemptID)
		out, err = newCompletionResponse(res), ferr
	case "timeout":
		typ = "timedOut"
		res, ferr := s.engine.Timeout(ctx, userID, p.AttemptID)
		out, err = newCompletionResponse(res), ferr
	case "abandon":
		typ = "abandoned"
		a, aerr := s.engine.Abandon(ctx, userID, p.AttemptID)
		out, err = a.View(), aerr
	default:
		return "error", wsError{Message: "unsupported message type", Code: "bad_request"}
	}
	if err != nil {
		status, body := errorBodyFor(err)
		if status == http.StatusInternalServerError {
			s.log.Error("ws operation failed", zap.String("type", in.Type), zap.Error(err))
		}
		return "error", wsError{Message: body.Error, Code: body.Code}
	}
	return typ, out
}
