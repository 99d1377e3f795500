package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-widget-service/internal/app"
	"quiz-widget-service/internal/domain"
)

// WSHandler streams session views to the widget and accepts session commands.
type WSHandler struct {
	service  *app.QuizService
	auth     Authenticator
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, auth Authenticator) *WSHandler {
	if auth == nil {
		auth = StaticAuthenticator{}
	}
	return &WSHandler{
		service: service,
		auth:    auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type wsError struct {
	Message string `json:"message"`
}

type savedPayload struct {
	QuizID string               `json:"quizId"`
	Quiz   domain.WidgetPayload `json:"quiz"`
}

// ServeWS upgrades the request and binds the connection to one session.
// The bearer token, from the Authorization header or the token query
// parameter, is only needed for the save command.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	updates, cancel, err := h.service.Subscribe(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer cancel()

	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					select {
					case send <- outboundMessage[any]{Type: "ended", Payload: struct{}{}}:
					case <-closeSignals:
					}
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: view}:
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
		send <- h.dispatch(ctx, sessionID, token, inbound)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, sessionID, token string, in inboundMessage) outboundMessage[any] {
	switch in.Type {
	case "answer":
		var req answerRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil || req.OptionIndex == nil {
			return errorMessage(errors.New("invalid answer payload"))
		}
		view, err := h.service.Answer(ctx, sessionID, *req.OptionIndex)
		return reply("answered", view, err)
	case "previous":
		res, err := h.service.Previous(ctx, sessionID)
		return reply("navigated", res, err)
	case "next":
		res, err := h.service.Next(ctx, sessionID)
		return reply("navigated", res, err)
	case "goto":
		var req gotoRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil || req.Index == nil {
			return errorMessage(errors.New("invalid goto payload"))
		}
		res, err := h.service.GoTo(ctx, sessionID, *req.Index)
		return reply("navigated", res, err)
	case "retake":
		view, err := h.service.Retake(ctx, sessionID)
		return reply("retaken", view, err)
	case "save":
		var req saveRequest
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &req); err != nil {
				return errorMessage(errors.New("invalid save payload"))
			}
		}
		p, err := h.auth.Authenticate(ctx, token)
		if err != nil {
			return errorMessage(err)
		}
		saved, err := h.service.Save(ctx, sessionID, p, req.IncludeAnswers)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "saved", Payload: savedPayload{QuizID: saved.ID, Quiz: saved.Payload()}}
	default:
		return errorMessage(errors.New("unsupported message type"))
	}
}

func reply(typ string, payload any, err error) outboundMessage[any] {
	if err != nil {
		return errorMessage(err)
	}
	return outboundMessage[any]{Type: typ, Payload: payload}
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: wsError{Message: err.Error()}}
}
