package ws

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/mayanpathak/Code-Collab/internal/ai"
	"github.com/mayanpathak/Code-Collab/internal/auth"
	"github.com/mayanpathak/Code-Collab/internal/hub"
	"github.com/mayanpathak/Code-Collab/internal/metrics"
	"github.com/mayanpathak/Code-Collab/internal/protocol"
	"github.com/mayanpathak/Code-Collab/internal/store"
)

const readWait = 60 * time.Second

func (s *Server) serve(conn *websocket.Conn, claims *auth.Claims, room string, hasProject bool) {
	client := hub.NewClient(room, claims.UserID, claims.Email)
	s.hub.Join(room, client)
	metrics.ActiveConnections.Inc()
	s.log.Infow("client joined room", "room", room, "user", claims.UserID)

	defer func() {
		s.hub.Leave(room, client)
		client.Close()
		metrics.ActiveConnections.Dec()
		s.log.Infow("client left room", "room", room, "user", claims.UserID)
	}()

	go s.writePump(conn, client)

	s.sendHistory(client)
	s.readLoop(conn, client, hasProject)
}

func (s *Server) readLoop(conn *websocket.Conn, client *hub.Client, hasProject bool) {
	conn.SetReadLimit(s.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		mt, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			continue
		}
		s.dispatch(client, env, hasProject)
	}
}

func (s *Server) writePump(conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case frame, ok := <-client.Send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound event. A panic in any handler is converted to
// an error event for this connection only; the relay keeps serving.
func (s *Server) dispatch(client *hub.Client, env protocol.Envelope, hasProject bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("event handler panicked", "event", env.Event, "panic", r)
			s.sendError(client, protocol.ErrMessage, "Failed to process message")
		}
	}()

	switch env.Event {
	case protocol.EventProjectMessage:
		s.handleChatMessage(client, env.Data, hasProject)
	case protocol.EventLoadMore:
		s.handleLoadMore(client, env.Data)
	case protocol.EventSearch:
		s.handleSearch(client, env.Data)
	}
}

// sendHistory delivers the room's message count and most recent page to the
// connecting client only.
func (s *Server) sendHistory(client *hub.Client) {
	ctx, cancel := opCtx()
	defer cancel()

	count, err := s.store.Count(ctx, client.Room)
	if err != nil {
		s.log.Warnw("loading history failed", "room", client.Room, "err", err)
		s.sendError(client, protocol.ErrLoadMessages, "Failed to load message history")
		return
	}
	msgs, err := s.store.Range(ctx, client.Room, s.opts.PageSize, 0)
	if err != nil {
		s.log.Warnw("loading history failed", "room", client.Room, "err", err)
		s.sendError(client, protocol.ErrLoadMessages, "Failed to load message history")
		return
	}
	s.send(client, protocol.EventLoadMessages, map[string]any{
		"messages":   nonNil(msgs),
		"totalCount": count,
	})
}

func (s *Server) handleChatMessage(client *hub.Client, data json.RawMessage, hasProject bool) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(client, protocol.ErrMessage, "Failed to process message")
		return
	}

	m := &store.Message{
		ID:        uuid.NewString(),
		Sender:    store.Sender{ID: client.UserID, Name: client.UserName},
		Body:      store.PlainText(payload.Message),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := opCtx()
	defer cancel()
	if err := s.store.Append(ctx, client.Room, m); err != nil {
		s.log.Warnw("storing message failed", "room", client.Room, "err", err)
		s.sendError(client, protocol.ErrMessage, "Failed to process message")
		return
	}
	metrics.MessagesStored.Inc()
	s.pub.MessageStored(ctx, client.Room, m)

	// The sender already has its optimistic copy; everyone else gets the echo.
	frame, err := protocol.Encode(protocol.EventProjectMessage, m)
	if err != nil {
		s.sendError(client, protocol.ErrMessage, "Failed to process message")
		return
	}
	s.hub.Broadcast(client.Room, frame, client)

	if prompt, ok := ai.ExtractPrompt(payload.Message); ok {
		go s.coord.Process(client.Room, prompt, client, hasProject)
	}
}

func (s *Server) handleLoadMore(client *hub.Client, data json.RawMessage) {
	var payload struct {
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(client, protocol.ErrLoadMore, "Failed to load more messages")
		return
	}
	if payload.Limit <= 0 {
		payload.Limit = s.opts.PageSize
	}

	ctx, cancel := opCtx()
	defer cancel()
	msgs, err := s.store.Range(ctx, client.Room, payload.Limit, payload.Offset)
	if err != nil {
		s.log.Warnw("loading more messages failed", "room", client.Room, "err", err)
		s.sendError(client, protocol.ErrLoadMore, "Failed to load more messages")
		return
	}
	s.send(client, protocol.EventMoreMessages, map[string]any{"messages": nonNil(msgs)})
}

func (s *Server) handleSearch(client *hub.Client, data json.RawMessage) {
	var payload struct {
		SearchTerm string `json:"searchTerm"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(client, protocol.ErrSearch, "Failed to search messages")
		return
	}
	term := strings.TrimSpace(payload.SearchTerm)
	if term == "" {
		s.sendError(client, protocol.ErrValidation, "Search term is required")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	msgs, err := s.store.Search(ctx, client.Room, term)
	if err != nil {
		s.log.Warnw("search failed", "room", client.Room, "err", err)
		s.sendError(client, protocol.ErrSearch, "Failed to search messages")
		return
	}
	s.send(client, protocol.EventSearchResults, map[string]any{"messages": nonNil(msgs)})
}

func (s *Server) send(client *hub.Client, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		s.log.Errorw("encoding frame failed", "event", event, "err", err)
		return
	}
	client.Deliver(frame)
}

func (s *Server) sendError(client *hub.Client, errType, message string) {
	s.send(client, protocol.EventError, protocol.ErrorPayload{Type: errType, Message: message})
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func nonNil(msgs []*store.Message) []*store.Message {
	if msgs == nil {
		return []*store.Message{}
	}
	return msgs
}
