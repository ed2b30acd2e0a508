package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/mayanpathak/Code-Collab/internal/auth"
	"github.com/mayanpathak/Code-Collab/internal/events"
	"github.com/mayanpathak/Code-Collab/internal/hub"
	"github.com/mayanpathak/Code-Collab/internal/project"
	"github.com/mayanpathak/Code-Collab/internal/store"
)

const (
	localClaims     = "claims"
	localRoom       = "room"
	localHasProject = "hasProject"
)

// ProjectResolver is the slice of the project collaborator the handshake
// needs.
type ProjectResolver interface {
	Get(ctx context.Context, id string) (*project.Project, error)
}

// AICoordinator hands off AI-directed prompts; Process runs on its own
// goroutine and never blocks the relay.
type AICoordinator interface {
	Process(room, prompt string, origin *hub.Client, hasProject bool)
}

// Options are the relay tunables derived from config.
type Options struct {
	PageSize       int
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
}

func (o *Options) fill() {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteDeadline <= 0 {
		o.WriteDeadline = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 65536
	}
}

// Server owns the connection handshake and the per-connection message relay.
type Server struct {
	hub       *hub.Hub
	store     store.Store
	validator *auth.Validator
	projects  ProjectResolver
	coord     AICoordinator
	pub       *events.Publisher
	log       *zap.SugaredLogger
	opts      Options
}

func NewServer(h *hub.Hub, st store.Store, v *auth.Validator, projects ProjectResolver, coord AICoordinator, pub *events.Publisher, log *zap.SugaredLogger, opts Options) *Server {
	opts.fill()
	return &Server{hub: h, store: st, validator: v, projects: projects, coord: coord, pub: pub, log: log, opts: opts}
}

// Handshake gates room entry before the websocket upgrade. It validates the
// room identifier and the session token, and resolves the project record
// best-effort: a missing record is logged but does not refuse the connection.
func (s *Server) Handshake() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		roomID := c.Query("projectId")
		if !project.ValidRoomID(roomID) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status": "error", "message": "Invalid projectId",
			})
		}

		token, err := auth.TokenFromRequest(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": "error", "message": "Not authorized, no token provided",
			})
		}
		claims, err := s.validator.Validate(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": "error", "message": "Invalid or expired token",
			})
		}

		hasProject := false
		ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
		defer cancel()
		if _, err := s.projects.Get(ctx, roomID); err == nil {
			hasProject = true
		} else if errors.Is(err, project.ErrNotFound) {
			s.log.Warnw("project record not found for room", "room", roomID)
		} else {
			s.log.Warnw("project lookup failed, admitting anyway", "room", roomID, "err", err)
		}

		c.Locals(localClaims, claims)
		c.Locals(localRoom, roomID)
		c.Locals(localHasProject, hasProject)
		return c.Next()
	}
}

// Handler upgrades the connection and runs the relay until disconnect.
func (s *Server) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		claims := conn.Locals(localClaims).(*auth.Claims)
		room := conn.Locals(localRoom).(string)
		hasProject := conn.Locals(localHasProject).(bool)
		s.serve(conn, claims, room, hasProject)
	})
}
