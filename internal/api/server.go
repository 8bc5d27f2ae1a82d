package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/yourorg/support-chat/internal/auth"
	"github.com/yourorg/support-chat/internal/chat"
	"github.com/yourorg/support-chat/internal/hub"
	"github.com/yourorg/support-chat/internal/media"
	"github.com/yourorg/support-chat/internal/repository"
)

type Server struct {
	repo repository.MessageRepository
	log  *zap.SugaredLogger
}

// New wires the fiber app: websocket endpoint, conversation history, and
// the media upload path, all behind token auth.
func New(verifier *auth.Verifier, wsHandler *hub.Handler, mediaHandler *media.Handler, repo repository.MessageRepository, log *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             media.MaxUploadSize + 1<<20, // upload body plus form overhead
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{repo: repo, log: log}

	v1 := app.Group("/v1")
	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1.Use("/ws", authRequired(verifier), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	v1.Get("/ws", websocket.New(wsHandler.Serve))

	v1.Get("/conversations/:partner_id/messages", authRequired(verifier), s.history)
	v1.Post("/media/upload", authRequired(verifier), mediaHandler.Upload)

	return app
}

func (s *Server) history(c *fiber.Ctx) error {
	p, ok := c.Locals("participant").(chat.Participant)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	partnerID := c.Params("partner_id")
	limit := int64(c.QueryInt("limit", 100))

	convID := chat.ConversationID(p.ID, partnerID)
	msgs, err := s.repo.History(c.Context(), convID, limit)
	if err != nil {
		s.log.Errorw("history fetch", "conversation", convID, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history unavailable"})
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return c.JSON(fiber.Map{"status": "success", "data": msgs})
}
