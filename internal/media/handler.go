package media

import (
	"errors"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/support-chat/internal/chat"
	"github.com/yourorg/support-chat/internal/metrics"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Upload handles POST multipart uploads: form fields "file",
// "receiver_id", and the client's optional "temp_id" used to key the
// delivery frames. Returns the persisted message record.
func (h *Handler) Upload(c *fiber.Ctx) error {
	p, ok := c.Locals("participant").(chat.Participant)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	receiverID := c.FormValue("receiver_id")
	if receiverID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "receiver_id required"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file missing"})
	}
	// cheap reject before buffering the body
	if fileHeader.Size > MaxUploadSize {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": ErrTooLarge.Error()})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cannot open file"})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cannot read file"})
	}

	ct := fileHeader.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}

	m, err := h.svc.SaveAttachment(c.Context(), p.ID, receiverID, c.FormValue("temp_id"), fileHeader.Filename, ct, data)
	switch {
	case errors.Is(err, ErrTooLarge):
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrUnsupportedType):
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "upload failed"})
	}

	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "success", "data": m})
}
