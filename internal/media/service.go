package media

import (
	"bytes"
	"context"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/support-chat/internal/chat"
	"github.com/yourorg/support-chat/internal/hub"
	"github.com/yourorg/support-chat/internal/repository"
)

// ObjectStore is what the service needs from blob storage.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Service handles the attachment upload path: validate, store, persist
// the message record, and push it to the recipient's channel so the
// recipient does not need to re-fetch history.
type Service struct {
	repo  repository.MessageRepository
	store ObjectStore
	hub   *hub.Hub
	log   *zap.SugaredLogger
}

func NewService(repo repository.MessageRepository, store ObjectStore, h *hub.Hub, log *zap.SugaredLogger) *Service {
	return &Service{repo: repo, store: store, hub: h, log: log}
}

func (s *Service) SaveAttachment(ctx context.Context, senderID, receiverID, tempID, filename, contentType string, data []byte) (*chat.Message, error) {
	kind, err := Validate(int64(len(data)), contentType)
	if err != nil {
		return nil, err
	}

	key := senderID + "/" + uuid.NewString() + "_" + sanitize(filename)
	fileURL, err := s.store.Upload(ctx, key, contentType, data)
	if err != nil {
		return nil, err
	}

	var thumbURL string
	if kind == chat.KindImage {
		if tb, err := thumbnail(data); err == nil {
			thumbURL, _ = s.store.Upload(ctx, key+"_thumb.jpg", "image/jpeg", tb)
		} else {
			s.log.Debugw("thumbnail generation failed", "file", filename, "err", err)
		}
	}

	m := &chat.Message{
		TempID:     tempID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Kind:       kind,
		FileName:   filename,
		FileURL:    fileURL,
		ThumbURL:   thumbURL,
		Status:     chat.StatusSent,
	}
	m, err = s.repo.InsertMessage(ctx, m)
	if err != nil {
		return nil, err
	}

	if s.hub != nil {
		delivered := s.hub.SendToUser(ctx, receiverID, chat.NewEnvelope(chat.TypeNewMessage, m))
		if delivered {
			if err := s.repo.MarkDelivered(ctx, []string{m.ID}); err == nil {
				m.Status = chat.StatusDelivered
				// tempId keys the frame when it races the upload response
				s.hub.SendToUser(ctx, senderID, chat.NewEnvelope(chat.TypeMessageDelivered,
					chat.MessageDeliveredPayload{ID: m.ID, TempID: tempID}))
			}
		}
	}
	return m, nil
}

func thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Fit(img, 320, 320, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sanitize(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	return strings.ReplaceAll(name, "\\", "_")
}
