package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/support-chat/internal/chat"
	"github.com/yourorg/support-chat/internal/media"
)

// SendAttachment runs the upload path: validate locally, insert an
// optimistic "sending" entry (with a local preview path for images), POST
// the multipart body, then reconcile the confirmed record. Validation
// failures happen before any network call and leave the store untouched;
// upload failures roll the optimistic entry back.
func (s *Session) SendAttachment(ctx context.Context, receiverID, filename, contentType, previewPath string, data []byte) (string, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	kind, err := media.Validate(int64(len(data)), contentType)
	if err != nil {
		return "", err
	}

	tempID := uuid.NewString()
	optimistic := chat.Message{
		TempID:     tempID,
		SenderID:   s.cfg.Self.ID,
		ReceiverID: receiverID,
		Kind:       kind,
		FileName:   filename,
		Status:     chat.StatusSending,
		CreatedAt:  time.Now().UTC(),
	}
	if kind == chat.KindImage {
		optimistic.PreviewPath = previewPath
	}
	s.store.AppendOptimistic(optimistic)
	s.notifyChange()

	confirmed, err := s.postUpload(ctx, receiverID, tempID, filename, contentType, data)
	if s.isClosed() {
		return "", ErrClosed
	}
	if err != nil {
		s.store.Remove(tempID)
		s.notifyChange()
		s.surfaceError(uploadErrorText(err))
		return "", err
	}

	s.store.Reconcile(tempID, *confirmed)
	s.notifyChange()
	return tempID, nil
}

// serverError carries the server's own message for user display.
type serverError struct {
	msg    string
	status int
}

func (e *serverError) Error() string { return e.msg }

func (s *Session) postUpload(ctx context.Context, receiverID, tempID, filename, contentType string, data []byte) (*chat.Message, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("receiver_id", receiverID); err != nil {
		return nil, err
	}
	// lets the server key delivery frames to the optimistic entry, since
	// they may arrive on the socket before this response does
	if err := w.WriteField("temp_id", tempID); err != nil {
		return nil, err
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v1/media/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		var out struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &out)
		return nil, &serverError{msg: out.Error, status: resp.StatusCode}
	}
	var out struct {
		Data chat.Message `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func uploadErrorText(err error) string {
	if se, ok := err.(*serverError); ok && se.msg != "" {
		return se.msg
	}
	return "upload failed"
}

func escapeQuotes(s string) string {
	r := strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
	return r.Replace(s)
}
