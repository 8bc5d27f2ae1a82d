package media

import (
	"errors"
	"fmt"

	"github.com/yourorg/support-chat/internal/chat"
)

// MaxUploadSize is the hard cap for a single attachment.
const MaxUploadSize = 10 << 20 // 10MB

var (
	ErrTooLarge        = fmt.Errorf("file exceeds %d bytes", int64(MaxUploadSize))
	ErrUnsupportedType = errors.New("unsupported file type")
)

// allowedTypes maps accepted MIME types to the message kind they produce.
var allowedTypes = map[string]chat.Kind{
	"image/jpeg":      chat.KindImage,
	"image/png":       chat.KindImage,
	"image/gif":       chat.KindImage,
	"image/webp":      chat.KindImage,
	"application/pdf": chat.KindFile,
	"text/plain":      chat.KindFile,
	"application/msword": chat.KindFile,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": chat.KindFile,
}

// Validate checks size and MIME type before any byte leaves the machine.
// Both the client attachment path and the upload endpoint run this, so a
// bad file is rejected at whichever end sees it first.
func Validate(size int64, contentType string) (chat.Kind, error) {
	if size > MaxUploadSize {
		return "", ErrTooLarge
	}
	kind, ok := allowedTypes[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}
	return kind, nil
}
