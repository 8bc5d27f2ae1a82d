package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/support-chat/internal/chat"
	"github.com/yourorg/support-chat/internal/media"
)

// tripwire fails the test if any request goes out.
type tripwire struct{ t *testing.T }

func (tw tripwire) RoundTrip(*http.Request) (*http.Response, error) {
	tw.t.Fatal("network request issued for a locally rejected upload")
	return nil, nil
}

func TestSendAttachment_OversizedRejectedBeforeNetwork(t *testing.T) {
	ch := newFakeChannel()
	s := newTestSession(t, ch, Config{
		HTTPClient: &http.Client{Transport: tripwire{t}},
	}, Callbacks{})

	big := make([]byte, 11<<20) // 11MB
	_, err := s.SendAttachment(context.Background(), "a1", "huge.png", "image/png", "", big)
	assert.ErrorIs(t, err, media.ErrTooLarge)
	assert.Zero(t, s.Len())
}

func TestSendAttachment_UnsupportedTypeRejected(t *testing.T) {
	ch := newFakeChannel()
	s := newTestSession(t, ch, Config{
		HTTPClient: &http.Client{Transport: tripwire{t}},
	}, Callbacks{})

	_, err := s.SendAttachment(context.Background(), "a1", "run.exe", "application/x-msdownload", "", []byte{0x4d, 0x5a})
	assert.ErrorIs(t, err, media.ErrUnsupportedType)
	assert.Zero(t, s.Len())
}

func TestSendAttachment_SuccessReconciles(t *testing.T) {
	confirmed := chat.Message{
		ID: "m-img", SenderID: "u1", ReceiverID: "a1",
		Kind: chat.KindImage, FileName: "cat.png",
		FileURL: "https://cdn.example/cat.png", Status: chat.StatusSent,
		CreatedAt: time.Now().UTC(),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/media/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		assert.Equal(t, "a1", r.FormValue("receiver_id"))
		assert.NotEmpty(t, r.FormValue("temp_id"))
		_, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "cat.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": confirmed})
	}))
	defer srv.Close()

	ch := newFakeChannel()
	s := newTestSession(t, ch, Config{BaseURL: srv.URL}, Callbacks{})

	_, err := s.SendAttachment(context.Background(), "a1", "cat.png", "image/png", "/tmp/cat.png", []byte("png-bytes"))
	require.NoError(t, err)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-img", msgs[0].ID)
	assert.Equal(t, "https://cdn.example/cat.png", msgs[0].FileURL)
	assert.Equal(t, chat.StatusSent, msgs[0].Status)
}

func TestSession_DeliveredFrameKeyedByTempID(t *testing.T) {
	ch := newFakeChannel()
	s := newTestSession(t, ch, Config{}, Callbacks{})

	// an upload still in flight has no permanent id yet
	s.store.AppendOptimistic(chat.Message{
		TempID: "tmp-1", SenderID: "u1", ReceiverID: "a1",
		Kind: chat.KindImage, FileName: "cat.png",
		Status: chat.StatusSending, CreatedAt: time.Now().UTC(),
	})

	s.handleEvent(chat.NewEnvelope(chat.TypeMessageDelivered,
		chat.MessageDeliveredPayload{ID: "m-9", TempID: "tmp-1"}))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.StatusDelivered, msgs[0].Status)
}

func TestSendAttachment_FailureRollsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "bucket on fire"})
	}))
	defer srv.Close()

	ch := newFakeChannel()
	var mu sync.Mutex
	var surfaced []string
	s := newTestSession(t, ch, Config{BaseURL: srv.URL}, Callbacks{
		OnError: func(msg string) {
			mu.Lock()
			surfaced = append(surfaced, msg)
			mu.Unlock()
		},
	})

	_, err := s.SendAttachment(context.Background(), "a1", "doc.pdf", "application/pdf", "", []byte("%PDF"))
	require.Error(t, err)

	// optimistic entry rolled back entirely
	assert.Zero(t, s.Len())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, surfaced)
	assert.Equal(t, "bucket on fire", surfaced[0])
}
