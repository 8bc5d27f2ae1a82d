package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/support-chat/internal/chat"
)

type fakeRepo struct {
	inserted    []*chat.Message
	delivered   [][]string
	undelivered map[string][]string
	seenChanged bool
	seenCalls   []string
}

func (r *fakeRepo) InsertMessage(ctx context.Context, m *chat.Message) (*chat.Message, error) {
	m.ID = "m-1"
	m.ConversationID = chat.ConversationID(m.SenderID, m.ReceiverID)
	r.inserted = append(r.inserted, m)
	return m, nil
}

func (r *fakeRepo) History(ctx context.Context, conversationID string, limit int64) ([]chat.Message, error) {
	return nil, nil
}

func (r *fakeRepo) MarkDelivered(ctx context.Context, ids []string) error {
	r.delivered = append(r.delivered, ids)
	return nil
}

func (r *fakeRepo) UndeliveredFor(ctx context.Context, receiverID string) (map[string][]string, error) {
	return r.undelivered, nil
}

func (r *fakeRepo) MarkSeen(ctx context.Context, readerID, partnerID string) (bool, error) {
	r.seenCalls = append(r.seenCalls, readerID+"/"+partnerID)
	return r.seenChanged, nil
}

type fakePresence struct {
	online map[string]bool
}

func (p *fakePresence) SetOnline(ctx context.Context, id string) error  { return nil }
func (p *fakePresence) SetOffline(ctx context.Context, id string) error { return nil }
func (p *fakePresence) Refresh(ctx context.Context, id string) error    { return nil }

func (p *fakePresence) IsOnline(ctx context.Context, id string) (bool, error) {
	return p.online[id], nil
}

func (p *fakePresence) OnlineIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(p.online))
	for id, on := range p.online {
		if on {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// drainFrames empties a client's send buffer and decodes the envelopes.
func drainFrames(t *testing.T, c *Client) []chat.Envelope {
	t.Helper()
	var out []chat.Envelope
	for {
		select {
		case b := <-c.send:
			var env chat.Envelope
			require.NoError(t, json.Unmarshal(b, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func framesOfType(frames []chat.Envelope, typ string) []chat.Envelope {
	var out []chat.Envelope
	for _, f := range frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func newTestHandler(repo *fakeRepo, ps *fakePresence) (*Handler, *Hub) {
	h := New()
	return NewHandler(h, repo, ps, nil, zap.NewNop().Sugar(), Options{}), h
}

func TestRegister_SnapshotAndCatchUp(t *testing.T) {
	repo := &fakeRepo{undelivered: map[string][]string{"a1": {"m-1", "m-2"}}}
	ps := &fakePresence{online: map[string]bool{"a1": true, "u1": true}}
	handler, h := newTestHandler(repo, ps)

	u1 := testClient("u1")
	a1 := testClient("a1")
	h.Add(u1)
	h.Add(a1)

	handler.onRegister(context.Background(), u1)

	frames := drainFrames(t, u1)
	snaps := framesOfType(frames, chat.TypeOnlineUsers)
	require.Len(t, snaps, 1)
	var snap chat.OnlineUsersPayload
	require.NoError(t, json.Unmarshal(snaps[0].Payload, &snap))
	assert.ElementsMatch(t, []string{"a1", "u1"}, snap.IDs)

	// catch-up marks the backlog delivered in one batch and tells the sender
	require.Len(t, repo.delivered, 1)
	assert.Equal(t, []string{"m-1", "m-2"}, repo.delivered[0])

	senderFrames := framesOfType(drainFrames(t, a1), chat.TypeMessagesDelivered)
	require.Len(t, senderFrames, 1)
	var pl chat.MessagesDeliveredPayload
	require.NoError(t, json.Unmarshal(senderFrames[0].Payload, &pl))
	assert.Equal(t, []string{"m-1", "m-2"}, pl.IDs)
}

func TestRegister_NoBacklog(t *testing.T) {
	repo := &fakeRepo{}
	ps := &fakePresence{online: map[string]bool{"u1": true}}
	handler, h := newTestHandler(repo, ps)

	u1 := testClient("u1")
	h.Add(u1)

	handler.onRegister(context.Background(), u1)

	frames := drainFrames(t, u1)
	assert.Len(t, framesOfType(frames, chat.TypeOnlineUsers), 1)
	assert.Empty(t, repo.delivered)
}

func TestSendMessage_AckAndRouteToOnlineReceiver(t *testing.T) {
	repo := &fakeRepo{}
	ps := &fakePresence{online: map[string]bool{"a1": true}}
	handler, h := newTestHandler(repo, ps)

	u1 := testClient("u1")
	a1 := testClient("a1")
	h.Add(u1)
	h.Add(a1)

	handler.onSendMessage(context.Background(), u1, chat.SendMessagePayload{
		ReceiverID: "a1",
		Body:       "hello",
		TempID:     "tmp-1",
	})

	require.Len(t, repo.inserted, 1)
	// sender identity comes from the socket, not the payload
	assert.Equal(t, "u1", repo.inserted[0].SenderID)
	assert.Equal(t, chat.StatusSent, repo.inserted[0].Status)

	senderFrames := drainFrames(t, u1)
	acks := framesOfType(senderFrames, chat.TypeMessageSent)
	require.Len(t, acks, 1)
	var ack chat.MessageSentPayload
	require.NoError(t, json.Unmarshal(acks[0].Payload, &ack))
	assert.Equal(t, "tmp-1", ack.TempID)
	assert.Equal(t, "m-1", ack.ID)

	// receiver is online, so the sender also gets the delivered frame
	delivs := framesOfType(senderFrames, chat.TypeMessageDelivered)
	require.Len(t, delivs, 1)
	var deliv chat.MessageDeliveredPayload
	require.NoError(t, json.Unmarshal(delivs[0].Payload, &deliv))
	assert.Equal(t, "m-1", deliv.ID)
	assert.Equal(t, "tmp-1", deliv.TempID)
	require.Len(t, repo.delivered, 1)
	assert.Equal(t, []string{"m-1"}, repo.delivered[0])

	recvFrames := framesOfType(drainFrames(t, a1), chat.TypeNewMessage)
	require.Len(t, recvFrames, 1)
	var m chat.Message
	require.NoError(t, json.Unmarshal(recvFrames[0].Payload, &m))
	assert.Equal(t, "hello", m.Body)
}

func TestSendMessage_OfflineReceiverStaysSent(t *testing.T) {
	repo := &fakeRepo{}
	ps := &fakePresence{online: map[string]bool{}}
	handler, h := newTestHandler(repo, ps)

	u1 := testClient("u1")
	h.Add(u1)

	handler.onSendMessage(context.Background(), u1, chat.SendMessagePayload{
		ReceiverID: "a1",
		Body:       "anyone there?",
		TempID:     "tmp-2",
	})

	frames := drainFrames(t, u1)
	assert.Len(t, framesOfType(frames, chat.TypeMessageSent), 1)
	assert.Empty(t, framesOfType(frames, chat.TypeMessageDelivered))
	assert.Empty(t, repo.delivered)
}

func TestSendMessage_EmptyBodyIgnored(t *testing.T) {
	repo := &fakeRepo{}
	handler, h := newTestHandler(repo, &fakePresence{})

	u1 := testClient("u1")
	h.Add(u1)

	handler.onSendMessage(context.Background(), u1, chat.SendMessagePayload{ReceiverID: "a1", TempID: "tmp-3"})
	handler.onSendMessage(context.Background(), u1, chat.SendMessagePayload{Body: "no receiver"})

	assert.Empty(t, repo.inserted)
	assert.Empty(t, drainFrames(t, u1))
}

func TestMarkSeen_FansOutToPartner(t *testing.T) {
	repo := &fakeRepo{seenChanged: true}
	handler, h := newTestHandler(repo, &fakePresence{})

	u1 := testClient("u1")
	a1 := testClient("a1")
	h.Add(u1)
	h.Add(a1)

	handler.onMarkSeen(context.Background(), u1, "a1")

	require.Equal(t, []string{"u1/a1"}, repo.seenCalls)
	frames := framesOfType(drainFrames(t, a1), chat.TypeMessagesSeen)
	require.Len(t, frames, 1)
	var pl chat.MessagesSeenPayload
	require.NoError(t, json.Unmarshal(frames[0].Payload, &pl))
	assert.Equal(t, "u1", pl.By)
}

func TestMarkSeen_NoChangeNoFanOut(t *testing.T) {
	repo := &fakeRepo{seenChanged: false}
	handler, h := newTestHandler(repo, &fakePresence{})

	u1 := testClient("u1")
	a1 := testClient("a1")
	h.Add(u1)
	h.Add(a1)

	handler.onMarkSeen(context.Background(), u1, "a1")

	assert.Empty(t, drainFrames(t, a1))
}
