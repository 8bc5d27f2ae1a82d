package hub

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/yourorg/support-chat/internal/chat"
	"github.com/yourorg/support-chat/internal/presence"
)

// PeerFrame wraps a frame relayed between instances when the target
// participant is connected elsewhere.
type PeerFrame struct {
	UserID string          `json:"user_id"`
	Frame  json.RawMessage `json:"frame"`
}

const peerChannel = "frames"

// AttachPeerRelay wires the hub into the presence store's pub/sub so a
// multi-instance deployment still reaches every socket. Runs until ctx is
// cancelled.
func AttachPeerRelay(ctx context.Context, h *Hub, ps *presence.Store, log *zap.SugaredLogger) {
	h.PublishToPeers = func(ctx context.Context, userID string, payload []byte) error {
		b, err := json.Marshal(PeerFrame{UserID: userID, Frame: payload})
		if err != nil {
			return err
		}
		return ps.Publish(ctx, peerChannel, b)
	}

	sub := ps.Subscribe(ctx, peerChannel)
	go func() {
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var pf PeerFrame
				if err := json.Unmarshal([]byte(m.Payload), &pf); err != nil {
					log.Warnw("peer frame decode", "err", err)
					continue
				}
				// only deliver locally; re-publishing would loop
				if !h.HasLocal(pf.UserID) {
					continue
				}
				var env chat.Envelope
				if err := json.Unmarshal(pf.Frame, &env); err != nil {
					continue
				}
				h.deliverLocal(pf.UserID, pf.Frame)
			}
		}
	}()
}

// deliverLocal enqueues a raw frame on the participant's local sockets
// without the peer-publish fallback.
func (h *Hub) deliverLocal(userID string, b []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clientsByUser[userID] {
		c.enqueue(b)
	}
}
