package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yourorg/support-chat/internal/chat"
)

var ErrNotFound = errors.New("not found")

type MessageRepository interface {
	InsertMessage(ctx context.Context, m *chat.Message) (*chat.Message, error)
	History(ctx context.Context, conversationID string, limit int64) ([]chat.Message, error)
	MarkDelivered(ctx context.Context, ids []string) error
	// UndeliveredFor returns messages addressed to receiverID still in
	// "sent" state, grouped by sender.
	UndeliveredFor(ctx context.Context, receiverID string) (map[string][]string, error)
	// MarkSeen flips every not-yet-seen message partnerID sent to readerID
	// and reports whether anything changed.
	MarkSeen(ctx context.Context, readerID, partnerID string) (bool, error)
}

type mongoRepo struct {
	msgCol  *mongo.Collection
	convCol *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoRepo{
		msgCol:  db.Collection("messages"),
		convCol: db.Collection("conversations"),
	}
}

func (r *mongoRepo) InsertMessage(ctx context.Context, m *chat.Message) (*chat.Message, error) {
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = primitive.NewObjectID().Hex()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.ConversationID == "" {
		m.ConversationID = chat.ConversationID(m.SenderID, m.ReceiverID)
	}
	if _, err := r.msgCol.InsertOne(ctx, m); err != nil {
		return nil, err
	}
	// upsert conversation bookkeeping
	_, _ = r.convCol.UpdateOne(ctx,
		bson.M{"_id": m.ConversationID},
		bson.M{
			"$set":         bson.M{"updated_at": now},
			"$setOnInsert": bson.M{"members": []string{m.SenderID, m.ReceiverID}, "created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	return m, nil
}

func (r *mongoRepo) History(ctx context.Context, conversationID string, limit int64) ([]chat.Message, error) {
	filter := bson.M{"conversation_id": conversationID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := r.msgCol.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []chat.Message
	for cur.Next(ctx) {
		var m chat.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	// chronological order for the client
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *mongoRepo) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.msgCol.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "status": chat.StatusSent},
		bson.M{"$set": bson.M{"status": chat.StatusDelivered}},
	)
	return err
}

func (r *mongoRepo) UndeliveredFor(ctx context.Context, receiverID string) (map[string][]string, error) {
	cur, err := r.msgCol.Find(ctx, bson.M{
		"receiver_id": receiverID,
		"status":      chat.StatusSent,
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	bySender := make(map[string][]string)
	for cur.Next(ctx) {
		var m chat.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		bySender[m.SenderID] = append(bySender[m.SenderID], m.ID)
	}
	return bySender, cur.Err()
}

func (r *mongoRepo) MarkSeen(ctx context.Context, readerID, partnerID string) (bool, error) {
	res, err := r.msgCol.UpdateMany(ctx,
		bson.M{
			"sender_id":   partnerID,
			"receiver_id": readerID,
			"status":      bson.M{"$ne": chat.StatusSeen},
		},
		bson.M{"$set": bson.M{"status": chat.StatusSeen}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}
