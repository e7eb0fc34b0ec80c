package message

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	chatmodel "github.com/ankit-kumarpr/lastchat/module/chat/model"
	"github.com/ankit-kumarpr/lastchat/module/chat/seq"
	"github.com/ankit-kumarpr/lastchat/service/relay"
	"github.com/ankit-kumarpr/lastchat/tools/errs"
	"github.com/ankit-kumarpr/lastchat/tools/ids"
)

// Store is the message persistence gateway plus the room collection the REST
// surface reads. The insert is the durability point: AppendMessage returns
// only after Mongo acknowledged the write, and the relay broadcasts nothing
// before that.
type Store struct {
	MsgColl  *mongo.Collection
	RoomColl *mongo.Collection
	Seq      *seq.Allocator
}

var _ relay.MessageStore = (*Store)(nil)

func NewStore(db *mongo.Database, alloc *seq.Allocator) *Store {
	return &Store{
		MsgColl:  db.Collection(chatmodel.MessageModel{}.TableName()),
		RoomColl: db.Collection(chatmodel.Room{}.TableName()),
		Seq:      alloc,
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.MsgColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "channel_id", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errs.WrapMsg(err, "message index")
	}
	_, err = s.RoomColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "room_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errs.WrapMsg(err, "room index")
}

// AppendMessage allocates the channel seq, inserts the record and returns
// the canonical message.
func (s *Store) AppendMessage(ctx context.Context, ch relay.ChannelID, sender string, content relay.Content) (*relay.Message, error) {
	seqNo, err := s.Seq.Next(ctx, ch.String())
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	m := chatmodel.MessageModel{
		MsgID:      ids.GenerateString(),
		ChannelID:  ch.String(),
		SendID:     sender,
		Content:    content.Text,
		Attachment: content.Attachment,
		Seq:        seqNo,
		CreateTime: now,
	}
	if _, err := s.MsgColl.InsertOne(ctx, m); err != nil {
		return nil, errs.WrapMsg(err, "insert message")
	}

	return &relay.Message{
		ID:         m.MsgID,
		Channel:    ch,
		Sender:     sender,
		Text:       m.Content,
		Attachment: m.Attachment,
		Seq:        m.Seq,
		CreatedAt:  m.CreateTime,
	}, nil
}

// History pages backwards: messages with seq < beforeSeq (0 means "from the
// newest"), returned in storage order (ascending seq).
func (s *Store) History(ctx context.Context, ch relay.ChannelID, beforeSeq, limit int64) ([]relay.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{"channel_id": ch.String()}
	if beforeSeq > 0 {
		filter["seq"] = bson.M{"$lt": beforeSeq}
	}

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}}).SetLimit(limit)
	cur, err := s.MsgColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "find history")
	}
	defer cur.Close(ctx)

	var rows []chatmodel.MessageModel
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errs.WrapMsg(err, "decode history")
	}
	return toStorageOrder(rows), nil
}

// toStorageOrder converts a newest-first query page into the canonical
// ascending-seq order callers expect.
func toStorageOrder(rows []chatmodel.MessageModel) []relay.Message {
	out := make([]relay.Message, len(rows))
	for i, m := range rows {
		out[len(rows)-1-i] = relay.Message{
			ID:         m.MsgID,
			Channel:    relay.ChannelID(m.ChannelID),
			Sender:     m.SendID,
			Text:       m.Content,
			Attachment: m.Attachment,
			Seq:        m.Seq,
			CreatedAt:  m.CreateTime,
		}
	}
	return out
}

func (s *Store) CreateRoom(ctx context.Context, room chatmodel.Room) error {
	if room.CreateTime == 0 {
		room.CreateTime = time.Now().UnixMilli()
	}
	_, err := s.RoomColl.InsertOne(ctx, room)
	return errs.WrapMsg(err, "insert room")
}

func (s *Store) ListRooms(ctx context.Context) ([]chatmodel.Room, error) {
	cur, err := s.RoomColl.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "create_time", Value: -1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "find rooms")
	}
	defer cur.Close(ctx)

	var rooms []chatmodel.Room
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, errs.WrapMsg(err, "decode rooms")
	}
	return rooms, nil
}
