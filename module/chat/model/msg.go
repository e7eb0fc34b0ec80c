package model

const MsgTableName = "message"

// MessageModel is one stored chat message. channel_id is the canonical
// relay channel key (group or direct), so direct conversations need no
// record of their own: the key is derivable from the two participants.
type MessageModel struct {
	MsgID      string `bson:"msg_id"`
	ChannelID  string `bson:"channel_id"`
	SendID     string `bson:"send_id"`
	Content    string `bson:"content,omitempty"`
	Attachment string `bson:"attachment,omitempty"`
	Seq        int64  `bson:"seq"`         // per-channel sequence, allocated before insert
	CreateTime int64  `bson:"create_time"` // unix ms
}

func (MessageModel) TableName() string { return MsgTableName }
