package model

const RoomTableName = "room"

// Room is a group room record. Live subscriptions are per-connection state
// in the relay; this is the durable side that survives reconnects.
type Room struct {
	RoomID     string   `bson:"room_id"`
	Name       string   `bson:"name"`
	CreatorID  string   `bson:"creator_id"`
	MemberIDs  []string `bson:"member_ids,omitempty"`
	CreateTime int64    `bson:"create_time"` // unix ms
}

func (Room) TableName() string { return RoomTableName }
