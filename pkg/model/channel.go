package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mmdl/mattermost-dl/internal/logger"
)

// ChannelType is the closed set of channel kinds. The wire uses
// single-letter tags, the archive the long names.
type ChannelType int

const (
	ChannelOpen ChannelType = iota
	ChannelPrivate
	ChannelGroup
	ChannelDirect
)

var channelTypeTags = map[ChannelType]string{
	ChannelOpen:    "O",
	ChannelPrivate: "P",
	ChannelGroup:   "G",
	ChannelDirect:  "D",
}

var channelTypeNames = map[ChannelType]string{
	ChannelOpen:    "Open",
	ChannelPrivate: "Private",
	ChannelGroup:   "Group",
	ChannelDirect:  "Direct",
}

// ChannelTypeFromServer maps a wire tag. Unknown tags degrade to Open
// with a warning rather than failing the whole download.
func ChannelTypeFromServer(tag string) ChannelType {
	for t, known := range channelTypeTags {
		if known == tag {
			return t
		}
	}
	logger.Warn("Unknown channel type, assumed open", "type", tag)
	return ChannelOpen
}

// ChannelTypeFromArchive maps a stored long name.
func ChannelTypeFromArchive(name string) ChannelType {
	for t, known := range channelTypeNames {
		if known == name {
			return t
		}
	}
	logger.Warn("Unknown stored channel type, assumed open", "type", name)
	return ChannelOpen
}

func (t ChannelType) String() string { return channelTypeNames[t] }

func (t ChannelType) MarshalJSON() ([]byte, error) {
	return json.Marshal(channelTypeNames[t])
}

// Channel is the chat room metadata the archive is keyed on.
type Channel struct {
	ID           Id
	InternalName string
	CreateTime   Time
	Type         ChannelType
	// MessageCount is the server's total message count. It is an upper
	// bound: deleted messages are not subtracted.
	MessageCount int64

	Name          string
	CreatorUserID Id
	UpdateTime    Time
	DeleteTime    Time
	Header        string
	Purpose       string

	// RootMessageCount counts messages that are not replies.
	RootMessageCount *int64
	LastMessageTime  Time
	Members          []User

	Extra Extra
}

// ChannelFromServer decodes the server JSON form.
func ChannelFromServer(data []byte) (Channel, error) {
	f, err := decodeObject(data)
	if err != nil {
		return Channel{}, err
	}

	var ch Channel
	ch.ID = f.takeID("id")
	ch.Name = f.takeString("display_name")
	ch.InternalName = f.takeString("name")
	ch.CreateTime = f.takeTime("create_at")
	if t := f.takeTime("update_at"); t != ch.CreateTime {
		ch.UpdateTime = t
	}
	if t := f.takeTime("delete_at"); !t.IsZero() {
		ch.DeleteTime = t
	}
	ch.Type = ChannelTypeFromServer(f.takeString("type"))
	ch.Header = f.takeString("header")
	ch.Purpose = f.takeString("purpose")

	if t := f.takeTime("last_post_at"); !t.IsZero() {
		ch.LastMessageTime = t
	}
	ch.MessageCount = f.takeInt("total_msg_count")
	if raw, ok := f.take("total_msg_count_root"); ok {
		var n int64
		if json.Unmarshal(raw, &n) == nil {
			ch.RootMessageCount = &n
		}
	}
	ch.CreatorUserID = f.takeID("creator_id")

	f.drop("team_id", "extra_update_at", "group_constrained")

	ch.Extra = f.bag()
	return ch, nil
}

// ChannelFromArchive decodes the archive JSON form.
func ChannelFromArchive(data []byte) (Channel, error) {
	f, err := decodeObject(data)
	if err != nil {
		return Channel{}, err
	}

	var ch Channel
	ch.ID = f.takeID("id")
	ch.InternalName = f.takeString("internalName")
	ch.CreateTime = f.takeTime("createTime")
	ch.Type = ChannelTypeFromArchive(f.takeString("type"))
	ch.MessageCount = f.takeInt("messageCount")
	ch.Name = f.takeString("name")
	ch.CreatorUserID = f.takeID("creatorUserId")
	ch.UpdateTime = f.takeTime("updateTime")
	ch.DeleteTime = f.takeTime("deleteTime")
	ch.Header = f.takeString("header")
	ch.Purpose = f.takeString("purpose")
	if raw, ok := f.take("rootMessageCount"); ok {
		var n int64
		if json.Unmarshal(raw, &n) == nil {
			ch.RootMessageCount = &n
		}
	}
	ch.LastMessageTime = f.takeTime("lastMessageTime")
	if raw, ok := f.take("members"); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Channel{}, fmt.Errorf("channel members: %w", err)
		}
		for _, item := range items {
			u, err := UserFromArchive(item)
			if err != nil {
				return Channel{}, err
			}
			ch.Members = append(ch.Members, u)
		}
	}
	ch.Extra = f.bag()
	return ch, nil
}

// ToArchive renders the internal archive JSON form. Members are
// optionally excluded; headers store them, team listings do not.
func (ch Channel) ToArchive(includeMembers bool) map[string]any {
	o := archiveObject{}
	o.set("id", ch.ID)
	o.set("internalName", ch.InternalName)
	o.set("createTime", ch.CreateTime)
	o["type"] = ch.Type
	o["messageCount"] = ch.MessageCount
	o.set("name", ch.Name)
	o.set("creatorUserId", ch.CreatorUserID)
	o.set("updateTime", ch.UpdateTime)
	o.set("deleteTime", ch.DeleteTime)
	o.set("header", ch.Header)
	o.set("purpose", ch.Purpose)
	if ch.RootMessageCount != nil {
		o["rootMessageCount"] = *ch.RootMessageCount
	}
	o.set("lastMessageTime", ch.LastMessageTime)
	if includeMembers {
		o.setList("members", len(ch.Members), ch.Members)
	}
	o.mergeExtra(ch.Extra)
	return o
}

func (ch Channel) MarshalJSON() ([]byte, error) {
	return json.Marshal(ch.ToArchive(true))
}

func (ch Channel) String() string {
	return fmt.Sprintf("Channel(%s)", ch.InternalName)
}

// Matches reports whether the channel is the one the locator refers to.
func (ch Channel) Matches(l EntityLocator) bool {
	switch {
	case l.ID != "":
		return ch.ID == l.ID
	case l.InternalName != "":
		return ch.InternalName == l.InternalName
	default:
		return ch.Name == l.Name
	}
}

// DirectChannelName builds the internal name of a direct channel
// between two users: the two ids sorted lexicographically, joined with
// a double underscore. This is the sole way to match a direct channel
// by peer user.
func DirectChannelName(a, b Id) string {
	if a < b {
		return string(a) + "__" + string(b)
	}
	return string(b) + "__" + string(a)
}

// SplitDirectChannelName returns the two member ids of a direct
// channel's internal name.
func SplitDirectChannelName(internalName string) (Id, Id, error) {
	parts := strings.Split(internalName, "__")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed direct channel name %q", internalName)
	}
	return Id(parts[0]), Id(parts[1]), nil
}
