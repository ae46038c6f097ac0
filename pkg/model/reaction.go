package model

import "encoding/json"

// PostReaction is a single user's emoji reaction on a post. The emoji
// is referenced by name; the id is resolved during enrichment when
// emoji metadata is requested.
type PostReaction struct {
	UserID     Id
	CreateTime Time
	UpdateTime Time
	DeleteTime Time
	EmojiID    Id
	EmojiName  string

	// UserName is redundant, attached during enrichment.
	UserName string

	Extra Extra
}

// PostReactionFromServer decodes the server JSON form.
func PostReactionFromServer(data []byte) (PostReaction, error) {
	f, err := decodeObject(data)
	if err != nil {
		return PostReaction{}, err
	}

	var r PostReaction
	r.UserID = f.takeID("user_id")
	r.CreateTime = f.takeTime("create_at")
	if t := f.takeTime("update_at"); !t.IsZero() && t != r.CreateTime {
		r.UpdateTime = t
	}
	if t := f.takeTime("delete_at"); !t.IsZero() {
		r.DeleteTime = t
	}
	r.EmojiName = f.takeString("emoji_name")

	f.drop("post_id")

	r.Extra = f.bag()
	return r, nil
}

// PostReactionFromArchive decodes the archive JSON form.
func PostReactionFromArchive(data []byte) (PostReaction, error) {
	f, err := decodeObject(data)
	if err != nil {
		return PostReaction{}, err
	}

	var r PostReaction
	r.UserID = f.takeID("userId")
	r.CreateTime = f.takeTime("createTime")
	r.UpdateTime = f.takeTime("updateTime")
	r.DeleteTime = f.takeTime("deleteTime")
	r.EmojiID = f.takeID("emojiId")
	r.EmojiName = f.takeString("emojiName")
	r.UserName = f.takeString("userName")
	r.Extra = f.bag()
	return r, nil
}

// ToArchive renders the internal archive JSON form.
func (r PostReaction) ToArchive() map[string]any {
	o := archiveObject{}
	o.set("userId", r.UserID)
	o.set("createTime", r.CreateTime)
	o.set("updateTime", r.UpdateTime)
	o.set("deleteTime", r.DeleteTime)
	o.set("emojiId", r.EmojiID)
	o.set("emojiName", r.EmojiName)
	o.set("userName", r.UserName)
	o.mergeExtra(r.Extra)
	return o
}

func (r PostReaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToArchive())
}
