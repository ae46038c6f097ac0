package model

import (
	"encoding/json"
	"fmt"
)

// Post is a single channel message together with its first-class
// sub-entities (attachments, reactions, custom emoji metadata).
type Post struct {
	ID         Id
	UserID     Id
	CreateTime Time
	Message    string

	IsPinned   bool
	UpdateTime Time
	// PublicUpdateTime is the last visible edit; silent updates after
	// posting are ignored.
	PublicUpdateTime Time
	DeleteTime       Time
	// ParentPostID points to the direct parent when the post is a
	// reply. The server tends to report the thread root here instead.
	ParentPostID Id
	// RootPostID is the root of the reply chain.
	RootPostID Id

	SpecialMsgType string

	// Emojis holds full emoji metadata while the post travels through
	// the enrichment step; before serialization it is collapsed to
	// EmojiIDs (or dropped entirely when emoji metadata is off).
	Emojis      []Emoji
	EmojiIDs    []Id
	Attachments []FileAttachment
	Reactions   []PostReaction

	// UserName is redundant, attached during enrichment.
	UserName string

	Extra Extra
}

// PostFromServer decodes the server JSON form, pulling embedded
// metadata (emojis, files, reactions) into first-class sub-entities.
func PostFromServer(data []byte) (Post, error) {
	f, err := decodeObject(data)
	if err != nil {
		return Post{}, err
	}

	var p Post
	p.ID = f.takeID("id")
	p.UserID = f.takeID("user_id")
	p.CreateTime = f.takeTime("create_at")
	p.Message = f.takeString("message")
	if t := f.takeTime("update_at"); t != p.CreateTime {
		p.UpdateTime = t
	}
	if t := f.takeTime("edit_at"); !t.IsZero() && t != p.UpdateTime && t != p.CreateTime {
		p.PublicUpdateTime = t
	}
	if t := f.takeTime("delete_at"); !t.IsZero() {
		p.DeleteTime = t
	}
	if id := f.takeID("parent_id"); id != "" {
		p.ParentPostID = id
	}
	if id := f.takeID("root_id"); id != "" && id != p.ParentPostID {
		p.RootPostID = id
	}
	p.IsPinned = f.takeBool("is_pinned")

	if props := takeFilteredProps(f, "disable_group_highlight", "channel_mentions"); props != nil {
		f.m["props"] = props
	}

	p.SpecialMsgType = f.takeString("type")

	if err := p.takeMetadata(f); err != nil {
		return Post{}, err
	}

	f.drop("channel_id", "reply_count", "has_reactions",
		// Deprecated form of file attachment metadata.
		"file_ids",
		// Automatically extracted hashtags, usually wrong.
		"hashtags",
		"last_reply_at")

	p.Extra = f.bag()
	return p, nil
}

// takeMetadata dissects the embedded metadata object. Embeds and image
// dimensions carry only redundant data and are discarded; anything
// unrecognized stays in the bag under "metadata".
func (p *Post) takeMetadata(f *jsonFields) error {
	raw, ok := f.take("metadata")
	if !ok {
		return nil
	}
	meta, err := decodeObject(raw)
	if err != nil {
		return fmt.Errorf("post metadata: %w", err)
	}

	meta.drop("embeds", "images")

	if rawEmojis, ok := meta.take("emojis"); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawEmojis, &items); err != nil {
			return fmt.Errorf("post metadata emojis: %w", err)
		}
		for _, item := range items {
			e, err := EmojiFromServer(item)
			if err != nil {
				return err
			}
			p.Emojis = append(p.Emojis, e)
		}
	}
	if rawFiles, ok := meta.take("files"); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawFiles, &items); err != nil {
			return fmt.Errorf("post metadata files: %w", err)
		}
		for _, item := range items {
			a, err := FileAttachmentFromServer(item)
			if err != nil {
				return err
			}
			p.Attachments = append(p.Attachments, a)
		}
	}
	if rawReactions, ok := meta.take("reactions"); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawReactions, &items); err != nil {
			return fmt.Errorf("post metadata reactions: %w", err)
		}
		for _, item := range items {
			r, err := PostReactionFromServer(item)
			if err != nil {
				return err
			}
			p.Reactions = append(p.Reactions, r)
		}
	}

	if rest := meta.bag(); rest != nil {
		leftover, err := json.Marshal(rest)
		if err != nil {
			return err
		}
		f.m["metadata"] = leftover
	}
	return nil
}

// PostFromArchive decodes the archive JSON form. Emojis appear there
// only as a list of ids.
func PostFromArchive(data []byte) (Post, error) {
	f, err := decodeObject(data)
	if err != nil {
		return Post{}, err
	}

	var p Post
	p.ID = f.takeID("id")
	p.UserID = f.takeID("userId")
	p.CreateTime = f.takeTime("createTime")
	p.Message = f.takeString("message")
	p.IsPinned = f.takeBool("isPinned")
	p.UpdateTime = f.takeTime("updateTime")
	p.PublicUpdateTime = f.takeTime("publicUpdateTime")
	p.DeleteTime = f.takeTime("deleteTime")
	p.ParentPostID = f.takeID("parentPostId")
	p.RootPostID = f.takeID("rootPostId")
	p.SpecialMsgType = f.takeString("specialMsgType")
	p.UserName = f.takeString("userName")

	if raw, ok := f.take("emojis"); ok {
		if err := json.Unmarshal(raw, &p.EmojiIDs); err != nil {
			return Post{}, fmt.Errorf("post emojis: %w", err)
		}
	}
	if raw, ok := f.take("attachments"); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Post{}, fmt.Errorf("post attachments: %w", err)
		}
		for _, item := range items {
			a, err := FileAttachmentFromArchive(item)
			if err != nil {
				return Post{}, err
			}
			p.Attachments = append(p.Attachments, a)
		}
	}
	if raw, ok := f.take("reactions"); ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Post{}, fmt.Errorf("post reactions: %w", err)
		}
		for _, item := range items {
			r, err := PostReactionFromArchive(item)
			if err != nil {
				return Post{}, err
			}
			p.Reactions = append(p.Reactions, r)
		}
	}

	p.Extra = f.bag()
	return p, nil
}

// ToArchive renders the internal archive JSON form. Full emoji
// entities are never serialized into posts, only their ids.
func (p Post) ToArchive() map[string]any {
	o := archiveObject{}
	o.set("id", p.ID)
	o.set("userId", p.UserID)
	o.set("createTime", p.CreateTime)
	if p.Message != "" {
		o["message"] = p.Message
	}
	o.set("isPinned", p.IsPinned)
	o.set("updateTime", p.UpdateTime)
	o.set("publicUpdateTime", p.PublicUpdateTime)
	o.set("deleteTime", p.DeleteTime)
	o.set("parentPostId", p.ParentPostID)
	o.set("rootPostId", p.RootPostID)
	o.set("specialMsgType", p.SpecialMsgType)
	o.setList("emojis", len(p.EmojiIDs), p.EmojiIDs)
	o.setList("attachments", len(p.Attachments), p.Attachments)
	o.setList("reactions", len(p.Reactions), p.Reactions)
	o.set("userName", p.UserName)
	o.mergeExtra(p.Extra)
	return o
}

func (p Post) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ToArchive())
}

func (p Post) String() string {
	return fmt.Sprintf("Post(u=%s, t=%s)", p.UserID, p.CreateTime)
}
