package model

import "encoding/json"

// Emoji is a custom emoji definition.
type Emoji struct {
	ID         Id
	CreatorID  Id
	Name       string
	CreateTime Time
	UpdateTime Time
	DeleteTime Time

	// CreatorName is redundant, attached during enrichment.
	CreatorName string
	// ImageFileName is filled in when the image gets downloaded.
	ImageFileName string

	Extra Extra
}

// EmojiFromServer decodes the server JSON form.
func EmojiFromServer(data []byte) (Emoji, error) {
	f, err := decodeObject(data)
	if err != nil {
		return Emoji{}, err
	}

	var e Emoji
	e.ID = f.takeID("id")
	e.CreatorID = f.takeID("creator_id")
	e.Name = f.takeString("name")
	e.CreateTime = f.takeTime("create_at")
	if t := f.takeTime("update_at"); t != e.CreateTime {
		e.UpdateTime = t
	}
	if t := f.takeTime("delete_at"); !t.IsZero() {
		e.DeleteTime = t
	}
	e.Extra = f.bag()
	return e, nil
}

// EmojiFromArchive decodes the archive JSON form.
func EmojiFromArchive(data []byte) (Emoji, error) {
	f, err := decodeObject(data)
	if err != nil {
		return Emoji{}, err
	}

	var e Emoji
	e.ID = f.takeID("id")
	e.CreatorID = f.takeID("creatorId")
	e.Name = f.takeString("name")
	e.CreateTime = f.takeTime("createTime")
	e.UpdateTime = f.takeTime("updateTime")
	e.DeleteTime = f.takeTime("deleteTime")
	e.CreatorName = f.takeString("creatorName")
	e.ImageFileName = f.takeString("imageFileName")
	e.Extra = f.bag()
	return e, nil
}

// ToArchive renders the internal archive JSON form.
func (e Emoji) ToArchive() map[string]any {
	o := archiveObject{}
	o.set("id", e.ID)
	o.set("creatorId", e.CreatorID)
	o.set("name", e.Name)
	o.set("createTime", e.CreateTime)
	o.set("updateTime", e.UpdateTime)
	o.set("deleteTime", e.DeleteTime)
	o.set("creatorName", e.CreatorName)
	o.set("imageFileName", e.ImageFileName)
	o.mergeExtra(e.Extra)
	return o
}

func (e Emoji) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToArchive())
}
