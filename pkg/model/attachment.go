package model

import "encoding/json"

// FileAttachment describes a file uploaded with a post. Only the
// metadata is kept here; the content is downloaded separately.
type FileAttachment struct {
	ID         Id
	Name       string
	ByteSize   int64
	MimeType   string
	CreateTime Time
	UpdateTime Time
	DeleteTime Time

	Extra Extra
}

// FileAttachmentFromServer decodes the server JSON form.
func FileAttachmentFromServer(data []byte) (FileAttachment, error) {
	f, err := decodeObject(data)
	if err != nil {
		return FileAttachment{}, err
	}

	var a FileAttachment
	a.ID = f.takeID("id")
	a.Name = f.takeString("name")
	a.ByteSize = f.takeInt("size")
	a.MimeType = f.takeString("mime_type")
	a.CreateTime = f.takeTime("create_at")
	if t := f.takeTime("update_at"); t != a.CreateTime {
		a.UpdateTime = t
	}
	if t := f.takeTime("delete_at"); !t.IsZero() {
		a.DeleteTime = t
	}

	// Derived properties, reconstructible from the content itself.
	f.drop("user_id", "post_id", "width", "height",
		"has_preview_image", "mini_preview", "extension")

	a.Extra = f.bag()
	return a, nil
}

// FileAttachmentFromArchive decodes the archive JSON form.
func FileAttachmentFromArchive(data []byte) (FileAttachment, error) {
	f, err := decodeObject(data)
	if err != nil {
		return FileAttachment{}, err
	}

	var a FileAttachment
	a.ID = f.takeID("id")
	a.Name = f.takeString("name")
	a.ByteSize = f.takeInt("byteSize")
	a.MimeType = f.takeString("mimeType")
	a.CreateTime = f.takeTime("createTime")
	a.UpdateTime = f.takeTime("updateTime")
	a.DeleteTime = f.takeTime("deleteTime")
	a.Extra = f.bag()
	return a, nil
}

// ToArchive renders the internal archive JSON form.
func (a FileAttachment) ToArchive() map[string]any {
	o := archiveObject{}
	o.set("id", a.ID)
	o.set("name", a.Name)
	if a.ByteSize != 0 {
		o["byteSize"] = a.ByteSize
	}
	o.set("mimeType", a.MimeType)
	o.set("createTime", a.CreateTime)
	o.set("updateTime", a.UpdateTime)
	o.set("deleteTime", a.DeleteTime)
	o.mergeExtra(a.Extra)
	return o
}

func (a FileAttachment) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.ToArchive())
}
