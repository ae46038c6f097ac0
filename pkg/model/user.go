package model

import (
	"encoding/json"
	"strings"
)

// User is a Mattermost account as far as the archive cares: identity,
// naming and a handful of timestamps. Credentials, notification and
// locale settings are deliberately stripped on ingest.
type User struct {
	ID         Id
	Name       string
	CreateTime Time
	UpdateTime Time
	DeleteTime Time

	FirstName        string
	LastName         string
	Nickname         string
	UpdateAvatarTime Time
	Position         string
	Roles            []string

	// AvatarFileName is filled in when the avatar image gets
	// downloaded alongside the archive.
	AvatarFileName string

	Extra Extra
}

// UserFromServer decodes the server JSON form of a user.
func UserFromServer(data []byte) (User, error) {
	f, err := decodeObject(data)
	if err != nil {
		return User{}, err
	}

	var u User
	u.ID = f.takeID("id")
	u.Name = f.takeString("username")
	u.Nickname = f.takeString("nickname")
	u.FirstName = f.takeString("first_name")
	u.LastName = f.takeString("last_name")

	u.CreateTime = f.takeTime("create_at")
	if t := f.takeTime("update_at"); t != u.CreateTime {
		u.UpdateTime = t
	}
	if t := f.takeTime("delete_at"); !t.IsZero() {
		u.DeleteTime = t
	}
	if t := f.takeTime("last_picture_update"); !t.IsZero() && t != u.CreateTime {
		u.UpdateAvatarTime = t
	}
	u.Position = f.takeString("position")

	roles := strings.Fields(f.takeString("roles"))
	// Plain membership carries no information.
	if !(len(roles) == 1 && roles[0] == "system_user") {
		u.Roles = roles
	}

	if props := takeFilteredProps(f, "customStatus"); props != nil {
		f.m["props"] = props
	}

	// Fields that are ephemeral or none of the archive's business.
	f.drop("auth_service", "email", "email_verified", "disable_welcome_email",
		"last_password_update", "locale", "timezone", "notify_props")

	u.Extra = f.bag()
	return u, nil
}

// takeFilteredProps extracts the props object, removing the listed keys
// and empty-string values. Returns nil if nothing of interest remains.
func takeFilteredProps(f *jsonFields, dropKeys ...string) json.RawMessage {
	raw, ok := f.take("props")
	if !ok {
		return nil
	}
	var props map[string]json.RawMessage
	if json.Unmarshal(raw, &props) != nil || len(props) == 0 {
		return nil
	}
	for _, key := range dropKeys {
		delete(props, key)
	}
	for key, value := range props {
		if string(compact(value)) == `""` {
			delete(props, key)
		}
	}
	if len(props) == 0 {
		return nil
	}
	filtered, err := json.Marshal(props)
	if err != nil {
		return nil
	}
	return filtered
}

// UserFromArchive decodes the archive JSON form.
func UserFromArchive(data []byte) (User, error) {
	f, err := decodeObject(data)
	if err != nil {
		return User{}, err
	}

	var u User
	u.ID = f.takeID("id")
	u.Name = f.takeString("name")
	u.CreateTime = f.takeTime("createTime")
	u.UpdateTime = f.takeTime("updateTime")
	u.DeleteTime = f.takeTime("deleteTime")
	u.FirstName = f.takeString("firstName")
	u.LastName = f.takeString("lastName")
	u.Nickname = f.takeString("nickname")
	u.UpdateAvatarTime = f.takeTime("updateAvatarTime")
	u.Position = f.takeString("position")
	if raw, ok := f.take("roles"); ok {
		_ = json.Unmarshal(raw, &u.Roles)
	}
	u.AvatarFileName = f.takeString("avatarFileName")
	u.Extra = f.bag()
	return u, nil
}

// ToArchive renders the internal archive JSON form.
func (u User) ToArchive() map[string]any {
	o := archiveObject{}
	o.set("id", u.ID)
	o.set("name", u.Name)
	o.set("createTime", u.CreateTime)
	o.set("updateTime", u.UpdateTime)
	o.set("deleteTime", u.DeleteTime)
	o.set("firstName", u.FirstName)
	o.set("lastName", u.LastName)
	o.set("nickname", u.Nickname)
	o.set("updateAvatarTime", u.UpdateAvatarTime)
	o.set("position", u.Position)
	o.setList("roles", len(u.Roles), u.Roles)
	o.set("avatarFileName", u.AvatarFileName)
	o.mergeExtra(u.Extra)
	return o
}

func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.ToArchive())
}

// Matches reports whether the user is the one the locator refers to.
// Users have no separate internal name; both name forms match the
// username.
func (u User) Matches(l EntityLocator) bool {
	switch {
	case l.ID != "":
		return u.ID == l.ID
	case l.Name != "":
		return u.Name == l.Name
	default:
		return u.Name == l.InternalName
	}
}
