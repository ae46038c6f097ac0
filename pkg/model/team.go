package model

import (
	"encoding/json"
	"fmt"

	"github.com/mmdl/mattermost-dl/internal/logger"
)

// TeamType distinguishes open teams from invite-only ones.
type TeamType int

const (
	TeamOpen TeamType = iota
	TeamInviteOnly
)

var teamTypeTags = map[TeamType]string{
	TeamOpen:       "O",
	TeamInviteOnly: "I",
}

var teamTypeNames = map[TeamType]string{
	TeamOpen:       "Open",
	TeamInviteOnly: "InviteOnly",
}

// TeamTypeFromServer maps a wire tag, degrading unknown tags to Open
// with a warning.
func TeamTypeFromServer(tag string) TeamType {
	for t, known := range teamTypeTags {
		if known == tag {
			return t
		}
	}
	logger.Warn("Unknown team type, assumed open", "type", tag)
	return TeamOpen
}

// TeamTypeFromArchive maps a stored long name.
func TeamTypeFromArchive(name string) TeamType {
	for t, known := range teamTypeNames {
		if known == name {
			return t
		}
	}
	logger.Warn("Unknown stored team type, assumed open", "type", name)
	return TeamOpen
}

func (t TeamType) String() string { return teamTypeNames[t] }

func (t TeamType) MarshalJSON() ([]byte, error) {
	return json.Marshal(teamTypeNames[t])
}

// Team groups channels. The channel map is loaded lazily, once per
// team, by the client's channel enumeration.
type Team struct {
	ID           Id
	Name         string
	InternalName string
	Type         TeamType
	CreateTime   Time
	UpdateTime   Time
	DeleteTime   Time
	Description  string

	UpdateAvatarTime Time
	InviteID         Id

	Channels map[Id]*Channel

	Extra Extra
}

// TeamFromServer decodes the server JSON form.
func TeamFromServer(data []byte) (Team, error) {
	f, err := decodeObject(data)
	if err != nil {
		return Team{}, err
	}

	var t Team
	t.ID = f.takeID("id")
	t.Name = f.takeString("display_name")
	t.InternalName = f.takeString("name")
	t.Type = TeamTypeFromServer(f.takeString("type"))
	t.CreateTime = f.takeTime("create_at")
	if ts := f.takeTime("update_at"); ts != t.CreateTime {
		t.UpdateTime = ts
	}
	if ts := f.takeTime("delete_at"); !ts.IsZero() {
		t.DeleteTime = ts
	}
	t.Description = f.takeString("description")
	if ts := f.takeTime("last_team_icon_update"); !ts.IsZero() && ts != t.CreateTime {
		t.UpdateAvatarTime = ts
	}
	t.InviteID = f.takeID("invite_id")

	// Join policy has no archival value.
	f.drop("allow_open_invite", "allowed_domains")

	t.Extra = f.bag()
	return t, nil
}

// TeamFromArchive decodes the archive JSON form. Stored teams never
// include their channel map.
func TeamFromArchive(data []byte) (Team, error) {
	f, err := decodeObject(data)
	if err != nil {
		return Team{}, err
	}

	var t Team
	t.ID = f.takeID("id")
	t.Name = f.takeString("name")
	t.InternalName = f.takeString("internalName")
	t.Type = TeamTypeFromArchive(f.takeString("type"))
	t.CreateTime = f.takeTime("createTime")
	t.UpdateTime = f.takeTime("updateTime")
	t.DeleteTime = f.takeTime("deleteTime")
	t.Description = f.takeString("description")
	t.UpdateAvatarTime = f.takeTime("updateAvatarTime")
	t.InviteID = f.takeID("inviteId")
	t.Extra = f.bag()
	return t, nil
}

// ToArchive renders the internal archive JSON form, always without the
// channel map (each channel gets its own archive).
func (t Team) ToArchive() map[string]any {
	o := archiveObject{}
	o.set("id", t.ID)
	o.set("name", t.Name)
	o.set("internalName", t.InternalName)
	o["type"] = t.Type
	o.set("createTime", t.CreateTime)
	o.set("updateTime", t.UpdateTime)
	o.set("deleteTime", t.DeleteTime)
	o.set("description", t.Description)
	o.set("updateAvatarTime", t.UpdateAvatarTime)
	o.set("inviteId", t.InviteID)
	o.mergeExtra(t.Extra)
	return o
}

func (t Team) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ToArchive())
}

func (t Team) String() string {
	return fmt.Sprintf("Team(%s)", t.InternalName)
}

// Matches reports whether the team is the one the locator refers to.
func (t Team) Matches(l EntityLocator) bool {
	switch {
	case l.ID != "":
		return t.ID == l.ID
	case l.InternalName != "":
		return t.InternalName == l.InternalName
	default:
		return t.Name == l.Name
	}
}
