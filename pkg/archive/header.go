package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/mmdl/mattermost-dl/internal/logger"
	"github.com/mmdl/mattermost-dl/pkg/model"
)

// FormatVersion is the major version of the archive header format this
// build reads and writes.
const FormatVersion = "0"

var versionPattern = regexp.MustCompile(`^(\d+)(\.\d+(\.\d+)?.*)?$`)

// ChannelHeader is the content of a channel's .meta.json file: the
// channel itself, its team scope when it has one, the description of
// the stored posts, and the users and emojis observed in them.
type ChannelHeader struct {
	Channel model.Channel
	// Team is nil for direct and group channels, which are not scoped
	// under a team.
	Team *model.Team
	// Storage is nil when the channel has no stored messages.
	Storage *PostStorage

	Users  map[model.Id]model.User
	Emojis map[model.Id]model.Emoji
}

// NewChannelHeader starts a header for a fresh download of a channel.
func NewChannelHeader(channel model.Channel) *ChannelHeader {
	return &ChannelHeader{
		Channel: channel,
		Users:   map[model.Id]model.User{},
		Emojis:  map[model.Id]model.Emoji{},
	}
}

// AddUser records a user observed in the downloaded posts.
func (h *ChannelHeader) AddUser(u model.User) {
	h.Users[u.ID] = u
}

// AddEmoji records an emoji observed in the downloaded posts.
func (h *ChannelHeader) AddEmoji(e model.Emoji) {
	h.Emojis[e.ID] = e
}

// Update merges a freshly downloaded header into this (previously
// stored) one. Channel metadata is replaced, storages are chained via
// Extend, user and emoji sets are unioned with the fresh side winning.
func (h *ChannelHeader) Update(other *ChannelHeader) error {
	h.Channel = other.Channel
	if other.Team != nil {
		h.Team = other.Team
	}
	if other.Storage != nil {
		if h.Storage != nil && h.Storage.Count > 0 {
			if err := h.Storage.Extend(*other.Storage); err != nil {
				return err
			}
		} else {
			// An empty storage records no posts to chain onto; the fresh
			// one simply takes its place.
			s := *other.Storage
			h.Storage = &s
		}
	}
	if h.Users == nil {
		h.Users = map[model.Id]model.User{}
	}
	for id, u := range other.Users {
		h.Users[id] = u
	}
	if h.Emojis == nil {
		h.Emojis = map[model.Id]model.Emoji{}
	}
	for id, e := range other.Emojis {
		h.Emojis[id] = e
	}
	return nil
}

// DecodeHeader parses a stored header. A header whose major version is
// ahead of this build, or which lacks its channel object, yields a
// SchemaError; the caller routes that to the recovery arbiter.
func DecodeHeader(data []byte, path string) (*ChannelHeader, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &SchemaError{Path: path, Reason: "not a JSON object", Err: err}
	}

	if rawVersion, ok := raw["version"]; !ok {
		logger.Warn("Channel metadata is missing versioning information, some data may be lost", logger.KeyPath, path)
	} else {
		var version string
		if json.Unmarshal(rawVersion, &version) != nil || !versionPattern.MatchString(version) {
			logger.Warn("Channel metadata carries unrecognized version, some data may be lost",
				logger.KeyPath, path, "version", string(rawVersion))
		} else if major := versionPattern.FindStringSubmatch(version)[1]; major != FormatVersion {
			return nil, &SchemaError{
				Path:   path,
				Reason: fmt.Sprintf("stored with format version %s, this build understands %s", version, FormatVersion),
			}
		}
	}

	rawChannel, ok := raw["channel"]
	if !ok {
		return nil, &SchemaError{Path: path, Reason: "missing channel object"}
	}
	channel, err := model.ChannelFromArchive(rawChannel)
	if err != nil {
		return nil, &SchemaError{Path: path, Reason: "malformed channel object", Err: err}
	}

	h := NewChannelHeader(channel)

	if rawTeam, ok := raw["team"]; ok {
		team, err := model.TeamFromArchive(rawTeam)
		if err != nil {
			return nil, &SchemaError{Path: path, Reason: "malformed team object", Err: err}
		}
		h.Team = &team
	}
	if rawStorage, ok := raw["storage"]; ok {
		storage, err := PostStorageFromArchive(rawStorage)
		if err != nil {
			return nil, &SchemaError{Path: path, Reason: "malformed storage object", Err: err}
		}
		h.Storage = &storage
	}
	if rawUsers, ok := raw["users"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawUsers, &items); err != nil {
			return nil, &SchemaError{Path: path, Reason: "malformed user list", Err: err}
		}
		for _, item := range items {
			u, err := model.UserFromArchive(item)
			if err != nil {
				return nil, &SchemaError{Path: path, Reason: "malformed user entry", Err: err}
			}
			h.AddUser(u)
		}
	}
	if rawEmojis, ok := raw["emojis"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawEmojis, &items); err != nil {
			return nil, &SchemaError{Path: path, Reason: "malformed emoji list", Err: err}
		}
		for _, item := range items {
			e, err := model.EmojiFromArchive(item)
			if err != nil {
				return nil, &SchemaError{Path: path, Reason: "malformed emoji entry", Err: err}
			}
			h.AddEmoji(e)
		}
	}
	return h, nil
}

// LoadHeader reads and parses the header at path.
func LoadHeader(path string) (*ChannelHeader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channel header: %w", err)
	}
	return DecodeHeader(data, path)
}

// ToArchive renders the header's JSON object. User and emoji lists are
// sorted by id so rewrites are deterministic.
func (h *ChannelHeader) ToArchive() map[string]any {
	o := map[string]any{
		"version": FormatVersion,
		"channel": h.Channel.ToArchive(true),
	}
	if h.Team != nil {
		o["team"] = h.Team.ToArchive()
	}
	if h.Storage != nil {
		o["storage"] = h.Storage.ToArchive()
	}
	if len(h.Users) > 0 {
		o["users"] = sortedByID(h.Users)
	}
	if len(h.Emojis) > 0 {
		o["emojis"] = sortedByID(h.Emojis)
	}
	return o
}

func (h *ChannelHeader) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.ToArchive())
}

func sortedByID[V any](m map[model.Id]V) []V {
	ids := make([]model.Id, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
