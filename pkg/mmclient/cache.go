package mmclient

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mmdl/mattermost-dl/pkg/model"
)

// cache holds entities already fetched during the run so locator
// matching and enrichment never refetch them.
type cache struct {
	users  map[model.Id]model.User
	teams  map[model.Id]*model.Team
	emojis map[model.Id]model.Emoji
}

func (c *cache) init() {
	c.users = map[model.Id]model.User{}
	c.teams = map[model.Id]*model.Team{}
	c.emojis = map[model.Id]model.Emoji{}
}

// UserByID fetches a user, serving repeats from the cache.
func (c *Client) UserByID(id model.Id) (model.User, error) {
	if u, ok := c.cache.users[id]; ok {
		return u, nil
	}
	var raw json.RawMessage
	if err := c.get("users/"+string(id), nil, &raw); err != nil {
		return model.User{}, err
	}
	u, err := model.UserFromServer(raw)
	if err != nil {
		return model.User{}, err
	}
	c.cache.users[u.ID] = u
	return u, nil
}

// UserByName fetches a user by username, serving repeats from the
// cache.
func (c *Client) UserByName(name string) (model.User, error) {
	for _, u := range c.cache.users {
		if u.Name == name {
			return u, nil
		}
	}
	var raw json.RawMessage
	if err := c.get("users/username/"+name, nil, &raw); err != nil {
		return model.User{}, err
	}
	u, err := model.UserFromServer(raw)
	if err != nil {
		return model.User{}, err
	}
	c.cache.users[u.ID] = u
	return u, nil
}

// LoadLocalUser resolves the logged-in account and anchors the
// {userId} path placeholder on it.
func (c *Client) LoadLocalUser(username string) (model.User, error) {
	u, err := c.UserByName(username)
	if err != nil {
		return model.User{}, err
	}
	c.context["userId"] = string(u.ID)
	return u, nil
}

// Teams lists the local user's teams, fetched once per run.
func (c *Client) Teams() (map[model.Id]*model.Team, error) {
	if len(c.cache.teams) != 0 {
		return c.cache.teams, nil
	}
	var raws []json.RawMessage
	if err := c.get("users/{userId}/teams", nil, &raws); err != nil {
		return nil, err
	}
	for _, raw := range raws {
		t, err := model.TeamFromServer(raw)
		if err != nil {
			return nil, err
		}
		t.Channels = map[model.Id]*model.Channel{}
		c.cache.teams[t.ID] = &t
	}
	return c.cache.teams, nil
}

// LoadChannels populates the channel map of one cached team.
func (c *Client) LoadChannels(teamID model.Id) error {
	team, ok := c.cache.teams[teamID]
	if !ok {
		return fmt.Errorf("team %s is not cached", teamID)
	}
	var raws []json.RawMessage
	if err := c.get("users/{userId}/teams/"+string(teamID)+"/channels", nil, &raws); err != nil {
		return err
	}
	for _, raw := range raws {
		ch, err := model.ChannelFromServer(raw)
		if err != nil {
			return err
		}
		team.Channels[ch.ID] = &ch
	}
	return nil
}

// LoadChannelMembers fills the channel's member list by paginating the
// membership endpoint. Already-populated channels are left alone.
func (c *Client) LoadChannelMembers(channel *model.Channel) error {
	if channel.Members != nil {
		return nil
	}

	const pageSize = 100
	members := []model.User{}
	for page := 0; ; page++ {
		query := url.Values{
			"per_page": {strconv.Itoa(pageSize)},
			"page":     {strconv.Itoa(page)},
		}
		var window []struct {
			UserID model.Id `json:"user_id"`
		}
		if err := c.get("channels/"+string(channel.ID)+"/members", query, &window); err != nil {
			return err
		}
		for _, m := range window {
			u, err := c.UserByID(m.UserID)
			if err != nil {
				return err
			}
			members = append(members, u)
		}
		if len(window) < pageSize {
			break
		}
		c.Delay()
	}
	channel.Members = members
	return nil
}

// LocalUserID returns the id anchored by LoadLocalUser.
func (c *Client) LocalUserID() model.Id {
	return model.Id(c.context["userId"])
}

// DirectChannelNameWith builds the internal name of the direct channel
// between the local user and the given one.
func (c *Client) DirectChannelNameWith(otherUserID model.Id) string {
	return model.DirectChannelName(c.LocalUserID(), otherUserID)
}

// PeerOfDirectChannel returns the non-local member id of a direct
// channel's internal name.
func (c *Client) PeerOfDirectChannel(internalName string) (model.Id, error) {
	a, b, err := model.SplitDirectChannelName(internalName)
	if err != nil {
		return "", err
	}
	if a == c.LocalUserID() {
		return b, nil
	}
	return a, nil
}

// PostByID fetches one post.
func (c *Client) PostByID(id model.Id) (model.Post, error) {
	var raw json.RawMessage
	if err := c.get("posts/"+string(id), nil, &raw); err != nil {
		return model.Post{}, err
	}
	return model.PostFromServer(raw)
}

// PostTime resolves a post id to its creation time. It makes the
// client satisfy the planner's resolver interface.
func (c *Client) PostTime(id model.Id) (model.Time, error) {
	p, err := c.PostByID(id)
	if err != nil {
		return 0, err
	}
	return p.CreateTime, nil
}

// FileURL is the API path serving an attachment's content.
func FileURL(file model.FileAttachment) string {
	return "files/" + string(file.ID)
}

// EmojiImageURL is the API path serving a custom emoji's image.
func EmojiImageURL(emoji model.Emoji) string {
	return "emoji/" + string(emoji.ID) + "/image"
}

// AvatarURL is the API path serving a user's profile image.
func AvatarURL(user model.User) string {
	return "users/" + string(user.ID) + "/image"
}
