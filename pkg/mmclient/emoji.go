package mmclient

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mmdl/mattermost-dl/pkg/model"
)

// ProcessEmojiList enumerates the server's custom emoji database page
// by page, feeding each emoji to the processor and the cache.
// maxCount 0 means unlimited.
func (c *Client) ProcessEmojiList(maxCount int64, processor func(model.Emoji) error) error {
	const pageSize = 60

	var received int64
	for page := int64(0); ; page++ {
		perPage := int64(pageSize)
		if maxCount > 0 && maxCount-received < perPage {
			perPage = maxCount - received
		}
		query := url.Values{
			"per_page": {strconv.FormatInt(perPage, 10)},
			"page":     {strconv.FormatInt(page, 10)},
		}
		var raws []json.RawMessage
		if err := c.get("emoji", query, &raws); err != nil {
			return err
		}
		for _, raw := range raws {
			e, err := model.EmojiFromServer(raw)
			if err != nil {
				return err
			}
			c.cache.emojis[e.ID] = e
			if err := processor(e); err != nil {
				return err
			}
		}
		received += int64(len(raws))
		if int64(len(raws)) < perPage || (maxCount > 0 && received >= maxCount) {
			return nil
		}
		c.Delay()
	}
}

// EmojiByID serves an emoji from the cache, enumerating the whole
// database once if the cache is still empty.
func (c *Client) EmojiByID(id model.Id) (model.Emoji, error) {
	if len(c.cache.emojis) == 0 {
		if err := c.ProcessEmojiList(0, func(model.Emoji) error { return nil }); err != nil {
			return model.Emoji{}, err
		}
	}
	if e, ok := c.cache.emojis[id]; ok {
		return e, nil
	}
	return model.Emoji{}, fmt.Errorf("unknown emoji %s", id)
}

// EmojiByName serves an emoji by name from the cache, enumerating the
// database once if needed.
func (c *Client) EmojiByName(name string) (model.Emoji, error) {
	if len(c.cache.emojis) == 0 {
		if err := c.ProcessEmojiList(0, func(model.Emoji) error { return nil }); err != nil {
			return model.Emoji{}, err
		}
	}
	for _, e := range c.cache.emojis {
		if e.Name == name {
			return e, nil
		}
	}
	return model.Emoji{}, fmt.Errorf("unknown emoji %q", name)
}

// CacheEmoji records an emoji seen inline in post metadata so later
// lookups avoid a full database enumeration.
func (c *Client) CacheEmoji(e model.Emoji) {
	c.cache.emojis[e.ID] = e
}
