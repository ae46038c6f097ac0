package mmclient

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mmdl/mattermost-dl/pkg/model"
)

// FetchOptions bound a paginated post traversal. Zero times mean
// unbounded, empty ids mean no anchor, MaxCount 0 means unlimited.
type FetchOptions struct {
	Direction  model.OrderDirection
	AfterPost  model.Id
	BeforePost model.Id
	AfterTime  model.Time
	BeforeTime model.Time
	MaxCount   int64
	// Offset skips that many posts at the start of the traversal.
	Offset int64
	// BufferSize is the page size; the server caps it at 200.
	BufferSize int64
	// OnSkippedPost is invoked for posts inside the fetched window that
	// fall outside the requested time range.
	OnSkippedPost func()
}

func (o *FetchOptions) withDefaults() FetchOptions {
	out := *o
	if out.BufferSize <= 0 {
		out.BufferSize = 60
	}
	if out.OnSkippedPost == nil {
		out.OnSkippedPost = func() {}
	}
	return out
}

// PostHints accompany each post delivered by ProcessPosts.
type PostHints struct {
	ProcessedCount int64
	// PostIDBefore is the id of the post directly preceding this one in
	// channel order, empty when this post is the channel's first.
	PostIDBefore model.Id
	// PostIDAfter is the id of the post directly succeeding this one,
	// empty when this post is the channel's last.
	PostIDAfter model.Id
}

// FetchResult states why a traversal stopped.
type FetchResult int

const (
	// FetchNothingRequested means the requested range was empty.
	FetchNothingRequested FetchResult = iota
	// FetchNoMorePosts means the channel ran out in the traversal
	// direction.
	FetchNoMorePosts
	// FetchMaxCountReached means the MaxCount budget is spent.
	FetchMaxCountReached
	// FetchConditionReached means a time bound or anchor post was hit.
	FetchConditionReached
)

// postWindow is one page of the posts endpoint. Order lists ids newest
// first; empty prev/next ids mean the page touches the channel's edge.
type postWindow struct {
	Order      []model.Id                   `json:"order"`
	Posts      map[model.Id]json.RawMessage `json:"posts"`
	PrevPostID model.Id                     `json:"prev_post_id"`
	NextPostID model.Id                     `json:"next_post_id"`
}

// postPeek is the fragment needed to evaluate the stop conditions
// without decoding the whole post.
type postPeek struct {
	ID       model.Id   `json:"id"`
	CreateAt model.Time `json:"create_at"`
}

// ProcessPosts walks a channel's posts in the requested direction,
// feeding each one inside the requested range to the processor. Pages
// are fetched lazily; the processor must not retain the hint pointer.
//
// Traversal works as follows: server-side after/before anchors limit
// the fetched window; descending runs page forward from the newest
// post, ascending runs backward from the page holding the oldest post
// (located by probing, since the channel's message count is only an
// upper bound after deletions). After the first page the traversal
// switches to cursor mode, re-anchoring on the page's edge post.
func (c *Client) ProcessPosts(channel *model.Channel, opts FetchOptions, processor func(model.Post, *PostHints) error) (FetchResult, error) {
	o := opts.withDefaults()

	if !o.AfterTime.IsZero() && !o.BeforeTime.IsZero() && !o.AfterTime.Before(o.BeforeTime) {
		return FetchNothingRequested, nil
	}

	params := url.Values{"per_page": {strconv.FormatInt(o.BufferSize, 10)}}
	if o.AfterPost != "" {
		params.Set("after", string(o.AfterPost))
	}
	if o.BeforePost != "" {
		params.Set("before", string(o.BeforePost))
	}

	postsPath := "channels/" + string(channel.ID) + "/posts"

	var page, pageOffset int64
	if o.Direction == model.DirectionDesc || o.AfterPost != "" {
		page = o.Offset / o.BufferSize
		pageOffset = o.Offset % o.BufferSize
	} else {
		// Unanchored ascending traversal starts at the nominally last
		// page and probes forward while the server still reports older
		// posts beyond it.
		page = lastPageIndex(channel.MessageCount, o.BufferSize)
		var window postWindow
		for {
			probe := url.Values{
				"per_page": {strconv.FormatInt(o.BufferSize, 10)},
				"page":     {strconv.FormatInt(page, 10)},
			}
			if err := c.get(postsPath, probe, &window); err != nil {
				return 0, err
			}
			if window.PrevPostID != "" {
				page++
				continue
			}
			break
		}
		absoluteMessageOffset := page*o.BufferSize + int64(len(window.Order)) - o.Offset
		if absoluteMessageOffset <= 0 {
			// The offset skips everything the channel actually holds.
			return FetchNoMorePosts, nil
		}
		page = lastPageIndex(absoluteMessageOffset, o.BufferSize)
		if o.Offset >= channel.MessageCount%o.BufferSize {
			pageOffset = (o.BufferSize - absoluteMessageOffset%o.BufferSize) % o.BufferSize
		} else {
			pageOffset = o.Offset
		}
	}

	hints := &PostHints{}
	for {
		if page != 0 {
			params.Set("page", strconv.FormatInt(page, 10))
		}
		var window postWindow
		if err := c.get(postsPath, params, &window); err != nil {
			return 0, err
		}

		if len(window.Order) == 0 {
			// The channel's message count over-reports after deletions,
			// so an unanchored ascending walk can start one page past
			// the true end. Back off once.
			if o.Direction == model.DirectionAsc && o.AfterPost == "" && page != 0 {
				page--
				continue
			}
			return FetchNoMorePosts, nil
		}

		stop, err := c.processWindow(&window, &o, hints, pageOffset, processor)
		if err != nil {
			return 0, err
		}
		if stop != nil {
			return *stop, nil
		}
		if o.MaxCount > 0 && hints.ProcessedCount >= o.MaxCount {
			return FetchMaxCountReached, nil
		}

		// Switch to cursor mode: re-anchor on this page's edge post.
		if o.Direction == model.DirectionDesc {
			if window.PrevPostID == "" {
				return FetchNoMorePosts, nil
			}
			params.Set("before", string(window.Order[len(window.Order)-1]))
		} else {
			if window.NextPostID == "" {
				return FetchNoMorePosts, nil
			}
			params.Set("after", string(window.Order[0]))
		}
		if page != 0 {
			page = 0
			params.Del("page")
		}
		pageOffset = 0
		c.Delay()
	}
}

// processWindow feeds one page to the processor, honoring the stop
// conditions. A non-nil stop result ends the traversal.
func (c *Client) processWindow(window *postWindow, o *FetchOptions, hints *PostHints, pageOffset int64, processor func(model.Post, *PostHints) error) (*FetchResult, error) {
	order := window.Order

	// neighbor resolves the channel-order neighbors of order[i],
	// falling back to the page's edge cursors.
	neighbor := func(i int) (before, after model.Id) {
		if i+1 < len(order) {
			before = order[i+1]
		} else {
			before = window.PrevPostID
		}
		if i-1 >= 0 {
			after = order[i-1]
		} else {
			after = window.NextPostID
		}
		return before, after
	}

	emit := func(i int) (*FetchResult, error) {
		raw, ok := window.Posts[order[i]]
		if !ok {
			return nil, fmt.Errorf("post window is missing post %s", order[i])
		}

		var peek postPeek
		if err := json.Unmarshal(raw, &peek); err != nil {
			return nil, fmt.Errorf("malformed post %s: %w", order[i], err)
		}
		hints.PostIDBefore, hints.PostIDAfter = neighbor(i)

		if o.Direction == model.DirectionDesc {
			if (o.AfterPost != "" && peek.ID == o.AfterPost) ||
				(!o.AfterTime.IsZero() && peek.CreateAt.Before(o.AfterTime)) {
				return stopWith(FetchConditionReached), nil
			}
			if o.MaxCount > 0 && hints.ProcessedCount == o.MaxCount {
				return stopWith(FetchMaxCountReached), nil
			}
			if !o.BeforeTime.IsZero() && !peek.CreateAt.Before(o.BeforeTime) {
				o.OnSkippedPost()
				return nil, nil
			}
		} else {
			if (o.BeforePost != "" && peek.ID == o.BeforePost) ||
				(!o.BeforeTime.IsZero() && peek.CreateAt.After(o.BeforeTime)) {
				return stopWith(FetchConditionReached), nil
			}
			if o.MaxCount > 0 && hints.ProcessedCount == o.MaxCount {
				return stopWith(FetchMaxCountReached), nil
			}
			if !o.AfterTime.IsZero() && !peek.CreateAt.After(o.AfterTime) {
				o.OnSkippedPost()
				return nil, nil
			}
		}

		p, err := model.PostFromServer(raw)
		if err != nil {
			return nil, err
		}
		if err := processor(p, hints); err != nil {
			return nil, err
		}
		hints.ProcessedCount++
		return nil, nil
	}

	if o.Direction == model.DirectionDesc {
		for i := int(pageOffset); i < len(order); i++ {
			stop, err := emit(i)
			if stop != nil || err != nil {
				return stop, err
			}
		}
		return nil, nil
	}
	for i := len(order) - int(pageOffset) - 1; i >= 0; i-- {
		stop, err := emit(i)
		if stop != nil || err != nil {
			return stop, err
		}
	}
	return nil, nil
}

func stopWith(r FetchResult) *FetchResult { return &r }

// lastPageIndex is the index of the page holding the final item of a
// count-item listing.
func lastPageIndex(count, pageSize int64) int64 {
	page := count / pageSize
	if count%pageSize == 0 {
		page--
	}
	if page < 0 {
		return 0
	}
	return page
}
