package mmclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmdl/mattermost-dl/pkg/model"
)

// channelFixture serves the paginated posts endpoint over a fixed
// history: ids oldest first, post i created at time 100*(i+1).
type channelFixture struct {
	ids      []model.Id
	times    map[model.Id]model.Time
	requests int
}

func newChannelFixture(n int) *channelFixture {
	f := &channelFixture{times: map[model.Id]model.Time{}}
	for i := 1; i <= n; i++ {
		id := model.Id(fmt.Sprintf("p%02d", i))
		f.ids = append(f.ids, id)
		f.times[id] = model.Time(100 * i)
	}
	return f
}

func (f *channelFixture) index(t *testing.T, id model.Id) int {
	for i, candidate := range f.ids {
		if candidate == id {
			return i
		}
	}
	t.Fatalf("anchor %s is not part of the fixture", id)
	return -1
}

// handler mimics the server's windowing: pages run newest first, a
// before anchor restricts to strictly older posts, an after anchor
// restricts to strictly newer ones and pages from the oldest side so
// page zero sits next to the anchor.
func (f *channelFixture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.requests++
		q := r.URL.Query()
		perPage := 60
		if s := q.Get("per_page"); s != "" {
			var err error
			perPage, err = strconv.Atoi(s)
			require.NoError(t, err)
		}
		page := 0
		if s := q.Get("page"); s != "" {
			var err error
			page, err = strconv.Atoi(s)
			require.NoError(t, err)
		}

		asc := f.ids
		var order []model.Id
		if after := q.Get("after"); after != "" {
			asc = asc[f.index(t, model.Id(after))+1:]
			start, end := clampWindow(page*perPage, perPage, len(asc))
			for i := end - 1; i >= start; i-- {
				order = append(order, asc[i])
			}
		} else {
			if before := q.Get("before"); before != "" {
				asc = asc[:f.index(t, model.Id(before))]
			}
			start, end := clampWindow(page*perPage, perPage, len(asc))
			for i := len(asc) - 1 - start; i > len(asc)-1-end; i-- {
				order = append(order, asc[i])
			}
		}

		reply := map[string]any{
			"order":        order,
			"posts":        map[model.Id]any{},
			"prev_post_id": "",
			"next_post_id": "",
		}
		if len(order) > 0 {
			posts := map[model.Id]any{}
			for _, id := range order {
				posts[id] = map[string]any{
					"id":        id,
					"create_at": f.times[id],
					"user_id":   "u1",
					"message":   "msg " + string(id),
				}
			}
			reply["posts"] = posts
			if i := f.index(t, order[len(order)-1]); i > 0 {
				reply["prev_post_id"] = f.ids[i-1]
			}
			if i := f.index(t, order[0]); i < len(f.ids)-1 {
				reply["next_post_id"] = f.ids[i+1]
			}
		}
		require.NoError(t, json.NewEncoder(w).Encode(reply))
	}
}

func clampWindow(start, size, length int) (int, int) {
	if start > length {
		start = length
	}
	end := start + size
	if end > length {
		end = length
	}
	return start, end
}

type seenPost struct {
	id    model.Id
	hints PostHints
}

func collectPosts(t *testing.T, fixture *channelFixture, channel *model.Channel, opts FetchOptions) ([]seenPost, FetchResult) {
	srv := httptest.NewServer(fixture.handler(t))
	defer srv.Close()

	var seen []seenPost
	result, err := New(srv.URL).ProcessPosts(channel, opts, func(p model.Post, hints *PostHints) error {
		seen = append(seen, seenPost{id: p.ID, hints: *hints})
		return nil
	})
	require.NoError(t, err)
	return seen, result
}

func seenIDs(seen []seenPost) []model.Id {
	out := make([]model.Id, len(seen))
	for i, s := range seen {
		out[i] = s.id
	}
	return out
}

func TestProcessPostsDescendingFullWalk(t *testing.T) {
	fixture := newChannelFixture(10)
	channel := &model.Channel{ID: "ch1", MessageCount: 10}

	seen, result := collectPosts(t, fixture, channel, FetchOptions{
		Direction:  model.DirectionDesc,
		BufferSize: 4,
	})

	assert.Equal(t, FetchNoMorePosts, result)
	require.Len(t, seen, 10)
	assert.Equal(t, []model.Id{"p10", "p09", "p08", "p07", "p06", "p05", "p04", "p03", "p02", "p01"}, seenIDs(seen))

	newest := seen[0]
	assert.Equal(t, model.Id("p09"), newest.hints.PostIDBefore)
	assert.Equal(t, model.Id(""), newest.hints.PostIDAfter)
	oldest := seen[9]
	assert.Equal(t, model.Id(""), oldest.hints.PostIDBefore)
	assert.Equal(t, model.Id("p02"), oldest.hints.PostIDAfter)
	assert.Equal(t, int64(9), oldest.hints.ProcessedCount)
}

func TestProcessPostsAscendingUnanchored(t *testing.T) {
	fixture := newChannelFixture(10)
	// Message counts over-report after deletions; the walk probes for
	// the true oldest page.
	channel := &model.Channel{ID: "ch1", MessageCount: 13}

	seen, result := collectPosts(t, fixture, channel, FetchOptions{
		Direction:  model.DirectionAsc,
		BufferSize: 4,
	})

	assert.Equal(t, FetchNoMorePosts, result)
	require.Len(t, seen, 10)
	assert.Equal(t, []model.Id{"p01", "p02", "p03", "p04", "p05", "p06", "p07", "p08", "p09", "p10"}, seenIDs(seen))

	first := seen[0]
	assert.Equal(t, model.Id(""), first.hints.PostIDBefore)
	assert.Equal(t, model.Id("p02"), first.hints.PostIDAfter)
	last := seen[9]
	assert.Equal(t, model.Id("p09"), last.hints.PostIDBefore)
	assert.Equal(t, model.Id(""), last.hints.PostIDAfter)
}

func TestProcessPostsAscendingOffsetResume(t *testing.T) {
	cases := []struct {
		name   string
		offset int64
		want   []model.Id
	}{
		{"SkipExactlyLastPage", 2, []model.Id{"p03", "p04", "p05", "p06", "p07", "p08", "p09", "p10"}},
		{"SkipIntoMiddlePage", 5, []model.Id{"p06", "p07", "p08", "p09", "p10"}},
		{"SkipWithinLastPage", 1, []model.Id{"p02", "p03", "p04", "p05", "p06", "p07", "p08", "p09", "p10"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fixture := newChannelFixture(10)
			channel := &model.Channel{ID: "ch1", MessageCount: 10}

			seen, result := collectPosts(t, fixture, channel, FetchOptions{
				Direction:  model.DirectionAsc,
				BufferSize: 4,
				Offset:     tc.offset,
			})

			assert.Equal(t, FetchNoMorePosts, result)
			assert.Equal(t, tc.want, seenIDs(seen))
		})
	}
}

func TestProcessPostsAscendingOffsetBeyondEnd(t *testing.T) {
	// An offset at or past the channel's true size means every post is
	// already archived; nothing must be delivered again.
	for _, offset := range []int64{3, 5} {
		t.Run(fmt.Sprintf("Offset%d", offset), func(t *testing.T) {
			fixture := newChannelFixture(3)
			channel := &model.Channel{ID: "ch1", MessageCount: 3}

			srv := httptest.NewServer(fixture.handler(t))
			defer srv.Close()

			result, err := New(srv.URL).ProcessPosts(channel, FetchOptions{
				Direction:  model.DirectionAsc,
				BufferSize: 4,
				Offset:     offset,
			}, func(p model.Post, hints *PostHints) error {
				t.Fatalf("post %s delivered past the end of the channel", p.ID)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, FetchNoMorePosts, result)
		})
	}
}

func TestProcessPostsAnchoredAppend(t *testing.T) {
	fixture := newChannelFixture(10)
	channel := &model.Channel{ID: "ch1", MessageCount: 10}

	seen, result := collectPosts(t, fixture, channel, FetchOptions{
		Direction:  model.DirectionAsc,
		AfterPost:  "p06",
		BufferSize: 4,
	})

	assert.Equal(t, FetchNoMorePosts, result)
	assert.Equal(t, []model.Id{"p07", "p08", "p09", "p10"}, seenIDs(seen))
}

func TestProcessPostsDescendingBeforeAnchor(t *testing.T) {
	fixture := newChannelFixture(10)
	channel := &model.Channel{ID: "ch1", MessageCount: 10}

	seen, result := collectPosts(t, fixture, channel, FetchOptions{
		Direction:  model.DirectionDesc,
		BeforePost: "p05",
		BufferSize: 4,
	})

	assert.Equal(t, FetchNoMorePosts, result)
	assert.Equal(t, []model.Id{"p04", "p03", "p02", "p01"}, seenIDs(seen))
}

func TestProcessPostsMaxCount(t *testing.T) {
	fixture := newChannelFixture(10)
	channel := &model.Channel{ID: "ch1", MessageCount: 10}

	seen, result := collectPosts(t, fixture, channel, FetchOptions{
		Direction:  model.DirectionDesc,
		MaxCount:   5,
		BufferSize: 4,
	})

	assert.Equal(t, FetchMaxCountReached, result)
	assert.Equal(t, []model.Id{"p10", "p09", "p08", "p07", "p06"}, seenIDs(seen))
}

func TestProcessPostsTimeRange(t *testing.T) {
	t.Run("AscendingWindow", func(t *testing.T) {
		fixture := newChannelFixture(10)
		channel := &model.Channel{ID: "ch1", MessageCount: 10}

		var skipped int
		srv := httptest.NewServer(fixture.handler(t))
		defer srv.Close()

		var seen []model.Id
		result, err := New(srv.URL).ProcessPosts(channel, FetchOptions{
			Direction:     model.DirectionAsc,
			AfterTime:     250,
			BeforeTime:    750,
			BufferSize:    4,
			OnSkippedPost: func() { skipped++ },
		}, func(p model.Post, hints *PostHints) error {
			seen = append(seen, p.ID)
			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, FetchConditionReached, result)
		assert.Equal(t, []model.Id{"p03", "p04", "p05", "p06", "p07"}, seen)
		assert.Equal(t, 2, skipped)
	})

	t.Run("DescendingStopsAtLowerBound", func(t *testing.T) {
		fixture := newChannelFixture(10)
		channel := &model.Channel{ID: "ch1", MessageCount: 10}

		seen, result := collectPosts(t, fixture, channel, FetchOptions{
			Direction:  model.DirectionDesc,
			AfterTime:  650,
			BufferSize: 4,
		})

		assert.Equal(t, FetchConditionReached, result)
		assert.Equal(t, []model.Id{"p10", "p09", "p08", "p07"}, seenIDs(seen))
	})

	t.Run("DescendingSkipsAboveUpperBound", func(t *testing.T) {
		fixture := newChannelFixture(10)
		channel := &model.Channel{ID: "ch1", MessageCount: 10}

		var skipped int
		srv := httptest.NewServer(fixture.handler(t))
		defer srv.Close()

		var seen []model.Id
		result, err := New(srv.URL).ProcessPosts(channel, FetchOptions{
			Direction:     model.DirectionDesc,
			BeforeTime:    950,
			BufferSize:    4,
			OnSkippedPost: func() { skipped++ },
		}, func(p model.Post, hints *PostHints) error {
			seen = append(seen, p.ID)
			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, FetchNoMorePosts, result)
		assert.Equal(t, 1, skipped)
		assert.Len(t, seen, 9)
		assert.Equal(t, model.Id("p09"), seen[0])
	})
}

func TestProcessPostsNothingRequested(t *testing.T) {
	fixture := newChannelFixture(10)
	channel := &model.Channel{ID: "ch1", MessageCount: 10}

	srv := httptest.NewServer(fixture.handler(t))
	defer srv.Close()

	result, err := New(srv.URL).ProcessPosts(channel, FetchOptions{
		Direction:  model.DirectionAsc,
		AfterTime:  500,
		BeforeTime: 500,
	}, func(model.Post, *PostHints) error {
		t.Fatal("no post should be delivered for an empty range")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, FetchNothingRequested, result)
	assert.Zero(t, fixture.requests)
}

func TestProcessPostsEmptyChannel(t *testing.T) {
	fixture := newChannelFixture(0)
	channel := &model.Channel{ID: "ch1", MessageCount: 0}

	seen, result := collectPosts(t, fixture, channel, FetchOptions{
		Direction:  model.DirectionDesc,
		BufferSize: 4,
	})
	assert.Equal(t, FetchNoMorePosts, result)
	assert.Empty(t, seen)
}
