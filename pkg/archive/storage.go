// Package archive implements the on-disk channel archive format:
// a header file (<stem>.meta.json, one JSON object) describing the
// channel and its post storage, and a data file (<stem>.data.json,
// newline-delimited compact JSON, one post per line).
package archive

import (
	"encoding/json"
	"fmt"

	"github.com/mmdl/mattermost-dl/pkg/model"
)

// PostStorage describes the interval of channel history held in a data
// file. When Count is zero no other field holds a meaningful value.
type PostStorage struct {
	Count        int64
	Organization PostOrdering
	// ByteSize is the exact size of the data file when the header was
	// last committed. Any mismatch on load is a recovery trigger.
	ByteSize int64

	// BeginTime is the creation time of the first stored post, or an
	// earlier time point known to have no posts up to the first one.
	BeginTime   model.Time
	FirstPostID model.Id
	// PostIDBeforeFirst is empty when the first stored post is also the
	// channel's first in the storage direction; otherwise it names a
	// post known to lie just before it.
	PostIDBeforeFirst model.Id

	// EndTime is the creation time of the last stored post, or a later
	// time point known to have no posts after it.
	EndTime    model.Time
	LastPostID model.Id
	// PostIDAfterLast is empty when the last stored post is also the
	// channel's last; otherwise it names a post known to lie just after.
	PostIDAfterLast model.Id
}

// NewPostStorage returns an empty storage for a fresh download in the
// given direction. Seed times bound the interval even when the very
// first stored post falls strictly inside it.
func NewPostStorage(direction model.OrderDirection, seedBegin model.Time) PostStorage {
	return PostStorage{
		Organization: OrderingFor(direction),
		BeginTime:    seedBegin,
	}
}

// AddSortedPost accounts for one more post fetched in the storage
// direction. The caller guarantees the post is strictly further in
// that direction than any previously added one. before and after are
// the ids of the post's immediate neighbors in channel order, empty
// when no such neighbor exists.
func (s *PostStorage) AddSortedPost(p model.Post, before, after model.Id, direction model.OrderDirection) {
	if s.Count == 0 {
		s.FirstPostID = p.ID
		if s.BeginTime.IsZero() {
			s.BeginTime = p.CreateTime
		}
		if direction == model.DirectionAsc {
			s.PostIDBeforeFirst = before
		} else {
			s.PostIDBeforeFirst = after
		}
	}
	s.LastPostID = p.ID
	s.EndTime = p.CreateTime
	if direction == model.DirectionAsc {
		s.PostIDAfterLast = after
	} else {
		s.PostIDAfterLast = before
	}
	s.Count++
}

// Extend merges a freshly appended interval into this one. The two
// must share an organization and be adjacent: the existing last post
// is the fresh interval's known predecessor. Extending by an empty
// interval is a no-op.
func (s *PostStorage) Extend(other PostStorage) error {
	if other.Organization != s.Organization {
		return fmt.Errorf("cannot extend %s storage with %s posts", s.Organization, other.Organization)
	}
	if other.Count == 0 {
		return nil
	}
	if s.LastPostID != other.PostIDBeforeFirst {
		return fmt.Errorf("extension does not continue the archive: last stored post is %s, new posts follow %s",
			s.LastPostID, other.PostIDBeforeFirst)
	}
	s.Count += other.Count
	s.ByteSize = other.ByteSize
	s.LastPostID = other.LastPostID
	s.EndTime = other.EndTime
	s.PostIDAfterLast = other.PostIDAfterLast
	return nil
}

// PostStorageFromArchive decodes the header's storage object.
func PostStorageFromArchive(data []byte) (PostStorage, error) {
	var raw struct {
		Count             int64      `json:"count"`
		Organization      string     `json:"organization"`
		ByteSize          int64      `json:"byteSize"`
		BeginTime         model.Time `json:"beginTime"`
		FirstPostID       model.Id   `json:"firstPostId"`
		PostIDBeforeFirst *model.Id  `json:"postIdBeforeFirst"`
		EndTime           model.Time `json:"endTime"`
		LastPostID        model.Id   `json:"lastPostId"`
		PostIDAfterLast   *model.Id  `json:"postIdAfterLast"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return PostStorage{}, fmt.Errorf("post storage: %w", err)
	}
	s := PostStorage{
		Count:        raw.Count,
		Organization: PostOrderingFromArchive(raw.Organization),
		ByteSize:     raw.ByteSize,
		BeginTime:    raw.BeginTime,
		FirstPostID:  raw.FirstPostID,
		EndTime:      raw.EndTime,
		LastPostID:   raw.LastPostID,
	}
	if raw.PostIDBeforeFirst != nil {
		s.PostIDBeforeFirst = *raw.PostIDBeforeFirst
	}
	if raw.PostIDAfterLast != nil {
		s.PostIDAfterLast = *raw.PostIDAfterLast
	}
	return s, nil
}

// ToArchive renders the header's storage object. The boundary slots
// are omitted entirely when the archive touches the channel's edge.
func (s PostStorage) ToArchive() map[string]any {
	o := map[string]any{
		"count":        s.Count,
		"organization": s.Organization,
		"byteSize":     s.ByteSize,
		"beginTime":    s.BeginTime,
		"firstPostId":  s.FirstPostID,
		"endTime":      s.EndTime,
		"lastPostId":   s.LastPostID,
	}
	if s.PostIDBeforeFirst != "" {
		o["postIdBeforeFirst"] = s.PostIDBeforeFirst
	}
	if s.PostIDAfterLast != "" {
		o["postIdAfterLast"] = s.PostIDAfterLast
	}
	return o
}

func (s PostStorage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToArchive())
}
