// Package planner decides what a channel download should fetch, given
// the requested constraints and whatever a previous run already
// archived. It is pure: the only I/O it may cause is resolving an
// anchor post id to a time through the PostResolver, and only when no
// known archive boundary id short-circuits the question.
package planner

import (
	"github.com/mmdl/mattermost-dl/pkg/archive"
	"github.com/mmdl/mattermost-dl/pkg/model"
)

// Options are the per-channel download constraints relevant to
// planning. Zero times mean unbounded; empty ids mean no anchor.
type Options struct {
	Direction  model.OrderDirection
	AfterID    model.Id
	BeforeID   model.Id
	AfterTime  model.Time
	BeforeTime model.Time

	// PostLimit caps the total number of archived posts, PostSessionLimit
	// the number fetched in one run. -1 means unlimited, 0 means nothing.
	PostLimit        int64
	PostSessionLimit int64

	// Redownload discards the previous archive unconditionally.
	Redownload bool
}

// FetchParams is the concrete instruction for the post fetcher.
type FetchParams struct {
	Direction  model.OrderDirection
	MaxCount   int64 // 0 = unlimited
	AfterPost  model.Id
	BeforePost model.Id
	AfterTime  model.Time
	BeforeTime model.Time
}

// Plan is the planner's verdict for one channel.
type Plan struct {
	// FromScratch rewrites the data file; the previous archive pair is
	// backed up or deleted first. When false, the fetch appends.
	FromScratch bool
	Params      FetchParams
}

// PostResolver resolves a post id to its creation time with a
// single-post fetch.
type PostResolver interface {
	PostTime(id model.Id) (model.Time, error)
}

// Build computes the fetch plan for one channel. storage is the
// previous archive's post storage, nil when there is none.
// lastMessageTime is the server's last-activity time for the channel,
// zero when unknown. A nil plan with nil error means the archive
// already holds everything requested.
func Build(opts Options, storage *archive.PostStorage, lastMessageTime model.Time, resolver PostResolver) (*Plan, error) {
	if opts.PostLimit == 0 || opts.PostSessionLimit == 0 {
		return nil, nil
	}

	params := FetchParams{Direction: opts.Direction}
	if opts.PostLimit > 0 || opts.PostSessionLimit > 0 {
		switch {
		case opts.PostLimit == -1:
			params.MaxCount = opts.PostSessionLimit
		case opts.PostSessionLimit == -1:
			params.MaxCount = opts.PostLimit
		default:
			params.MaxCount = minCount(opts.PostLimit, opts.PostSessionLimit)
		}
	}

	fromScratch := opts.Redownload
	effective := opts

	if storage != nil && storage.Count > 0 && !fromScratch {
		if opts.PostLimit > 0 {
			if storage.Count >= opts.PostLimit {
				return nil, nil
			}
			params.MaxCount = minCount(params.MaxCount, opts.PostLimit-storage.Count)
		}

		if archive.OrderingFor(opts.Direction) != storage.Organization {
			fromScratch = true
		} else {
			reduced, trim, err := reduceConstraints(opts, *storage, resolver)
			if err != nil {
				return nil, err
			}
			switch {
			case trim:
				fromScratch = true
			case reduced == nil:
				return nil, nil
			default:
				effective = *reduced
			}
		}

		// Channel quiet since the last run and the archive already
		// reaches the channel's end: there is nothing new.
		if !fromScratch && !lastMessageTime.IsZero() &&
			storage.Organization.IsAscending() && storage.PostIDAfterLast == "" &&
			!storage.EndTime.Before(lastMessageTime) {
			return nil, nil
		}
	}

	if !effective.AfterTime.IsZero() && !effective.BeforeTime.IsZero() &&
		!effective.AfterTime.Before(effective.BeforeTime) {
		return nil, nil
	}
	params.AfterPost = effective.AfterID
	params.BeforePost = effective.BeforeID
	params.AfterTime = effective.AfterTime
	params.BeforeTime = effective.BeforeTime

	return &Plan{
		FromScratch: fromScratch || storage == nil || storage.Count == 0,
		Params:      params,
	}, nil
}

// reduceConstraints narrows the requested interval by what the archive
// already covers. It returns the narrowed options for an append, nil
// options when nothing remains to fetch, or trim=true when the archive
// cannot serve as a prefix of the request and must be rebuilt.
func reduceConstraints(opts Options, s archive.PostStorage, resolver PostResolver) (*Options, bool, error) {
	if opts.Direction == model.DirectionAsc {
		return reduceAscending(opts, s, resolver)
	}
	return reduceDescending(opts, s, resolver)
}

func reduceAscending(opts Options, s archive.PostStorage, resolver PostResolver) (*Options, bool, error) {
	o := opts

	if !o.AfterTime.IsZero() {
		// Requested start lies before the archive (which does not reach
		// channel origin) or past its end: the intervals do not chain.
		if (o.AfterTime.Before(s.BeginTime) && s.PostIDBeforeFirst != "") || o.AfterTime.After(s.EndTime) {
			return nil, true, nil
		}
	}

	switch {
	case o.AfterID == "":
		o.AfterID = s.LastPostID
		o.AfterTime = laterOf(s.EndTime, o.AfterTime)
	case o.AfterID == s.FirstPostID:
		o.AfterID = s.LastPostID
		o.AfterTime = laterOf(s.EndTime, o.AfterTime)
	case o.AfterID == s.LastPostID:
		o.AfterTime = laterOf(s.EndTime, o.AfterTime)
	default:
		t, err := resolver.PostTime(o.AfterID)
		if err != nil {
			return nil, false, err
		}
		o.AfterTime = laterOf(t, o.AfterTime)
	}

	if o.BeforeID != "" {
		if o.BeforeID == s.FirstPostID || o.BeforeID == s.LastPostID {
			return nil, false, nil
		}
		t, err := resolver.PostTime(o.BeforeID)
		if err != nil {
			return nil, false, err
		}
		o.BeforeTime = earlierOf(t, o.BeforeTime)
	}
	if !o.BeforeTime.IsZero() {
		switch {
		case o.BeforeTime.Before(s.BeginTime):
			if s.PostIDBeforeFirst == "" {
				// The archive starts at channel origin, so there is
				// nothing before it to fetch.
				return nil, false, nil
			}
			return nil, true, nil
		case !o.BeforeTime.After(s.EndTime):
			// Requested end falls inside the archived interval.
			return nil, false, nil
		}
	}
	return &o, false, nil
}

// reduceDescending mirrors reduceAscending: the archive's beginTime is
// its newest stored post and endTime its oldest.
func reduceDescending(opts Options, s archive.PostStorage, resolver PostResolver) (*Options, bool, error) {
	o := opts

	if !o.BeforeTime.IsZero() {
		if (o.BeforeTime.After(s.BeginTime) && s.PostIDBeforeFirst != "") || o.BeforeTime.Before(s.EndTime) {
			return nil, true, nil
		}
	}

	switch {
	case o.BeforeID == "":
		o.BeforeID = s.LastPostID
		o.BeforeTime = earlierOf(s.EndTime, o.BeforeTime)
	case o.BeforeID == s.FirstPostID:
		o.BeforeID = s.LastPostID
		o.BeforeTime = earlierOf(s.EndTime, o.BeforeTime)
	case o.BeforeID == s.LastPostID:
		o.BeforeTime = earlierOf(s.EndTime, o.BeforeTime)
	default:
		t, err := resolver.PostTime(o.BeforeID)
		if err != nil {
			return nil, false, err
		}
		o.BeforeTime = earlierOf(t, o.BeforeTime)
	}

	if o.AfterID != "" {
		if o.AfterID == s.FirstPostID || o.AfterID == s.LastPostID {
			return nil, false, nil
		}
		t, err := resolver.PostTime(o.AfterID)
		if err != nil {
			return nil, false, err
		}
		o.AfterTime = laterOf(t, o.AfterTime)
	}
	if !o.AfterTime.IsZero() {
		switch {
		case o.AfterTime.After(s.BeginTime):
			if s.PostIDBeforeFirst == "" {
				return nil, false, nil
			}
			return nil, true, nil
		case !o.AfterTime.Before(s.EndTime):
			return nil, false, nil
		}
	}
	return &o, false, nil
}

// laterOf treats zero times as unset.
func laterOf(a, b model.Time) model.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || b.Before(a) {
		return a
	}
	return b
}

// earlierOf treats zero times as unset.
func earlierOf(a, b model.Time) model.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.Before(b) {
		return a
	}
	return b
}

func minCount(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
