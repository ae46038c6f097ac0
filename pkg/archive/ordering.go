package archive

import (
	"encoding/json"

	"github.com/mmdl/mattermost-dl/internal/logger"
	"github.com/mmdl/mattermost-dl/pkg/model"
)

// PostOrdering describes how posts are organized in a data file.
type PostOrdering int

const (
	// OrderingUnsorted makes no guarantees; the file may even contain
	// duplicates.
	OrderingUnsorted PostOrdering = iota
	// OrderingAscending is sorted from oldest to newest.
	OrderingAscending
	// OrderingDescending is sorted from newest to oldest.
	OrderingDescending
	// OrderingAscendingContinuous is sorted from oldest to newest with
	// no posts missing inside the covered interval.
	OrderingAscendingContinuous
	// OrderingDescendingContinuous is sorted from newest to oldest with
	// no posts missing inside the covered interval.
	OrderingDescendingContinuous
)

var orderingNames = map[PostOrdering]string{
	OrderingUnsorted:             "Unsorted",
	OrderingAscending:            "Ascending",
	OrderingDescending:           "Descending",
	OrderingAscendingContinuous:  "AscendingContinuous",
	OrderingDescendingContinuous: "DescendingContinuous",
}

// PostOrderingFromArchive maps a stored name. Unknown names degrade to
// Unsorted with a warning so old archives remain loadable.
func PostOrderingFromArchive(name string) PostOrdering {
	for o, known := range orderingNames {
		if known == name {
			return o
		}
	}
	logger.Warn("Unknown channel ordering type, assumed unsorted", "ordering", name)
	return OrderingUnsorted
}

// OrderingFor returns the continuous ordering matching a download
// direction. The continuous variants are the only kinds new downloads
// write.
func OrderingFor(direction model.OrderDirection) PostOrdering {
	if direction == model.DirectionDesc {
		return OrderingDescendingContinuous
	}
	return OrderingAscendingContinuous
}

// IsAscending reports whether posts run oldest to newest.
func (o PostOrdering) IsAscending() bool {
	return o == OrderingAscending || o == OrderingAscendingContinuous
}

// IsDescending reports whether posts run newest to oldest.
func (o PostOrdering) IsDescending() bool {
	return o == OrderingDescending || o == OrderingDescendingContinuous
}

func (o PostOrdering) String() string { return orderingNames[o] }

func (o PostOrdering) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderingNames[o])
}
