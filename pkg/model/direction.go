package model

import "fmt"

// OrderDirection selects the time direction a channel's history is
// traversed and stored in.
type OrderDirection int

const (
	// DirectionAsc walks from the oldest post towards the newest.
	DirectionAsc OrderDirection = iota
	// DirectionDesc walks from the newest post towards the oldest.
	DirectionDesc
)

func (d OrderDirection) String() string {
	if d == DirectionDesc {
		return "desc"
	}
	return "asc"
}

// MarshalText implements encoding.TextMarshaler for config output.
func (d OrderDirection) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts "asc" and "desc" (case-insensitive forms used
// in config files).
func (d *OrderDirection) UnmarshalText(text []byte) error {
	switch string(text) {
	case "asc", "Asc", "ascending":
		*d = DirectionAsc
	case "desc", "Desc", "descending":
		*d = DirectionDesc
	default:
		return fmt.Errorf("unknown time direction %q", string(text))
	}
	return nil
}
