// Package recovery centralizes decisions in every situation where
// downloaded data could get lost: unloadable headers, size mismatches,
// occupied backup slots, mid-download failures. The Arbiter interface
// makes the decision pluggable; the default policy never discards
// data, an interactive policy asks the user.
package recovery

import (
	"fmt"

	"github.com/mmdl/mattermost-dl/pkg/archive"
	"github.com/mmdl/mattermost-dl/pkg/model"
)

// Action is one verdict of the arbiter. Not every action is allowed at
// every decision point; callers document the subset they accept.
type Action int

const (
	// ActionBackup moves the endangered files aside and proceeds.
	ActionBackup Action = iota
	// ActionDelete discards the endangered files and proceeds.
	ActionDelete
	// ActionReuse keeps the existing content: append to a compatible
	// archive, or truncate an oversized data file to its recorded size.
	ActionReuse
	// ActionSkipDownload aborts processing of the channel.
	ActionSkipDownload
)

var actionNames = map[Action]string{
	ActionBackup:       "backup",
	ActionDelete:       "delete",
	ActionReuse:        "reuse",
	ActionSkipDownload: "skip",
}

func (a Action) String() string { return actionNames[a] }

// ParseAction maps a config string to an Action.
func ParseAction(s string) (Action, error) {
	// Older config files spell the reuse action "update".
	if s == "update" {
		return ActionReuse, nil
	}
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return ActionBackup, fmt.Errorf("unknown recovery action %q", s)
}

// MarshalText implements encoding.TextMarshaler for config output.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for config input.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ReusePolicy carries the configured reactions to a pre-existing
// archive, split by whether the planner found it appendable.
type ReusePolicy struct {
	OnCompatible   Action
	OnIncompatible Action
}

// DefaultReusePolicy appends to compatible archives and backs up
// incompatible ones.
func DefaultReusePolicy() ReusePolicy {
	return ReusePolicy{OnCompatible: ActionReuse, OnIncompatible: ActionBackup}
}

// Arbiter is consulted at each decision point where data may be lost.
type Arbiter interface {
	// OnUnloadableHeader decides the fate of a data file whose header
	// could not be loaded. Allowed: Backup, Delete.
	OnUnloadableHeader(channel model.Channel, files archive.ChannelFiles) Action

	// OnMissizedDataFile decides what to do when the data file's size
	// does not match the header's recorded byteSize. sizeKnown is false
	// when the file could not be statted at all. Reuse is valid only
	// when the actual size exceeds the recorded one (the surplus tail
	// of an interrupted append gets truncated away). Allowed: Backup,
	// Delete, Reuse, SkipDownload.
	OnMissizedDataFile(header *archive.ChannelHeader, files archive.ChannelFiles, actualSize int64, sizeKnown bool) Action

	// OnArchiveReuse decides how to treat a loadable pre-existing
	// archive. compatible reports whether the planner found it
	// appendable. Allowed: Backup, Delete, Reuse, SkipDownload.
	OnArchiveReuse(header *archive.ChannelHeader, compatible bool, policy ReusePolicy) Action

	// OnExistingBackup decides what happens to an occupied primary
	// backup slot. Backup retains it under an alternate name, Delete
	// overwrites it. Allowed: Backup, Delete, SkipDownload.
	OnExistingBackup(channel model.Channel, backup archive.ChannelFiles) Action

	// OnDownloadFailure decides whether partially downloaded content is
	// kept after a mid-stream failure. Allowed: Backup, Delete.
	OnDownloadFailure(header *archive.ChannelHeader, files archive.ChannelFiles, cause error) Action
}
