package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	headerSuffix = ".meta.json"
	dataSuffix   = ".data.json"
	filesSuffix  = "--files"
	backupSuffix = "--backup"
)

// DirectStem names the archive of a direct conversation between the
// local user and one other user.
func DirectStem(localUser, otherUser string) string {
	return "d." + localUser + "--" + otherUser
}

// GroupStem names the archive of a group conversation by its member
// usernames, sorted and joined with dashes.
func GroupStem(memberNames []string) string {
	sorted := make([]string, len(memberNames))
	copy(sorted, memberNames)
	sort.Strings(sorted)
	return "g." + strings.Join(sorted, "-")
}

// TeamChannelStem names the archive of a public or private team
// channel. private selects the "p." prefix.
func TeamChannelStem(teamInternalName, channelInternalName string, private bool) string {
	prefix := "o."
	if private {
		prefix = "p."
	}
	return prefix + teamInternalName + "--" + channelInternalName
}

// ChannelFiles locates the file pair of one channel archive inside the
// output directory.
type ChannelFiles struct {
	Dir  string
	Stem string
}

func NewChannelFiles(dir, stem string) ChannelFiles {
	return ChannelFiles{Dir: dir, Stem: stem}
}

func (f ChannelFiles) HeaderPath() string {
	return filepath.Join(f.Dir, f.Stem+headerSuffix)
}

func (f ChannelFiles) DataPath() string {
	return filepath.Join(f.Dir, f.Stem+dataSuffix)
}

// AttachmentsDir is the directory downloaded file attachments of this
// channel go into.
func (f ChannelFiles) AttachmentsDir() string {
	return filepath.Join(f.Dir, f.Stem+filesSuffix)
}

// Backup is the primary rollback slot for this archive.
func (f ChannelFiles) Backup() ChannelFiles {
	return ChannelFiles{Dir: f.Dir, Stem: f.Stem + backupSuffix}
}

// AlternateBackup is the n-th fallback slot, used when the primary
// backup is occupied and the arbiter decides to retain it.
func (f ChannelFiles) AlternateBackup(n int) ChannelFiles {
	return ChannelFiles{Dir: f.Dir, Stem: fmt.Sprintf("%s%s~%d", f.Stem, backupSuffix, n)}
}

// NextFreeAlternate returns the lowest-numbered unoccupied fallback
// slot.
func (f ChannelFiles) NextFreeAlternate() ChannelFiles {
	for n := 1; ; n++ {
		alt := f.AlternateBackup(n)
		if !alt.Exists() {
			return alt
		}
	}
}

// Exists reports whether either file of the pair is present.
func (f ChannelFiles) Exists() bool {
	if _, err := os.Stat(f.HeaderPath()); err == nil {
		return true
	}
	if _, err := os.Stat(f.DataPath()); err == nil {
		return true
	}
	return false
}

// RenameTo moves both files of the pair onto another stem. A missing
// data file is tolerated; a missing header is too, so half-written
// archives can still be moved aside.
func (f ChannelFiles) RenameTo(dst ChannelFiles) error {
	if err := renameIfExists(f.HeaderPath(), dst.HeaderPath()); err != nil {
		return err
	}
	return renameIfExists(f.DataPath(), dst.DataPath())
}

// RenameHeaderTo moves only the header file onto another stem. Appends
// back up just the header: the data file stays in place and rollback
// truncates it to the recorded byteSize.
func (f ChannelFiles) RenameHeaderTo(dst ChannelFiles) error {
	return renameIfExists(f.HeaderPath(), dst.HeaderPath())
}

// RemoveHeader deletes only the header file, ignoring an absent one.
func (f ChannelFiles) RemoveHeader() error {
	return removeIfExists(f.HeaderPath())
}

// Remove deletes both files of the pair, ignoring absent ones.
func (f ChannelFiles) Remove() error {
	if err := removeIfExists(f.HeaderPath()); err != nil {
		return err
	}
	return removeIfExists(f.DataPath())
}

// DataSize returns the current size of the data file, or 0 with
// ok=false when it cannot be statted.
func (f ChannelFiles) DataSize() (size int64, ok bool) {
	info, err := os.Stat(f.DataPath())
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// TruncateData cuts the data file down to size. Used to discard the
// tail of an interrupted append.
func (f ChannelFiles) TruncateData(size int64) error {
	if err := os.Truncate(f.DataPath(), size); err != nil {
		return fmt.Errorf("truncate archive data: %w", err)
	}
	return nil
}

// WriteHeader commits the header atomically: the JSON is written to a
// uniquely named temporary file in the same directory and renamed into
// place, so a crash never leaves a half-written header behind.
func (f ChannelFiles) WriteHeader(h *ChannelHeader) error {
	data, err := h.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode channel header: %w", err)
	}
	data = append(data, '\n')

	tmp := filepath.Join(f.Dir, f.Stem+".meta."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write channel header: %w", err)
	}
	if err := os.Rename(tmp, f.HeaderPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit channel header: %w", err)
	}
	return nil
}

// LoadHeader reads this archive's header.
func (f ChannelFiles) LoadHeader() (*ChannelHeader, error) {
	return LoadHeader(f.HeaderPath())
}

// ListArchives finds every channel archive in dir by its header file,
// backup slots included, sorted by stem.
func ListArchives(dir string) ([]ChannelFiles, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read archive directory: %w", err)
	}
	var out []ChannelFiles
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, headerSuffix) {
			continue
		}
		out = append(out, NewChannelFiles(dir, strings.TrimSuffix(name, headerSuffix)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stem < out[j].Stem })
	return out, nil
}

func renameIfExists(src, dst string) error {
	if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename %s: %w", src, err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
