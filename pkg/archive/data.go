package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mmdl/mattermost-dl/pkg/model"
)

// maxPostLine bounds a single serialized post. Messages are server-side
// limited to a few tens of KB; attachments are stored out of line.
const maxPostLine = 4 * 1024 * 1024

// DataWriter appends compact one-line JSON posts to a data file and
// tracks the resulting byte size for the header's byteSize field.
type DataWriter struct {
	f    *os.File
	w    *bufio.Writer
	size int64
}

// OpenDataWriter opens the data file for writing. With truncate the
// previous content is discarded, otherwise new posts are appended
// after it.
func OpenDataWriter(path string, truncate bool) (*DataWriter, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open archive data: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat archive data: %w", err)
	}
	return &DataWriter{f: f, w: bufio.NewWriter(f), size: info.Size()}, nil
}

// WritePost appends one post as a single compact JSON line.
func (w *DataWriter) WritePost(p model.Post) error {
	line, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode post %s: %w", p.ID, err)
	}
	line = append(line, '\n')
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("write post: %w", err)
	}
	w.size += int64(len(line))
	return nil
}

// Size is the byte size the data file will have once the writer is
// flushed.
func (w *DataWriter) Size() int64 { return w.size }

// Close flushes buffered posts and syncs the file to disk.
func (w *DataWriter) Close() error {
	flushErr := w.w.Flush()
	if err := w.f.Sync(); flushErr == nil {
		flushErr = err
	}
	if err := w.f.Close(); flushErr == nil {
		flushErr = err
	}
	return flushErr
}

// ForEachPost streams the posts of a data file in file order.
func ForEachPost(path string, fn func(model.Post) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive data: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxPostLine)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		p, err := model.PostFromArchive(scanner.Bytes())
		if err != nil {
			return fmt.Errorf("archive data %s line %d: %w", path, line, err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read archive data: %w", err)
	}
	return nil
}
