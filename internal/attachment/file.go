package attachment

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Source opens the payload of a file. It may be called more than once (retries).
type Source interface {
	Open() (io.ReadCloser, error)
}

// PathSource reads from the local filesystem.
type PathSource string

func (p PathSource) Open() (io.ReadCloser, error) {
	return os.Open(string(p))
}

// BytesSource serves an in-memory buffer.
type BytesSource []byte

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// File is an outgoing attachment selected by the user.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Source   Source
}

// FromPath describes the file at path. The MIME type is sniffed from content,
// not trusted from the extension.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, &Rejection{File: filepath.Base(path), Reason: Unreadable, Detail: err.Error()}
	}
	if info.IsDir() {
		return File{}, &Rejection{File: filepath.Base(path), Reason: Unreadable, Detail: "is a directory"}
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, &Rejection{File: filepath.Base(path), Reason: Unreadable, Detail: fmt.Sprintf("detect type: %v", err)}
	}
	return File{
		Name:     filepath.Base(path),
		MimeType: normalizeType(mt.String()),
		Size:     info.Size(),
		Source:   PathSource(path),
	}, nil
}

// FromBytes wraps an in-memory payload, sniffing its MIME type.
func FromBytes(name string, data []byte) File {
	return File{
		Name:     name,
		MimeType: normalizeType(mimetype.Detect(data).String()),
		Size:     int64(len(data)),
		Source:   BytesSource(data),
	}
}

// FromPaths resolves a selection of paths. Unreadable paths become rejections
// alongside whatever Screen later refuses.
func FromPaths(paths []string) ([]File, []*Rejection) {
	var files []File
	var rejected []*Rejection
	for _, p := range paths {
		f, err := FromPath(p)
		if err != nil {
			rejected = append(rejected, err.(*Rejection))
			continue
		}
		files = append(files, f)
	}
	return files, rejected
}
