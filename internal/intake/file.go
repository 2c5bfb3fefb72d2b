package intake

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
)

// File is anything a user can hand over as an image: a multipart part, a
// local file, or bytes already in memory.
type File interface {
	Name() string
	ContentType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type headerFile struct {
	fh *multipart.FileHeader
}

// FromFileHeader adapts a multipart upload. The part's own Content-Type wins,
// the file extension is the fallback.
func FromFileHeader(fh *multipart.FileHeader) File {
	return headerFile{fh: fh}
}

func (h headerFile) Name() string { return h.fh.Filename }
func (h headerFile) Size() int64  { return h.fh.Size }

func (h headerFile) ContentType() string {
	if ct := h.fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return mime.TypeByExtension(filepath.Ext(h.fh.Filename))
}

func (h headerFile) Open() (io.ReadCloser, error) {
	return h.fh.Open()
}

type bytesFile struct {
	name, contentType string
	data              []byte
}

func FromBytes(name, contentType string, data []byte) File {
	return bytesFile{name: name, contentType: contentType, data: data}
}

func (b bytesFile) Name() string        { return b.name }
func (b bytesFile) ContentType() string { return b.contentType }
func (b bytesFile) Size() int64         { return int64(len(b.data)) }

func (b bytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

type pathFile struct {
	path string
	size int64
}

// FromPath adapts a file on disk. The content type comes from the extension.
func FromPath(path string) (File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return pathFile{path: path, size: fi.Size()}, nil
}

func (p pathFile) Name() string        { return filepath.Base(p.path) }
func (p pathFile) ContentType() string { return mime.TypeByExtension(filepath.Ext(p.path)) }
func (p pathFile) Size() int64         { return p.size }

func (p pathFile) Open() (io.ReadCloser, error) {
	return os.Open(p.path)
}
