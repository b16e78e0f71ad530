package blk

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
)

// Storage is the basic interface to a device's backing storage. It is
// read-only: To enable writes, storage types should also implement io.WriterAt.
type Storage interface {
	io.ReaderAt

	// Size returns the storage size in bytes.
	Size() (int64, error)
}

// MemStorage is read-write storage backed by a byte slice.
type MemStorage struct {
	Bytes []byte
}

// FileStorage is read-write storage backed by a regular file or a block device.
type FileStorage struct {
	File *os.File
}

// HTTPStorage is read-only storage backed by an HTTP URL.
// The server must support HEAD requests and GET requests with a Range header.
type HTTPStorage struct {
	URL string

	// Client sends the requests. If Client is nil, http.DefaultClient is used.
	Client *http.Client
}

// ReadAt copies from the backing slice at off into p.
// It returns io.EOF if fewer than len(p) bytes are available.
func (ms *MemStorage) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off >= int64(len(ms.Bytes)) {
		return 0, io.EOF
	}

	n = copy(p, ms.Bytes[off:])
	if n < len(p) {
		err = io.EOF
	}

	return
}

// Size returns the size of the backing slice in bytes.
func (ms *MemStorage) Size() (int64, error) {
	return int64(len(ms.Bytes)), nil
}

// WriteAt copies p into the backing slice at off. The slice never grows;
// a write past its end is short and returns io.ErrShortWrite.
func (ms *MemStorage) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off >= int64(len(ms.Bytes)) {
		return 0, io.ErrShortWrite
	}

	n = copy(ms.Bytes[off:], p)
	if n < len(p) {
		err = io.ErrShortWrite
	}

	return
}

// ReadAt reads from the backing file.
func (fs *FileStorage) ReadAt(p []byte, off int64) (n int, err error) {
	return fs.File.ReadAt(p, off)
}

// WriteAt writes to the backing file.
func (fs *FileStorage) WriteAt(p []byte, off int64) (n int, err error) {
	return fs.File.WriteAt(p, off)
}

// Size returns the size of the backing file in bytes. Block devices report a
// zero size from stat, so their size is found by seeking to the end.
func (fs *FileStorage) Size() (int64, error) {
	info, err := fs.File.Stat()
	if err != nil {
		return 0, err
	}

	if info.Mode()&os.ModeDevice == 0 {
		return info.Size(), nil
	}

	return fs.File.Seek(0, io.SeekEnd)
}

// ReadAt gets the backing URL with a Range header generated from off and len(p).
func (hs *HTTPStorage) ReadAt(p []byte, off int64) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	req, err := http.NewRequest(http.MethodGet, hs.URL, nil)
	if err != nil {
		return 0, err
	}

	req.Header.Set("range", fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1))

	res, err := hs.client().Do(req)
	if err != nil {
		return 0, err
	}

	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	default:
		return 0, fmt.Errorf("blk: http request failed: GET %s: status %d != %d",
			hs.URL, res.StatusCode, http.StatusPartialContent)
	}

	n, err = io.ReadFull(res.Body, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}

	return
}

// Size sends a HEAD request to the backing URL and parses the Content-Length response header.
func (hs *HTTPStorage) Size() (int64, error) {
	res, err := hs.client().Head(hs.URL)
	if err != nil {
		return 0, err
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("blk: http request failed: HEAD %s: status %d != %d",
			hs.URL, res.StatusCode, http.StatusOK)
	}

	cl := res.Header.Get("content-length")
	return strconv.ParseInt(cl, 10, 64)
}

func (hs *HTTPStorage) client() *http.Client {
	if hs.Client != nil {
		return hs.Client
	}

	return http.DefaultClient
}
