package composer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrAttachmentTooLarge is wrapped by AttachmentReadError when the payload
// exceeds the configured limit.
var ErrAttachmentTooLarge = errors.New("attachment too large")

// Attachment is a named binary payload supplied by the user.
type Attachment interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type sizer interface {
	Size() (int64, error)
}

// AttachmentReadError means the attachment could not be turned into its
// transportable form.
type AttachmentReadError struct {
	Name string
	Err  error
}

func (e *AttachmentReadError) Error() string {
	return fmt.Sprintf("failed to read attachment %s: %v", e.Name, e.Err)
}

func (e *AttachmentReadError) Unwrap() error { return e.Err }

// FileAttachment reads from the local filesystem.
type FileAttachment struct {
	Path string
}

func (f FileAttachment) Name() string { return filepath.Base(f.Path) }

func (f FileAttachment) Open() (io.ReadCloser, error) { return os.Open(f.Path) }

func (f FileAttachment) Size() (int64, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// BytesAttachment is an in-memory payload.
type BytesAttachment struct {
	Filename string
	Data     []byte
}

func (b BytesAttachment) Name() string { return b.Filename }

func (b BytesAttachment) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

func (b BytesAttachment) Size() (int64, error) { return int64(len(b.Data)), nil }

// CheckSize rejects attachments known to exceed max bytes without reading
// them. Attachments that cannot report a size pass.
func CheckSize(att Attachment, max int64) error {
	s, ok := att.(sizer)
	if !ok || max <= 0 {
		return nil
	}
	size, err := s.Size()
	if err != nil {
		return &AttachmentReadError{Name: att.Name(), Err: err}
	}
	if size > max {
		return &AttachmentReadError{
			Name: att.Name(),
			Err:  errors.Wrapf(ErrAttachmentTooLarge, "%d bytes, limit %d", size, max),
		}
	}
	return nil
}

func readAll(att Attachment, max int64) ([]byte, error) {
	rc, err := att.Open()
	if err != nil {
		return nil, &AttachmentReadError{Name: att.Name(), Err: err}
	}
	defer rc.Close()

	var r io.Reader = rc
	if max > 0 {
		r = io.LimitReader(rc, max+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &AttachmentReadError{Name: att.Name(), Err: err}
	}
	if max > 0 && int64(len(data)) > max {
		return nil, &AttachmentReadError{
			Name: att.Name(),
			Err:  errors.Wrapf(ErrAttachmentTooLarge, "limit %d", max),
		}
	}
	return data, nil
}

func mimeType(name string, data []byte) string {
	t := mime.TypeByExtension(filepath.Ext(name))
	if t == "" {
		t = http.DetectContentType(data)
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// EncodeDataURL renders data as "data:<mime>;base64,<payload>".
func EncodeDataURL(name string, data []byte) string {
	return "data:" + mimeType(name, data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL reverses EncodeDataURL, returning the media type and bytes.
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URL has no payload")
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errors.New("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errors.Wrap(err, "invalid base64 payload")
	}
	return mediaType, data, nil
}
