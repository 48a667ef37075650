// Package composer turns user input into backend requests.
package composer

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"

	"LegalMind/internal/backend"

	"github.com/pkg/errors"
)

// Session is the per-request identity: who is asking, in which language, with
// which session. AuthToken may be empty.
type Session struct {
	ID        string
	Language  string
	AuthToken string
}

func (s Session) header() http.Header {
	h := http.Header{}
	if s.AuthToken != "" {
		h.Set("Authorization", "Bearer "+s.AuthToken)
	}
	return h
}

// Composer builds requests. It does not check that text or attachment is
// present; callers do.
type Composer struct {
	MaxAttachmentBytes int64
}

func New(maxAttachmentBytes int64) *Composer {
	return &Composer{MaxAttachmentBytes: maxAttachmentBytes}
}

// ComposeText builds the JSON request for /external/process.
func (c *Composer) ComposeText(sess Session, text string, att Attachment) (backend.Request, error) {
	body := backend.ProcessRequest{
		Text:         text,
		UserLanguage: sess.Language,
		SessionID:    sess.ID,
	}

	if att != nil {
		data, err := readAll(att, c.MaxAttachmentBytes)
		if err != nil {
			return backend.Request{}, err
		}
		body.FileData = EncodeDataURL(att.Name(), data)
		body.FileName = att.Name()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return backend.Request{}, errors.Wrap(err, "failed to marshal request")
	}

	h := sess.header()
	h.Set("Content-Type", "application/json")
	return backend.Request{Path: backend.PathProcess, Body: payload, Header: h}, nil
}

// ComposeAudio builds the multipart request for /external/process-audio.
// The Content-Type carries the boundary chosen by the multipart writer.
// Recordings are not subject to MaxAttachmentBytes.
func (c *Composer) ComposeAudio(sess Session, audio Attachment) (backend.Request, error) {
	data, err := readAll(audio, 0)
	if err != nil {
		return backend.Request{}, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("audio", audio.Name())
	if err != nil {
		return backend.Request{}, errors.Wrap(err, "create form file")
	}
	if _, err := fw.Write(data); err != nil {
		return backend.Request{}, errors.Wrap(err, "write audio data")
	}
	if err := mw.WriteField("user_language", sess.Language); err != nil {
		return backend.Request{}, errors.Wrap(err, "write language field")
	}
	if err := mw.WriteField("session_id", sess.ID); err != nil {
		return backend.Request{}, errors.Wrap(err, "write session field")
	}
	if err := mw.Close(); err != nil {
		return backend.Request{}, errors.Wrap(err, "close multipart writer")
	}

	h := sess.header()
	h.Set("Content-Type", mw.FormDataContentType())
	return backend.Request{Path: backend.PathProcessAudio, Body: buf.Bytes(), Header: h}, nil
}
