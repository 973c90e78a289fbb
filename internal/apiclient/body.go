package apiclient

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"

	"github.com/pkg/errors"
)

// RequestBody is either JSONBody or MultipartBody. The caller picks the
// variant; the client never guesses it from the payload.
type RequestBody interface {
	encode() (io.Reader, string, error)
}

// JSONBody is marshalled with encoding/json and sent as application/json.
type JSONBody struct {
	Value any
}

func (b JSONBody) encode() (io.Reader, string, error) {
	data, err := json.Marshal(b.Value)
	if err != nil {
		return nil, "", errors.Wrap(err, "marshal json body")
	}
	return bytes.NewReader(data), "application/json", nil
}

type MultipartFile struct {
	Field       string
	FileName    string
	ContentType string
	Content     io.Reader
}

// MultipartBody is sent as multipart/form-data; the content type (with the
// boundary) comes from the multipart writer and cannot be overridden.
type MultipartBody struct {
	Fields map[string]string
	Files  []MultipartFile
}

func (b MultipartBody) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range b.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", errors.Wrap(err, "write multipart field")
		}
	}
	for _, f := range b.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
			"name":     f.Field,
			"filename": f.FileName,
		}))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", errors.Wrap(err, "create multipart part")
		}
		if f.Content != nil {
			if _, err := io.Copy(part, f.Content); err != nil {
				return nil, "", errors.Wrap(err, "copy multipart file")
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart writer")
	}
	return &buf, w.FormDataContentType(), nil
}

// Body is a parsed response. An empty response is a Body with Present() == false.
type Body struct {
	JSON json.RawMessage
	Text string
}

func (b Body) Present() bool {
	return len(b.JSON) > 0 || b.Text != ""
}

func (b Body) IsJSON() bool {
	return len(b.JSON) > 0
}

func (b Body) Decode(v any) error {
	if !b.IsJSON() {
		return errors.New("response body is not json")
	}
	return errors.Wrap(json.Unmarshal(b.JSON, v), "decode response body")
}

// Value returns the body as a generic value: decoded JSON, raw text or nil.
func (b Body) Value() any {
	switch {
	case b.IsJSON():
		var v any
		if json.Unmarshal(b.JSON, &v) == nil {
			return v
		}
		return string(b.JSON)
	case b.Text != "":
		return b.Text
	default:
		return nil
	}
}

// Message returns the server-supplied "message" field, if any.
func (b Body) Message() string {
	if !b.IsJSON() {
		return ""
	}
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b.JSON, &m) != nil {
		return ""
	}
	return m.Message
}

// parseBody не доверяет Content-Type: сервер отдаёт JSON и под text/plain, и без заголовка.
func parseBody(raw []byte) Body {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Body{}
	}
	if json.Valid(raw) {
		return Body{JSON: json.RawMessage(raw)}
	}
	return Body{Text: string(raw)}
}
