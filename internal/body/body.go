// Package body decodes the MIME body of a message into its HTML and plain
// text renditions and extracts the hyperlinks of the HTML part.
package body

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// MaxPartSize bounds how much of a single decoded part is read
const MaxPartSize = 20 * 1024 * 1024

// Body is the decoded content of a message. Parts of the same kind are
// concatenated in message order.
type Body struct {
	HTML        string   `json:"html,omitempty"`
	Text        string   `json:"text,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// Decoder decodes transfer encodings and transcodes text parts to UTF-8
type Decoder struct {
	log logrus.FieldLogger
}

// NewDecoder returns a Decoder. A nil log discards messages.
func NewDecoder(log logrus.FieldLogger) *Decoder {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Decoder{log: log}
}

// Decode reads a whole message (headers and body) and returns its decoded
// body. Unknown charsets and transfer encodings leave the affected part
// undecoded rather than failing.
func (d *Decoder) Decode(raw []byte) (*Body, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, eris.Wrap(err, "failed to read message entity")
	}
	if err != nil {
		d.log.WithError(err).Debug("message body left partially undecoded")
	}

	out := &Body{}
	if err := d.walk(entity, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Decoder) walk(e *message.Entity, out *Body) error {
	ctype, _, err := e.Header.ContentType()
	if err != nil || ctype == "" {
		ctype = "text/plain"
	}

	if mr := e.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				d.log.WithError(err).Warn("error reading multipart body")
				return nil
			}
			if err := d.walk(part, out); err != nil {
				return err
			}
		}
	}

	if disp, params, err := e.Header.ContentDisposition(); err == nil && disp == "attachment" {
		out.Attachments = append(out.Attachments, params["filename"])
		return nil
	}

	if ctype != "text/plain" && ctype != "text/html" {
		d.log.WithField("content_type", ctype).Debug("skipping non-text part")
		return nil
	}

	content, err := io.ReadAll(io.LimitReader(e.Body, MaxPartSize))
	if err != nil {
		return eris.Wrapf(err, "failed to read %s part", ctype)
	}
	if ctype == "text/html" {
		out.HTML += string(content)
	} else {
		out.Text += string(content)
	}
	return nil
}

// IsEmpty reports whether no text or HTML content was found
func (b *Body) IsEmpty() bool {
	return b == nil || strings.TrimSpace(b.HTML) == "" && strings.TrimSpace(b.Text) == ""
}
