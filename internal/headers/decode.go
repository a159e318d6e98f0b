package headers

import (
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/ianaindex"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// DecodeValue decodes every encoded word (=?charset?B|Q?payload?=) in a
// header value. Text outside encoded words is kept as is.
func DecodeValue(raw string) string {
	if !strings.Contains(raw, "=?") {
		return raw
	}
	decoded, err := wordDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// charsetReader transcodes to UTF-8 when the charset is known and passes
// the decoded bytes through untouched otherwise
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	if r, err := charset.Reader(label, input); err == nil {
		return r, nil
	}
	if enc, err := ianaindex.IANA.Encoding(strings.ToLower(label)); err == nil && enc != nil {
		return enc.NewDecoder().Reader(input), nil
	}
	return input, nil
}
