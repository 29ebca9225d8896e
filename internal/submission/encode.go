package submission

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// InlineThreshold is the largest non-text attachment, in bytes, that is
// still inlined into a response.  The boundary is closed: a file of
// exactly this size is inlined, one byte more is placeholdered.
const InlineThreshold = 100 * 1024

// Encoding describes how a file's content is represented in transport.
type Encoding string

const (
	// EncodingText carries the bytes verbatim as text.
	EncodingText Encoding = "text"
	// EncodingBase64 carries the bytes as a base64 string.
	EncodingBase64 Encoding = "base64"
	// EncodingOmitted means the content was replaced with a
	// placeholder to bound the response size.
	EncodingOmitted Encoding = "omitted"
)

// textTypeIndicators mark content types that are safe to inline as
// text regardless of size.
var textTypeIndicators = []string{"text", "json", "xml", "csv", "html", "javascript"}

// isTextType reports whether the declared content type indicates
// textual content.
func isTextType(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, ind := range textTypeIndicators {
		if strings.Contains(ct, ind) {
			return true
		}
	}
	return false
}

// Inline renders a downloaded file's content for transport according to
// the size/type policy: text-typed content is inlined verbatim at any
// size, binary content is base64-encoded up to InlineThreshold and
// placeholdered above it.  Failed downloads render an error note.
func (f File) Inline() (content string, enc Encoding) {
	if f.Err != "" {
		return fmt.Sprintf("[download failed: %s]", f.Err), EncodingOmitted
	}
	switch {
	case isTextType(f.ContentType):
		return string(f.Data), EncodingText
	case f.Size <= InlineThreshold:
		return base64.StdEncoding.EncodeToString(f.Data), EncodingBase64
	default:
		return fmt.Sprintf("[file content omitted: %s %s exceeds inline limit of %s]",
			humanize.IBytes(uint64(f.Size)), f.ContentType, humanize.IBytes(InlineThreshold)), EncodingOmitted
	}
}
