package compaction

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Content is the parsed form of a message body. It is either Parsed or Unparsed.
type Content interface {
	// Raw returns the content exactly as stored.
	Raw() string
}

// Parsed is content that holds a JSON object.
type Parsed struct {
	raw string
	doc gjson.Result
}

// Raw returns the content exactly as stored.
func (p Parsed) Raw() string { return p.raw }

// Has reports whether the object contains the key path.
func (p Parsed) Has(path string) bool {
	return p.doc.Get(path).Exists()
}

// Unparsed is content that is not a JSON object: plain text, malformed JSON,
// or a JSON value of another type.
type Unparsed struct {
	raw string
}

// Raw returns the content exactly as stored.
func (u Unparsed) Raw() string { return u.raw }

// ParseContent classifies a message body.
func ParseContent(content string) Content {
	if !gjson.Valid(content) {
		return Unparsed{raw: content}
	}

	doc := gjson.Parse(content)
	if !doc.IsObject() {
		return Unparsed{raw: content}
	}

	return Parsed{raw: content, doc: doc}
}

// Scrub removes fields from content and reports whether anything was removed.
//
// Unparsed content is returned unchanged. For Parsed content every occurrence
// of each field is deleted from the stored bytes, including duplicated keys;
// everything else is left as written. If any
// deletion fails the original content is returned.
func Scrub(content string, fields []string) (string, bool) {
	switch c := ParseContent(content).(type) {
	case Parsed:
		out := c.Raw()
		removed := false

		for _, field := range fields {
			// Delete removes one occurrence; duplicated keys need a pass each
			for gjson.Get(out, field).Exists() {
				next, err := sjson.Delete(out, field)
				if err != nil || next == out {
					return c.Raw(), false
				}

				out = next
				removed = true
			}
		}

		return out, removed

	case Unparsed:
		return c.Raw(), false
	}

	return content, false
}
