package ziplist

import (
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Filename encoding labels passed to TextDecoder implementations. The label
// for an entry is chosen by general purpose bit 11 of its flags.
const (
	LabelUTF8  = "utf-8"
	LabelASCII = "ascii"
)

// TextDecoder converts raw filename bytes into a string for a given encoding
// label.
//
// Implementations must handle LabelUTF8 and LabelASCII and must not fail:
// undecodable input degrades to a best-effort string. Supplying a custom
// implementation through ParseOptions or FetchOptions swaps the decoding
// backend without touching any parsing logic.
type TextDecoder interface {
	Decode(p []byte, label string) string
}

// Charset is the default TextDecoder, backed by the charset tables of
// golang.org/x/text. The "ascii" label selects Windows-1252, which is what
// native text decoders bind that label to.
var Charset TextDecoder = charsetDecoder{}

type charsetDecoder struct{}

func (charsetDecoder) Decode(p []byte, label string) string {
	dec := unicode.UTF8.NewDecoder()
	if label == LabelASCII {
		dec = charmap.Windows1252.NewDecoder()
	}

	if b, err := dec.Bytes(p); err == nil {
		return string(b)
	}
	return string(p)
}

// Raw is a table-free TextDecoder: "utf-8" uses Go's native byte-to-string
// conversion while "ascii" widens each byte to one rune. It exists for
// environments that want to avoid the charset tables; both decoders agree on
// 7-bit input.
var Raw TextDecoder = rawDecoder{}

type rawDecoder struct{}

func (rawDecoder) Decode(p []byte, label string) string {
	if label == LabelASCII {
		rs := make([]rune, len(p))
		for i, b := range p {
			rs[i] = rune(b)
		}
		return string(rs)
	}
	return string(p)
}
