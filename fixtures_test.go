package ziplist

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fixtureFile is one entry of an in-memory test archive.
type fixtureFile struct {
	name string
	data []byte
}

// buildArchive writes a stored (uncompressed) ZIP archive in memory. Names
// ending in "/" become directory entries.
func buildArchive(t *testing.T, files []fixtureFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Store})
		assert.NoErrorf(t, err, "CreateHeader(%s) error = %v", f.name, err)

		if len(f.data) > 0 {
			_, err = w.Write(f.data)
			assert.NoErrorf(t, err, "Write(%s) error = %v", f.name, err)
		}
	}
	assert.NoError(t, zw.Close())

	return buf.Bytes()
}

// buildArchiveOfSize pads an archive with one extra stored file so the whole
// thing is exactly total bytes long. Storing is byte-for-byte, so sizing the
// pad file is exact.
func buildArchiveOfSize(t *testing.T, files []fixtureFile, total int) []byte {
	t.Helper()

	withPad := append(append([]fixtureFile{}, files...), fixtureFile{name: "pad.bin"})
	overhead := len(buildArchive(t, withPad))
	if total < overhead {
		t.Fatalf("total %d is smaller than the archive overhead %d", total, overhead)
	}

	withPad[len(withPad)-1].data = bytes.Repeat([]byte{0xaa}, total-overhead)
	data := buildArchive(t, withPad)
	assert.Len(t, data, total)
	return data
}

// cdStartOf reads the central directory offset straight out of the archive's
// EOCD record.
func cdStartOf(t *testing.T, data []byte) int64 {
	t.Helper()

	i := bytes.LastIndex(data, []byte{0x50, 0x4b, 0x05, 0x06})
	if i < 0 {
		t.Fatal("no EOCD record in fixture")
	}
	return int64(binary.LittleEndian.Uint32(data[i+16:]))
}

// writeCDFH appends one hand-built central directory file header. Only the
// fields the parser reads are populated.
func writeCDFH(buf *bytes.Buffer, name []byte, flags uint16, size uint32) {
	fixed := make([]byte, 46)
	binary.LittleEndian.PutUint32(fixed[0:], sigCDFH)
	binary.LittleEndian.PutUint16(fixed[4:], 20)     // creator version
	binary.LittleEndian.PutUint16(fixed[6:], 20)     // reader version
	binary.LittleEndian.PutUint16(fixed[8:], flags)  // general purpose bits
	binary.LittleEndian.PutUint32(fixed[24:], size)  // uncompressed size
	binary.LittleEndian.PutUint16(fixed[28:], uint16(len(name)))
	buf.Write(fixed)
	buf.Write(name)
}

// writeEOCD appends a hand-built EOCD record.
func writeEOCD(buf *bytes.Buffer, count uint16, cdSize, cdStart uint32) {
	fixed := make([]byte, 22)
	binary.LittleEndian.PutUint32(fixed[0:], sigEOCD)
	binary.LittleEndian.PutUint16(fixed[8:], count)  // records on this disk
	binary.LittleEndian.PutUint16(fixed[10:], count) // records total
	binary.LittleEndian.PutUint32(fixed[12:], cdSize)
	binary.LittleEndian.PutUint32(fixed[16:], cdStart)
	buf.Write(fixed)
}

// underFetchArchive hand-builds a 100000-byte pseudo-archive whose central
// directory begins at byte 20000, well before the trailing window a ranged
// fetch would guess, forcing the corrective request path. Filler bytes are
// 0xaa, which can never look like a record signature.
func underFetchArchive(t *testing.T, entryCount int) []byte {
	t.Helper()

	const total = 100000
	const cdStart = 20000

	var buf bytes.Buffer
	buf.Write(bytes.Repeat([]byte{0xaa}, cdStart))
	for i := 0; i < entryCount; i++ {
		writeCDFH(&buf, []byte(fmt.Sprintf("data/part-%04d.bin", i)), 0, uint32(i))
	}
	writeEOCD(&buf, uint16(entryCount), uint32(buf.Len()-cdStart), cdStart)

	// the EOCD must sit inside the backward search window of the full buffer.
	eocd := buf.Len() - 22
	if lo := total - 22 - 0xffff; eocd < lo {
		t.Fatalf("EOCD at %d is before the search window start %d; add entries", eocd, lo)
	}

	buf.Write(bytes.Repeat([]byte{0xaa}, total-buf.Len()))
	data := buf.Bytes()
	assert.Len(t, data, total)
	return data
}
