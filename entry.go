// Package ziplist extracts the file listing of a ZIP archive from its central
// directory, fetching only the trailing bytes of a remote archive when the
// server supports range requests.
package ziplist

// Entry describes one record from a ZIP archive's central directory.
type Entry struct {
	// Name is the decoded filename, using forward slashes as separators.
	Name string

	// Directory is true if Name ends with "/".
	Directory bool

	// UncompressedSize is the size of the file contents in bytes.
	//
	// Directories report 0, as do entries whose true size cannot be read from
	// the central directory (ZIP64 and data-descriptor entries).
	UncompressedSize uint64

	// CentralDirectoryStart is only meaningful on the first entry of a
	// listing, the synthetic root for "/": it is the absolute byte offset
	// within the full archive at which the central directory claims to begin,
	// as read from the end-of-central-directory record, or 0 if that record
	// was not found.
	CentralDirectoryStart int64
}
