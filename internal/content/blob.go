package content

import (
	"io"
	"os"

	"github.com/italolelis/resumable_downloader/internal/transfer"
)

// Blob is an open, published file. ReadAt is safe for concurrent use.
type Blob struct {
	File transfer.File

	path string
	fh   *os.File
}

// ReadAt reads from the published file without moving any shared offset.
func (b *Blob) ReadAt(p []byte, off int64) (int, error) {
	return b.fh.ReadAt(p, off)
}

// Section returns a reader over length bytes starting at off.
func (b *Blob) Section(off, length int64) *io.SectionReader {
	return io.NewSectionReader(b, off, length)
}

func (b *Blob) Close() error {
	return b.fh.Close()
}
