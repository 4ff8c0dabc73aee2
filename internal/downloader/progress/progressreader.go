package progress

import "io"

// Func receives the cumulative byte count and the expected total.
type Func func(read int64, total int64)

// Reader wraps an io.Reader and reports progress via a callback every
// interval bytes and once more when the expected total has been read.
type Reader struct {
	r          io.Reader
	total      int64
	interval   int64
	onProgress Func
	read       int64 // cumulative total
	sinceLast  int64 // bytes since last report
	done       bool
}

func NewReader(r io.Reader, total int64, interval int64, cb Func) *Reader {
	return &Reader{
		r:          r,
		total:      total,
		interval:   interval,
		onProgress: cb,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n <= 0 {
		return n, err
	}

	pr.read += int64(n)
	pr.sinceLast += int64(n)

	switch {
	case pr.total > 0 && pr.read >= pr.total:
		if !pr.done {
			pr.done = true
			pr.report()
		}

		pr.sinceLast = 0
	case pr.interval > 0 && pr.sinceLast >= pr.interval:
		pr.report()
		pr.sinceLast = 0
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}

func (pr *Reader) report() {
	if pr.onProgress != nil {
		pr.onProgress(pr.read, pr.total)
	}
}
