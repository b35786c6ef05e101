package progress

import "io"

// Reader wraps an io.Reader and reports percent progress via a callback.
type Reader struct {
	Reader     io.Reader
	Total      int64
	OnProgress func(percent int)
	totalRead  int64 // cumulative total
	lastPct    int   // last reported percent
}

func NewReader(r io.Reader, total int64, cb func(percent int)) *Reader {
	return &Reader{
		Reader:     r,
		Total:      total,
		OnProgress: cb,
		lastPct:    -1,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 && pr.Total > 0 {
		pr.totalRead += int64(n)

		pct := int(pr.totalRead * 100 / pr.Total)
		if pct > 100 {
			pct = 100
		}

		if pct != pr.lastPct {
			pr.lastPct = pct
			if pr.OnProgress != nil {
				pr.OnProgress(pct)
			}
		}
	}

	return n, err
}
