package progress

import "io"

// ProgressReader wraps an io.Reader and reports the running byte count to a
// callback every time at least reportInterval new bytes were read. The final
// read that reaches Total is always reported.
type ProgressReader struct {
	Reader         io.Reader
	Total          int64
	OnProgress     func(read int64, total int64)
	totalRead      int64
	sinceReport    int64
	reportInterval int64
}

func NewReader(r io.Reader, total int64, interval int64, cb func(read int64, total int64)) *ProgressReader {
	return &ProgressReader{
		Reader:         r,
		Total:          total,
		OnProgress:     cb,
		reportInterval: interval,
	}
}

// Read implements io.Reader.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.sinceReport += int64(n)

		done := pr.Total > 0 && pr.totalRead >= pr.Total
		if pr.sinceReport >= pr.reportInterval || done {
			if pr.OnProgress != nil {
				pr.OnProgress(pr.totalRead, pr.Total)
			}

			pr.sinceReport = 0
		}
	}

	return n, err
}
