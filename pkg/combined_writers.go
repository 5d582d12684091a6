package pkg

import (
	"io"

	"go.uber.org/multierr"
)

// CombinedWriter duplicates every write to all of its writers,
// e.g. to log both to a rotated file and to STDOUT.
type CombinedWriter struct {
	Writers []io.Writer
}

func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{
		Writers: writers,
	}
}

// Write reports len(p) as written if at least one writer accepted the
// whole buffer; errors from the others are combined.
func (cw CombinedWriter) Write(p []byte) (n int, err error) {
	for _, w := range cw.Writers {
		written, werr := w.Write(p)
		if werr != nil {
			err = multierr.Append(err, werr)
			continue
		}
		if written > n {
			n = written
		}
	}
	return n, err
}
