package binary

import (
	"bytes"
	"io"
)

// byteReader adapts an io.Reader with the small set of operations the
// section walker needs: exact-length reads and skips.
type byteReader struct {
	r io.Reader
}

func bytesReaderOf(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func (br *byteReader) readFull(buf []byte) error {
	_, err := io.ReadFull(br.r, buf)
	return err
}

func (br *byteReader) readN(n uint64) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if err := br.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (br *byteReader) skip(n uint64) error {
	_, err := io.CopyN(io.Discard, br.r, int64(n))
	return err
}
