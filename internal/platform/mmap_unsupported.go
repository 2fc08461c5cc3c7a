//go:build !linux

package platform

import "errors"

// MmapCodeSegment is unavailable outside Linux; CompilerSupported reports
// false there, so cmd/soil never calls this path.
func MmapCodeSegment(code []byte, size int) ([]byte, error) {
	return nil, errors.New("platform: executable mmap not supported on this OS")
}

// MunmapCodeSegment is unavailable outside Linux; see MmapCodeSegment.
func MunmapCodeSegment(code []byte) error {
	return errors.New("platform: executable mmap not supported on this OS")
}
