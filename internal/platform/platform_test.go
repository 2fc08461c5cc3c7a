package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMmapCodeSegment_RoundTrips(t *testing.T) {
	if !CompilerSupported() {
		t.Skip("executable mmap not supported on this platform")
	}
	code := []byte{0xc3} // ret
	mapped, err := MmapCodeSegment(code, len(code))
	require.NoError(t, err)
	require.Equal(t, code, mapped[:len(code)])
	require.NoError(t, MunmapCodeSegment(mapped))
}

func TestMmapCodeSegment_PanicsOnZeroLength(t *testing.T) {
	if !CompilerSupported() {
		t.Skip("executable mmap not supported on this platform")
	}
	require.Panics(t, func() {
		_, _ = MmapCodeSegment(nil, 0)
	})
}
