package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarcelGarus/soil-sub000/internal/binary"
)

func testConfig() Config {
	return Config{MemSize: 4096, CallStackLimit: 8, TryStackLimit: 4}
}

func TestNew_StateAfterInitWithNoMemorySection(t *testing.T) {
	v := New(&binary.Program{Bytecode: []byte{0x00}}, testConfig(), nil)
	require.Equal(t, int64(4096), v.Regs[RegSP])
	for i := 1; i < 8; i++ {
		require.Zero(t, v.Regs[i])
	}
	for _, b := range v.Mem[:4096] {
		require.Zero(t, b)
	}
}

func TestNew_InitialMemoryCopy(t *testing.T) {
	data := []byte("hello")
	v := New(&binary.Program{InitialMemory: data}, testConfig(), nil)
	require.Equal(t, data, v.Mem[:len(data)])
	for _, b := range v.Mem[len(data):4096] {
		require.Zero(t, b)
	}
}

func TestMemory_LittleEndianStoreLoad(t *testing.T) {
	v := New(&binary.Program{}, testConfig(), nil)
	require.NoError(t, v.StoreU64(8, 0x1122334455667788))
	got, err := v.LoadU64(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1122334455667788), got)

	require.NoError(t, v.StoreU8(8, 0xab))
	b, err := v.LoadU8(8)
	require.NoError(t, err)
	require.Equal(t, byte(0xab), b)
}

func TestMemory_OutOfBoundsPanics(t *testing.T) {
	v := New(&binary.Program{}, testConfig(), nil)
	_, err := v.LoadU64(int64(v.Config.MemSize) - 4)
	require.Error(t, err)
	var oom *OutOfMemoryAccess
	require.ErrorAs(t, err, &oom)
}

func TestGuardByteAddressable(t *testing.T) {
	v := New(&binary.Program{}, testConfig(), nil)
	restore, err := v.GuardWriteCString(int64(v.Config.MemSize)-3, 3)
	require.NoError(t, err)
	b, err := v.LoadU8(int64(v.Config.MemSize) - 1)
	require.NoError(t, err)
	require.Zero(t, b)
	restore()
}

func TestCallStack_PushPopAndDepthLimit(t *testing.T) {
	v := New(&binary.Program{}, testConfig(), nil)
	for i := 0; i < v.Config.CallStackLimit; i++ {
		require.NoError(t, v.CallPush(uint64(i)))
	}
	err := v.CallPush(999)
	require.Error(t, err)
	var overflow *CallStackOverflow
	require.ErrorAs(t, err, &overflow)

	for i := v.Config.CallStackLimit - 1; i >= 0; i-- {
		top, err := v.CallPop()
		require.NoError(t, err)
		require.Equal(t, uint64(i), top)
	}
	_, err = v.CallPop()
	var underflow *CallStackUnderflow
	require.ErrorAs(t, err, &underflow)
}

func TestTryStack_PushPeekPop(t *testing.T) {
	v := New(&binary.Program{}, testConfig(), nil)
	scope := TryScope{CallDepth: 2, SP: 100, Catch: 42}
	require.NoError(t, v.TryPush(scope))

	peeked, ok := v.TryPeek()
	require.True(t, ok)
	require.Equal(t, scope, peeked)

	popped, err := v.TryPop()
	require.NoError(t, err)
	require.Equal(t, scope, popped)

	_, err = v.TryPop()
	require.Error(t, err)
}

func TestReset_RestoresInitialState(t *testing.T) {
	v := New(&binary.Program{Bytecode: []byte{0x00}}, testConfig(), nil)
	v.Regs[RegA] = 123
	v.Regs[RegSP] = 10
	require.NoError(t, v.CallPush(5))
	require.NoError(t, v.TryPush(TryScope{Catch: 1}))

	v.Reset(&binary.Program{Bytecode: []byte{0x01, 0x02}})
	require.Equal(t, int64(4096), v.Regs[RegSP])
	require.Zero(t, v.Regs[RegA])
	require.Equal(t, 0, v.CallDepth())
	require.Equal(t, 0, v.TryDepth())
	require.Equal(t, []byte{0x01, 0x02}, v.Bytecode)
}
