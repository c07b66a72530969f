package att

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeedsLongWrite(t *testing.T) {
	assert.False(t, NeedsLongWrite(23, make([]byte, 20)))
	assert.True(t, NeedsLongWrite(23, make([]byte, 21)))
	assert.True(t, NeedsLongWrite(0, make([]byte, 21)), "zero MTU means the default 23")
	assert.False(t, NeedsLongWrite(185, make([]byte, 182)))
}

func TestSplitAndReassemble(t *testing.T) {
	value := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF}, 30)

	chunks, err := SplitLongWrite(0x0005, value, 23)
	require.NoError(t, err)
	require.Len(t, chunks, 5)
	for i, c := range chunks[:4] {
		assert.Len(t, c.Value, 18)
		assert.Equal(t, uint16(i*18), c.Offset)
	}
	assert.Len(t, chunks[4].Value, 18)

	var q PrepareQueue
	for _, c := range chunks {
		require.Equal(t, uint8(ErrSuccess), q.Prepare(c))
	}
	assert.Equal(t, 5, q.Len())

	handle, got, ok := q.Execute(true)
	require.True(t, ok)
	assert.Equal(t, uint16(0x0005), handle)
	assert.Equal(t, value, got)
	assert.Zero(t, q.Len())
}

func TestSplitRejectsTinyMTU(t *testing.T) {
	_, err := SplitLongWrite(1, []byte{1, 2, 3}, 5)
	assert.Error(t, err)
}

func TestPrepareQueueErrors(t *testing.T) {
	var q PrepareQueue
	require.Equal(t, uint8(ErrSuccess), q.Prepare(Chunk{Handle: 3, Offset: 0, Value: []byte{1, 2}}))

	assert.Equal(t, uint8(ErrInvalidOffset), q.Prepare(Chunk{Handle: 3, Offset: 5, Value: []byte{3}}))
	assert.Equal(t, uint8(ErrRequestNotSupported), q.Prepare(Chunk{Handle: 4, Offset: 2, Value: []byte{3}}))

	_, _, ok := q.Execute(false)
	assert.False(t, ok)
	assert.Zero(t, q.Len(), "cancel empties the queue")
}

func TestPrepareQueueFull(t *testing.T) {
	var q PrepareQueue
	for i := 0; i < MaxPrepareQueue; i++ {
		require.Equal(t, uint8(ErrSuccess), q.Prepare(Chunk{Handle: 1, Offset: uint16(i), Value: []byte{byte(i)}}))
	}
	assert.Equal(t, uint8(ErrPrepareQueueFull), q.Prepare(Chunk{Handle: 1, Offset: MaxPrepareQueue, Value: []byte{0}}))
}
