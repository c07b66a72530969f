package att

import "fmt"

// MaxPrepareQueue bounds the number of queued prepared writes per connection.
const MaxPrepareQueue = 64

// Chunk is one Prepare Write Request: a slice of a long value at Offset.
type Chunk struct {
	Handle uint16
	Offset uint16
	Value  []byte
}

// NeedsLongWrite reports whether value is too big for a single Write Request
// at mtu. ATT Write Request: [Opcode:1][Handle:2][Value:N]
func NeedsLongWrite(mtu int, value []byte) bool {
	if mtu <= 0 {
		mtu = 23
	}
	return len(value) > mtu-3
}

// SplitLongWrite splits value into Prepare Write chunks. Each carries at most
// mtu-5 bytes: [Opcode:1][Handle:2][Offset:2][Value:N]
func SplitLongWrite(handle uint16, value []byte, mtu int) ([]Chunk, error) {
	maxChunk := mtu - 5
	if maxChunk <= 0 {
		return nil, fmt.Errorf("att: MTU %d too small for prepared writes", mtu)
	}
	if len(value) > 0xFFFF {
		return nil, fmt.Errorf("att: value of %d bytes exceeds the attribute limit", len(value))
	}

	var chunks []Chunk
	for offset := 0; offset < len(value); offset += maxChunk {
		end := offset + maxChunk
		if end > len(value) {
			end = len(value)
		}
		chunks = append(chunks, Chunk{
			Handle: handle,
			Offset: uint16(offset),
			Value:  append([]byte(nil), value[offset:end]...),
		})
	}
	return chunks, nil
}

// PrepareQueue is the server side of a reliable long write for one
// connection. Chunks must arrive in order for a single handle.
type PrepareQueue struct {
	handle uint16
	chunks []Chunk
	size   int
}

// Prepare queues c and returns an ATT error code, 0 on success.
func (q *PrepareQueue) Prepare(c Chunk) uint8 {
	if len(q.chunks) > 0 && c.Handle != q.handle {
		return ErrRequestNotSupported
	}
	if len(q.chunks) >= MaxPrepareQueue {
		return ErrPrepareQueueFull
	}
	if int(c.Offset) != q.size {
		return ErrInvalidOffset
	}
	q.handle = c.Handle
	q.chunks = append(q.chunks, c)
	q.size += len(c.Value)
	return ErrSuccess
}

// Execute ends the long write. With commit it returns the reassembled value
// and its handle; otherwise the queue is discarded. The queue is empty
// afterwards either way.
func (q *PrepareQueue) Execute(commit bool) (uint16, []byte, bool) {
	defer q.Reset()
	if !commit || len(q.chunks) == 0 {
		return 0, nil, false
	}
	value := make([]byte, 0, q.size)
	for _, c := range q.chunks {
		value = append(value, c.Value...)
	}
	return q.handle, value, true
}

// Len returns the number of queued chunks.
func (q *PrepareQueue) Len() int {
	return len(q.chunks)
}

// Reset drops queued chunks, as on disconnection.
func (q *PrepareQueue) Reset() {
	q.handle, q.chunks, q.size = 0, nil, 0
}
