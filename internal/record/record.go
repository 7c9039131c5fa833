// Package record implements the on-disk framing for journal records.
//
// Every record is length-prefixed: a 4-byte little-endian size (counting the
// tag byte and payload, not the length field itself) followed by a 1-byte
// tag and the tag-specific payload. Decode never allocates more than the
// declared length, so a corrupted length prefix that runs past EOF is
// detected before any payload bytes are trusted.
package record

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Tag identifies the kind of a record.
type Tag uint8

const (
	// TagPut marks a data-file record carrying a queue item.
	TagPut Tag = 1
	// TagReadHead marks a reader-file record carrying the durable head.
	TagReadHead Tag = 2
	// TagReadDone marks a reader-file record carrying the out-of-order done set.
	TagReadDone Tag = 3

	// tagReservedLow and tagReservedHigh bound the transactional-read tags
	// that belong to layers above the journal. The codec frames them but
	// never interprets the payload.
	tagReservedLow  Tag = 4
	tagReservedHigh Tag = 6
)

// lengthFieldSize is the width of the length prefix itself.
const lengthFieldSize = 4

// CorruptedError is returned when a record cannot be framed because its
// length prefix runs past the end of the file, or because its tag is not
// part of the valid tag space (1-6).
type CorruptedError struct {
	// Position is the byte offset at which the corrupt record begins.
	Position int64
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("record: corrupted journal at position %d", e.Position)
}

// Item is an immutable queue item as stored by a Put record.
type Item struct {
	ID         uint64
	AddTime    int64 // Unix ms
	ExpireTime int64 // Unix ms, 0 = none
	Data       []byte
}

// Put is a decoded TagPut record.
type Put struct{ Item Item }

// ReadHead is a decoded TagReadHead record.
type ReadHead struct{ Head uint64 }

// ReadDone is a decoded TagReadDone record.
type ReadDone struct{ IDs []uint64 }

// Raw is a decoded record whose tag is reserved for higher layers. The core
// journal frames these correctly but never inspects Payload.
type Raw struct {
	Tag     Tag
	Payload []byte
}

// EncodePut serializes a Put record.
func EncodePut(item Item) []byte {
	payload := make([]byte, 8+8+8+len(item.Data))
	binary.LittleEndian.PutUint64(payload[0:8], item.ID)
	binary.LittleEndian.PutUint64(payload[8:16], uint64(item.AddTime))
	binary.LittleEndian.PutUint64(payload[16:24], uint64(item.ExpireTime))
	copy(payload[24:], item.Data)
	return frame(TagPut, payload)
}

// EncodeReadHead serializes a ReadHead record.
func EncodeReadHead(head uint64) []byte {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, head)
	return frame(TagReadHead, payload)
}

// EncodeReadDone serializes a ReadDone record. ids must already be sorted;
// the caller (Reader.checkpoint) is responsible for that.
func EncodeReadDone(ids []uint64) []byte {
	payload := make([]byte, 8*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint64(payload[i*8:i*8+8], id)
	}
	return frame(TagReadDone, payload)
}

func frame(tag Tag, payload []byte) []byte {
	buf := make([]byte, lengthFieldSize+1+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(1+len(payload))) //nolint:gosec // records are bounded by maxItemSize above this layer
	buf[4] = byte(tag)
	copy(buf[5:], payload)
	return buf
}

// Decode reads exactly one record from r, which must be positioned at the
// start of a record. It returns io.EOF if r is positioned at a clean
// end-of-file (no bytes at all consumed), or a *CorruptedError if the length
// prefix or a partial read indicates a truncated tail.
//
// pos is the byte offset of the record, used only to annotate CorruptedError.
func Decode(r io.Reader, pos int64) (any, error) {
	var lenBuf [lengthFieldSize]byte
	n, err := io.ReadFull(r, lenBuf[:])
	if n == 0 && err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, &CorruptedError{Position: pos}
	}

	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length < 1 {
		return nil, &CorruptedError{Position: pos}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, &CorruptedError{Position: pos}
	}

	tag := Tag(body[0])
	payload := body[1:]

	switch tag {
	case TagPut:
		return decodePut(payload, pos)
	case TagReadHead:
		if len(payload) != 8 {
			return nil, &CorruptedError{Position: pos}
		}
		return ReadHead{Head: binary.LittleEndian.Uint64(payload)}, nil
	case TagReadDone:
		if len(payload)%8 != 0 {
			return nil, &CorruptedError{Position: pos}
		}
		ids := make([]uint64, len(payload)/8)
		for i := range ids {
			ids[i] = binary.LittleEndian.Uint64(payload[i*8 : i*8+8])
		}
		return ReadDone{IDs: ids}, nil
	default:
		if tag >= tagReservedLow && tag <= tagReservedHigh {
			return Raw{Tag: tag, Payload: payload}, nil
		}
		return nil, &CorruptedError{Position: pos}
	}
}

func decodePut(payload []byte, pos int64) (any, error) {
	if len(payload) < 24 {
		return nil, &CorruptedError{Position: pos}
	}
	item := Item{
		ID:         binary.LittleEndian.Uint64(payload[0:8]),
		AddTime:    int64(binary.LittleEndian.Uint64(payload[8:16])), //nolint:gosec // round-trips a previously written int64
		ExpireTime: int64(binary.LittleEndian.Uint64(payload[16:24])),
		Data:       append([]byte(nil), payload[24:]...),
	}
	return Put{Item: item}, nil
}

// TotalSize returns the number of bytes a record occupies on disk, given
// its payload length (payloadLen excludes the tag byte; TotalSize adds it).
func TotalSize(payloadLen int) int64 {
	return int64(lengthFieldSize + 1 + payloadLen)
}
