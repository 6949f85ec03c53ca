package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ID tags the variant of a peer message.
type ID uint8

const (
	Choke         ID = 0
	Unchoke       ID = 1
	Interested    ID = 2
	NotInterested ID = 3
	Have          ID = 4
	Bitfield      ID = 5
	Request       ID = 6
	Piece         ID = 7
	Cancel        ID = 8
)

// ErrInvalidMessageID is returned for an id outside {0..8}.
var ErrInvalidMessageID = errors.New("wire: invalid message id")

// ErrReadFailed wraps a partial/short read of a message frame.
var ErrReadFailed = errors.New("wire: read failed")

// Message is a tagged union over the nine peer message variants. A nil
// *Message (with a nil error) denotes the zero-length keep-alive, which
// carries neither id nor payload.
type Message struct {
	ID ID

	// Have: piece index.
	// Request/Cancel: index, begin, length.
	// Piece: index, begin, block.
	Index  uint32
	Begin  uint32
	Length uint32
	Block  []byte

	// Bitfield: opaque payload, one bit per piece, MSB-first per byte.
	Bitfield []byte
}

// NewRequest builds a REQUEST message.
func NewRequest(index, begin, length uint32) *Message {
	return &Message{ID: Request, Index: index, Begin: begin, Length: length}
}

// NewCancel builds a CANCEL message.
func NewCancel(index, begin, length uint32) *Message {
	return &Message{ID: Cancel, Index: index, Begin: begin, Length: length}
}

// NewHave builds a HAVE message.
func NewHave(index uint32) *Message {
	return &Message{ID: Have, Index: index}
}

// NewPiece builds a PIECE message.
func NewPiece(index, begin uint32, block []byte) *Message {
	return &Message{ID: Piece, Index: index, Begin: begin, Block: block}
}

// NewBitfield builds a BITFIELD message.
func NewBitfield(bits []byte) *Message {
	return &Message{ID: Bitfield, Bitfield: bits}
}

// Serialize encodes msg into its wire frame: length(4) | id(1) | payload.
// A nil msg serializes to the four-byte keep-alive.
func (msg *Message) Serialize() []byte {
	if msg == nil {
		return make([]byte, 4)
	}

	var payload []byte
	switch msg.ID {
	case Choke, Unchoke, Interested, NotInterested:
		payload = nil
	case Have:
		payload = make([]byte, 4)
		binary.BigEndian.PutUint32(payload, msg.Index)
	case Bitfield:
		payload = msg.Bitfield
	case Request, Cancel:
		payload = make([]byte, 12)
		binary.BigEndian.PutUint32(payload[0:4], msg.Index)
		binary.BigEndian.PutUint32(payload[4:8], msg.Begin)
		binary.BigEndian.PutUint32(payload[8:12], msg.Length)
	case Piece:
		payload = make([]byte, 8+len(msg.Block))
		binary.BigEndian.PutUint32(payload[0:4], msg.Index)
		binary.BigEndian.PutUint32(payload[4:8], msg.Begin)
		copy(payload[8:], msg.Block)
	}

	length := uint32(len(payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(msg.ID)
	copy(buf[5:], payload)
	return buf
}

// WriteMessage encodes and writes msg in one call. The writer is
// expected to be buffered externally if many small writes are a concern.
func WriteMessage(w io.Writer, msg *Message) error {
	_, err := w.Write(msg.Serialize())
	return err
}

// ReadMessage reads one complete frame from r. A nil *Message with a
// nil error denotes keep-alive.
func ReadMessage(r io.Reader) (*Message, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("%w: length prefix: %w", ErrReadFailed, err)
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length == 0 {
		return nil, nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: body of %d bytes: %v", ErrReadFailed, length, err)
	}

	id := ID(body[0])
	payload := body[1:]
	return decodeMessage(id, payload)
}

func decodeMessage(id ID, payload []byte) (*Message, error) {
	switch id {
	case Choke, Unchoke, Interested, NotInterested:
		if len(payload) != 0 {
			return nil, fmt.Errorf("%w: id %d expects empty payload, got %d bytes", ErrInvalidMessageID, id, len(payload))
		}
		return &Message{ID: id}, nil

	case Have:
		if len(payload) != 4 {
			return nil, fmt.Errorf("%w: have payload length %d, want 4", ErrInvalidMessageID, len(payload))
		}
		return &Message{ID: id, Index: binary.BigEndian.Uint32(payload)}, nil

	case Bitfield:
		return &Message{ID: id, Bitfield: payload}, nil

	case Request, Cancel:
		if len(payload) != 12 {
			return nil, fmt.Errorf("%w: request/cancel payload length %d, want 12", ErrInvalidMessageID, len(payload))
		}
		return &Message{
			ID:     id,
			Index:  binary.BigEndian.Uint32(payload[0:4]),
			Begin:  binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}, nil

	case Piece:
		if len(payload) < 8 {
			return nil, fmt.Errorf("%w: piece payload too short: %d < 8", ErrInvalidMessageID, len(payload))
		}
		return &Message{
			ID:    id,
			Index: binary.BigEndian.Uint32(payload[0:4]),
			Begin: binary.BigEndian.Uint32(payload[4:8]),
			Block: payload[8:],
		}, nil

	default:
		return nil, fmt.Errorf("%w: id %d", ErrInvalidMessageID, id)
	}
}

func (id ID) String() string {
	switch id {
	case Choke:
		return "Choke"
	case Unchoke:
		return "Unchoke"
	case Interested:
		return "Interested"
	case NotInterested:
		return "NotInterested"
	case Have:
		return "Have"
	case Bitfield:
		return "Bitfield"
	case Request:
		return "Request"
	case Piece:
		return "Piece"
	case Cancel:
		return "Cancel"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

func (msg *Message) String() string {
	if msg == nil {
		return "KeepAlive"
	}
	switch msg.ID {
	case Piece:
		return fmt.Sprintf("%s [index=%d begin=%d len=%d]", msg.ID, msg.Index, msg.Begin, len(msg.Block))
	case Bitfield:
		return fmt.Sprintf("%s [%d bytes]", msg.ID, len(msg.Bitfield))
	case Have, Request, Cancel:
		return fmt.Sprintf("%s [index=%d]", msg.ID, msg.Index)
	default:
		return msg.ID.String()
	}
}
