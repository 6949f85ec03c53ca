// Package wire implements the BEP-3 peer-wire binary framing: the
// fixed 68-byte handshake and the length-prefixed, id-tagged message
// frames. Both directions are pure functions over an io.Reader/Writer;
// nothing here touches a socket directly.
package wire

import (
	"errors"
	"fmt"
	"io"
)

// Pstr is the protocol identifier every handshake carries.
const Pstr = "BitTorrent protocol"

// HandshakeLen is the fixed wire size of a handshake frame.
const HandshakeLen = 1 + len(Pstr) + 8 + 20 + 20

// ErrBadHandshake is returned when a received handshake's pstrlen or
// pstr does not match the BitTorrent protocol identifier.
var ErrBadHandshake = errors.New("wire: bad handshake")

// Handshake is the 68-byte prelude both sides send before any message.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// EncodeHandshake writes the canonical 68-byte layout with a zeroed
// reserved field: pstrlen | pstr | reserved(8) | info_hash | peer_id.
func EncodeHandshake(infoHash, peerID [20]byte) []byte {
	buf := make([]byte, HandshakeLen)
	buf[0] = byte(len(Pstr))
	cur := 1
	cur += copy(buf[cur:], Pstr)
	cur += copy(buf[cur:], make([]byte, 8))
	cur += copy(buf[cur:], infoHash[:])
	copy(buf[cur:], peerID[:])
	return buf
}

// DecodeHandshake parses a 68-byte handshake frame already in memory.
func DecodeHandshake(buf [HandshakeLen]byte) (*Handshake, error) {
	pstrLen := int(buf[0])
	if pstrLen != len(Pstr) {
		return nil, fmt.Errorf("%w: pstrlen %d, want %d", ErrBadHandshake, pstrLen, len(Pstr))
	}
	if string(buf[1:1+pstrLen]) != Pstr {
		return nil, fmt.Errorf("%w: pstr %q", ErrBadHandshake, buf[1:1+pstrLen])
	}

	h := &Handshake{}
	off := 1 + pstrLen + 8
	copy(h.InfoHash[:], buf[off:off+20])
	copy(h.PeerID[:], buf[off+20:off+40])
	return h, nil
}

// ReadHandshake reads exactly HandshakeLen bytes from r and decodes them.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	var buf [HandshakeLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("wire: read handshake: %w", err)
	}
	return DecodeHandshake(buf)
}

// WriteHandshake encodes and writes a handshake in one call.
func WriteHandshake(w io.Writer, infoHash, peerID [20]byte) error {
	_, err := w.Write(EncodeHandshake(infoHash, peerID))
	return err
}
