// Package peerconn owns one TCP connection to one peer: the handshake,
// the post-handshake bitfield/have priming, and the typed send
// operations. A Session is owned exclusively by a single worker
// goroutine for its whole lifetime; nothing here is safe to share
// across goroutines.
package peerconn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/leechd/leechd/bitfield"
	"github.com/leechd/leechd/wire"
)

// ErrClientConnFailed covers any failure during connect/handshake/the
// first post-handshake message that isn't a protocol-specific error.
var ErrClientConnFailed = errors.New("peerconn: connection failed")

// ErrInvalidPieceIndex is returned by HasPiece for an index the
// session's bitfield can't represent.
var ErrInvalidPieceIndex = errors.New("peerconn: invalid piece index")

const handshakeTimeout = 5 * time.Second

// Endpoint is an IPv4 peer address as handed back by peer discovery.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), fmt.Sprintf("%d", e.Port))
}

// Session is the client-side half of one peer wire connection.
type Session struct {
	conn      net.Conn
	peer      Endpoint
	peerHas   bitfield.Bitfield
	numPieces int
	choked    bool
	peerID    [20]byte
	infoHash  [20]byte
}

// Connect opens a TCP connection to peer, performs the handshake, and
// reads the priming messages the peer sends before anything else: zero
// or more HAVEs followed by a BITFIELD, whose bits are merged with those
// HAVEs. A peer that closes the connection before sending any priming
// message is accepted as "has nothing". Any other message after the
// HAVEs (keep-alives aside), or no BITFIELD within handshakeTimeout,
// fails the connection. numPieces bounds HasPiece/SetPiece against the
// torrent's actual piece count, independent of how short the peer's
// own bitfield happens to be.
func Connect(peerAddr Endpoint, localPeerID, infoHash [20]byte, numPieces int) (*Session, error) {
	conn, err := net.DialTimeout("tcp", peerAddr.String(), handshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrClientConnFailed, peerAddr, err)
	}

	s := &Session{
		conn:      conn,
		peer:      peerAddr,
		choked:    true,
		infoHash:  infoHash,
		numPieces: numPieces,
	}

	if err := s.handshake(localPeerID, infoHash); err != nil {
		conn.Close()
		return nil, err
	}

	if err := s.primeBitfield(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) handshake(localPeerID, infoHash [20]byte) error {
	s.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	if err := wire.WriteHandshake(s.conn, infoHash, localPeerID); err != nil {
		return fmt.Errorf("%w: send handshake: %v", ErrClientConnFailed, err)
	}

	resp, err := wire.ReadHandshake(s.conn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClientConnFailed, err)
	}
	if !bytes.Equal(resp.InfoHash[:], infoHash[:]) {
		return fmt.Errorf("%w: info_hash mismatch: got %x, want %x", ErrClientConnFailed, resp.InfoHash, infoHash)
	}
	// peer_id is not validated: it's sent verbatim and not parsed, per spec.md §4.2.
	s.peerID = resp.PeerID
	return nil
}

// primeBitfield consumes zero or more HAVE messages followed by one
// BITFIELD before the first REQUEST-eligible state. Anything
// else encountered first is forwarded back to the caller as an error;
// a clean EOF with nothing sent means the peer has nothing.
func (s *Session) primeBitfield() error {
	s.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	receivedAny := false
	for {
		msg, err := wire.ReadMessage(s.conn)
		if err != nil {
			if errors.Is(err, io.EOF) && !receivedAny {
				// The peer closed the connection without sending a
				// single priming message. The bitfield is optional in
				// BEP-3 (a peer with nothing need not send one), so this
				// is "peer has nothing," not a protocol error.
				return nil
			}
			return fmt.Errorf("%w: priming message: %v", ErrClientConnFailed, err)
		}
		if msg == nil {
			// keep-alive before anything meaningful; keep waiting.
			continue
		}
		receivedAny = true
		switch msg.ID {
		case wire.Bitfield:
			merged := bitfield.Bitfield(append([]byte(nil), msg.Bitfield...))
			if len(merged) < len(s.peerHas) {
				merged = append(merged, make([]byte, len(s.peerHas)-len(merged))...)
			}
			// Keep the pieces announced by HAVEs read before the BITFIELD.
			for i, b := range s.peerHas {
				merged[i] |= b
			}
			s.peerHas = merged
			return nil
		case wire.Have:
			s.peerHas.SetPiece(int(msg.Index))
			continue
		default:
			return fmt.Errorf("%w: expected bitfield or have, got %s", ErrClientConnFailed, msg.ID)
		}
	}
}

// HasPiece reports the local view of whether the peer has piece index.
// index outside [0, numPieces) is ErrInvalidPieceIndex; a peer whose
// bitfield is shorter than numPieces simply reads as "doesn't have it"
// for the missing tail, which is a valid sparse bitfield, not an error.
func (s *Session) HasPiece(index int) (bool, error) {
	if index < 0 || index >= s.numPieces {
		return false, fmt.Errorf("%w: %d (have %d pieces)", ErrInvalidPieceIndex, index, s.numPieces)
	}
	return s.peerHas.HasPiece(index), nil
}

// SetPiece records that the peer now has piece index, per a HAVE
// message received during download.
func (s *Session) SetPiece(index int) {
	s.peerHas.SetPiece(index)
}

// Choked reports whether the peer is currently choking this side.
func (s *Session) Choked() bool {
	return s.choked
}

// SetChoked updates the local choke/unchoke state as observed from the
// peer's CHOKE/UNCHOKE messages.
func (s *Session) SetChoked(choked bool) {
	s.choked = choked
}

// Read reads the next message off the wire, blocking until one arrives
// or the connection errors out.
func (s *Session) Read() (*wire.Message, error) {
	return wire.ReadMessage(s.conn)
}

// SetDeadline forwards to the underlying connection, letting a caller
// (the piece downloader) bound how long a Read above may block.
func (s *Session) SetDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}

// Close releases the underlying TCP connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) send(msg *wire.Message) error {
	return wire.WriteMessage(s.conn, msg)
}

// SendInterested sends INTERESTED.
func (s *Session) SendInterested() error { return s.send(&wire.Message{ID: wire.Interested}) }

// SendNotInterested sends NOT_INTERESTED.
func (s *Session) SendNotInterested() error { return s.send(&wire.Message{ID: wire.NotInterested}) }

// SendUnchoke sends UNCHOKE.
func (s *Session) SendUnchoke() error { return s.send(&wire.Message{ID: wire.Unchoke}) }

// SendChoke sends CHOKE.
func (s *Session) SendChoke() error { return s.send(&wire.Message{ID: wire.Choke}) }

// SendHave announces that this side now has piece index.
func (s *Session) SendHave(index uint32) error { return s.send(wire.NewHave(index)) }

// SendRequest asks the peer for a block. Only meaningful while the
// session is unchoked; callers are responsible for checking Choked().
func (s *Session) SendRequest(index, begin, length uint32) error {
	return s.send(wire.NewRequest(index, begin, length))
}

// SendCancel cancels an outstanding request.
func (s *Session) SendCancel(index, begin, length uint32) error {
	return s.send(wire.NewCancel(index, begin, length))
}
