package peerconn

import (
	"net"
	"testing"
	"time"

	"github.com/leechd/leechd/wire"
)

func TestConnectAcceptsBitfieldFirst(t *testing.T) {
	var infoHash, localID, remoteID [20]byte
	copy(infoHash[:], "infoinfoinfoinfoinfo")
	copy(remoteID[:], "remoteremoteremotere")

	sess, conn := dialViaPipe(t, infoHash, localID, remoteID, func(server net.Conn) {
		wire.WriteMessage(server, wire.NewBitfield([]byte{0b10100000}))
	})
	defer conn.Close()

	has, err := sess.HasPiece(0)
	if err != nil || !has {
		t.Errorf("HasPiece(0) = %v, %v; want true, nil", has, err)
	}
	has, err = sess.HasPiece(1)
	if err != nil || has {
		t.Errorf("HasPiece(1) = %v, %v; want false, nil", has, err)
	}
}

func TestConnectAcceptsHavesBeforeBitfield(t *testing.T) {
	var infoHash, localID, remoteID [20]byte
	copy(infoHash[:], "infoinfoinfoinfoinfo")

	sess, conn := dialViaPipe(t, infoHash, localID, remoteID, func(server net.Conn) {
		wire.WriteMessage(server, wire.NewHave(2))
		wire.WriteMessage(server, wire.NewHave(5))
		wire.WriteMessage(server, wire.NewBitfield([]byte{0, 0}))
	})
	defer conn.Close()

	for _, idx := range []int{2, 5} {
		has, err := sess.HasPiece(idx)
		if err != nil || !has {
			t.Errorf("HasPiece(%d) = %v, %v; want true, nil", idx, has, err)
		}
	}
}

func TestConnectAcceptsAbsentBitfield(t *testing.T) {
	var infoHash, localID, remoteID [20]byte
	copy(infoHash[:], "infoinfoinfoinfoinfo")

	sess, conn := dialViaPipe(t, infoHash, localID, remoteID, func(server net.Conn) {
		server.Close()
	})
	defer conn.Close()

	has, err := sess.HasPiece(0)
	if err != nil || has {
		t.Errorf("HasPiece(0) = %v, %v; want false, nil for a peer that sent nothing before closing", has, err)
	}
}

func TestHasPieceOutOfRange(t *testing.T) {
	var infoHash, localID, remoteID [20]byte
	copy(infoHash[:], "infoinfoinfoinfoinfo")

	sess, conn := dialViaPipe(t, infoHash, localID, remoteID, func(server net.Conn) {
		wire.WriteMessage(server, wire.NewBitfield([]byte{0xFF}))
	})
	defer conn.Close()

	if _, err := sess.HasPiece(1000); err == nil {
		t.Fatal("expected ErrInvalidPieceIndex for an out-of-range index")
	}
}

// dialViaPipe builds a Session around one side of a net.Pipe the way
// Connect would around a real dialed socket, without touching the
// network, then runs prime against the other side as a goroutine.
func dialViaPipe(t *testing.T, infoHash, localID, remoteID [20]byte, prime func(net.Conn)) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()

	go func() {
		hs, err := wire.ReadHandshake(server)
		if err != nil {
			t.Errorf("server: read handshake: %v", err)
			return
		}
		if hs.InfoHash != infoHash {
			t.Errorf("server: info_hash mismatch")
		}
		wire.WriteHandshake(server, infoHash, remoteID)
		prime(server)
	}()

	client.SetDeadline(time.Now().Add(2 * time.Second))
	sess := &Session{conn: client, choked: true, infoHash: infoHash, numPieces: 1000}
	if err := sess.handshake(localID, infoHash); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if err := sess.primeBitfield(); err != nil {
		t.Fatalf("primeBitfield failed: %v", err)
	}
	client.SetDeadline(time.Time{})
	return sess, client
}
