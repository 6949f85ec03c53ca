package downloader

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/leechd/leechd/config"
	"github.com/leechd/leechd/wire"
)

// session is the subset of *peerconn.Session the piece pipeline needs,
// narrowed to an interface so tests can drive it with a fake.
type session interface {
	HasPiece(index int) (bool, error)
	SetPiece(index int)
	Choked() bool
	SetChoked(choked bool)
	Read() (*wire.Message, error)
	SendRequest(index, begin, length uint32) error
	SetDeadline(t time.Time) error
}

// downloadPiece runs the pipelined block-request loop for one piece,
// spec.md §4.4's download_piece. It returns ok==false on a 30-second
// stall (the caller should requeue); it returns a non-nil error only
// for a peer-fatal failure: an I/O error, or a PIECE block for another
// index or past the end of the piece (the caller should requeue *and*
// exit its worker loop, per the corrected task-loss design in DESIGN.md).
func downloadPiece(sess session, task PieceTask, cfg config.Config) (buf []byte, ok bool, err error) {
	buf = make([]byte, task.EffectiveLength)
	deadline := time.Now().Add(cfg.PieceDeadline)

	if err := sess.SetDeadline(deadline); err != nil {
		return nil, false, fmt.Errorf("downloader: set deadline: %w", err)
	}
	defer sess.SetDeadline(time.Time{})

	var downloaded, requested, backlog uint32
	total := task.EffectiveLength

	for downloaded < total {
		if !sess.Choked() {
			for backlog < uint32(cfg.MaxBacklog) && requested < total {
				blockSize := uint32(cfg.BlockSize)
				if remaining := total - requested; remaining < blockSize {
					blockSize = remaining
				}
				if err := sess.SendRequest(task.Index, requested, blockSize); err != nil {
					return nil, false, fmt.Errorf("downloader: send request: %w", err)
				}
				requested += blockSize
				backlog++
			}
		}

		msg, readErr := sess.Read()
		if readErr != nil {
			var netErr net.Error
			if errors.As(readErr, &netErr) && netErr.Timeout() {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("downloader: read message: %w", readErr)
		}
		if msg == nil {
			continue // keep-alive
		}

		switch msg.ID {
		case wire.Piece:
			if msg.Index != task.Index {
				return nil, false, fmt.Errorf("downloader: piece for index %d, expected %d", msg.Index, task.Index)
			}
			end := msg.Begin + uint32(len(msg.Block))
			if end > uint32(len(buf)) {
				return nil, false, fmt.Errorf("downloader: block [%d:%d] overruns piece of length %d", msg.Begin, end, len(buf))
			}
			copy(buf[msg.Begin:end], msg.Block)
			downloaded += uint32(len(msg.Block))
			if backlog > 0 {
				backlog--
			}
		case wire.Unchoke:
			sess.SetChoked(false)
		case wire.Choke:
			// Outstanding requests are implicitly lost; backlog
			// accounting is not reset here, per spec.md §9 — the
			// deadline above eventually forces a retry.
			sess.SetChoked(true)
		case wire.Have:
			sess.SetPiece(int(msg.Index))
		default:
			// ignored
		}
	}

	return buf, true, nil
}

// checkIntegrity verifies buf against the piece's expected SHA-1,
// spec.md §4.5.
func checkIntegrity(task PieceTask, buf []byte) bool {
	sum := sha1.Sum(buf)
	return bytes.Equal(sum[:], task.ExpectedHash[:])
}
