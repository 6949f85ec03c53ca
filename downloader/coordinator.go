// Package downloader implements the concurrent piece-download engine:
// the per-piece download pipeline (piece.go), and the coordinator that
// seeds work, runs the per-peer worker loops, drains verified pieces
// into a whole-file buffer, and writes the result to disk.
package downloader

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/leechd/leechd/config"
	"github.com/leechd/leechd/peerconn"
	"github.com/leechd/leechd/progress"
	"github.com/leechd/leechd/queue"
)

// Plan is the slice of MetaInfo the coordinator actually consumes,
// spec.md §6's "Inputs consumed by the core."
type Plan struct {
	InfoHash    [20]byte
	PieceLength uint32
	TotalLength uint64
	PieceHashes [][20]byte
}

// NumPieces is |piece_hashes|.
func (p Plan) NumPieces() int { return len(p.PieceHashes) }

// PieceSize implements compute_piece_size(i), spec.md §3/§4.6 step 2:
// PieceLength for every piece but the last, which gets whatever
// remains of TotalLength.
func (p Plan) PieceSize(index int) uint32 {
	numWhole := uint64(p.TotalLength) / uint64(p.PieceLength)
	if uint64(index) < numWhole {
		return p.PieceLength
	}
	return uint32(p.TotalLength - numWhole*uint64(p.PieceLength))
}

// Coordinator owns the Tasks/Results queues and the whole-file buffer
// for one download, spec.md §4.6.
type Coordinator struct {
	Plan     Plan
	PeerID   [20]byte
	Cfg      config.Config
	Reporter progress.Reporter

	tasks   *queue.Queue[PieceTask]
	results *queue.Queue[CompletedPiece]
}

// Run seeds the task queue from Plan, spawns one worker per peer (up
// to W = min(num_pieces, 2*cpu_count, len(peers))), drains completed
// pieces into a whole-file buffer, and returns that buffer once every
// piece has been verified and every worker has exited. It never
// returns fewer than NumPieces pieces: if every worker exits before
// the download completes, Run
// blocks forever on the Results queue, per spec.md §4.6's documented
// (not "fixed") failure semantics for total peer exhaustion.
func (c *Coordinator) Run(peers []peerconn.Endpoint) ([]byte, error) {
	c.tasks = queue.New[PieceTask]()
	c.results = queue.New[CompletedPiece]()

	for i, hash := range c.Plan.PieceHashes {
		c.tasks.Enqueue(PieceTask{
			Index:           uint32(i),
			ExpectedHash:    hash,
			EffectiveLength: c.Plan.PieceSize(i),
		})
	}

	numPieces := c.Plan.NumPieces()
	w := c.Cfg.WorkerCount(numPieces, len(peers))
	if w == 0 {
		return nil, fmt.Errorf("downloader: no workers available (pieces=%d peers=%d)", numPieces, len(peers))
	}

	var wg sync.WaitGroup
	for i := 0; i < w; i++ {
		wg.Add(1)
		go func(peer peerconn.Endpoint) {
			defer wg.Done()
			c.runWorker(peer)
		}(peers[i])
	}

	buf := make([]byte, c.Plan.TotalLength)
	for completed := 0; completed < numPieces; completed++ {
		res, ok := c.results.Dequeue()
		if !ok {
			return nil, fmt.Errorf("downloader: results queue closed before all %d pieces completed", numPieces)
		}

		begin := uint64(res.Index) * uint64(c.Plan.PieceLength)
		copy(buf[begin:begin+uint64(len(res.Bytes))], res.Bytes)

		done := completed + 1
		if c.Reporter != nil {
			c.Reporter.Report(done, numPieces, int(res.Index))
		}

		if done == numPieces {
			// No more work will ever be produced; wake any worker
			// still blocked on an empty Tasks queue so it can exit.
			c.tasks.Close()
		}
	}

	wg.Wait()
	return buf, nil
}

// WriteFile persists buf to path, truncating any existing file,
// spec.md §4.6 step 7.
func WriteFile(path string, buf []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("downloader: create output file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("downloader: write output file: %w", err)
	}
	return nil
}

func (c *Coordinator) runWorker(peer peerconn.Endpoint) {
	sess, err := peerconn.Connect(peer, c.PeerID, c.Plan.InfoHash, c.Plan.NumPieces())
	if err != nil {
		log.Printf("could not handshake with %s, disconnecting: %v", peer, err)
		return
	}
	defer sess.Close()
	log.Printf("completed handshake with %s", peer)

	if err := sess.SendUnchoke(); err != nil {
		log.Printf("peer %s: send unchoke failed: %v", peer, err)
		return
	}
	if err := sess.SendInterested(); err != nil {
		log.Printf("peer %s: send interested failed: %v", peer, err)
		return
	}

	for {
		task, ok := c.tasks.Dequeue()
		if !ok {
			return
		}

		has, err := sess.HasPiece(int(task.Index))
		if err != nil || !has {
			c.tasks.Enqueue(task)
			continue
		}

		buf, ok, err := downloadPiece(sess, task, c.Cfg)
		if err != nil {
			// Peer-fatal I/O error: requeue the in-flight task before
			// exiting so it is never lost, then give up this connection.
			log.Printf("peer %s: exiting on piece #%d: %v", peer, task.Index, err)
			c.tasks.Enqueue(task)
			return
		}
		if !ok {
			log.Printf("peer %s: piece #%d stalled past deadline, requeueing", peer, task.Index)
			c.tasks.Enqueue(task)
			continue
		}

		if !checkIntegrity(task, buf) {
			log.Printf("peer %s: piece #%d failed integrity check, requeueing", peer, task.Index)
			c.tasks.Enqueue(task)
			continue
		}

		if err := sess.SendHave(task.Index); err != nil {
			log.Printf("peer %s: send have failed: %v", peer, err)
		}
		c.results.Enqueue(CompletedPiece{Index: task.Index, Bytes: buf})
	}
}
