// Package config holds the engine's tunables and the teacher's own
// discovery/progress toggles in one place, the way alice.Config did,
// generalized to also cover the constants spec names explicitly.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Defaults mirror spec.md's named constants.
const (
	DefaultMaxBacklog  = 5
	DefaultBlockSize   = 16 * 1024
	DefaultPieceDeadline = 30 * time.Second
)

// Config bundles everything the coordinator and its workers need that
// isn't derived from the metainfo or the peer list.
type Config struct {
	// Peer discovery.
	UseTrackers bool
	UseDHT      bool

	// Output.
	ShowDownloadProgress bool

	// Engine tunables (spec.md §4.4).
	MaxBacklog     int
	BlockSize      int
	PieceDeadline  time.Duration

	// WorkerLimit caps W independently of 2*NumCPU, mainly for tests
	// that want a deterministic worker count; zero means "unset, use
	// the formula W = min(num_pieces, 2*cpu_count, len(peers))".
	WorkerLimit int
}

// Default returns the client's out-of-the-box configuration: trackers
// on, DHT off (supplementary only, per spec.md's DHT non-goal for the
// core engine), a progress bar on, and the spec's pipeline constants.
func Default() Config {
	return Config{
		UseTrackers:          true,
		UseDHT:               false,
		ShowDownloadProgress: true,
		MaxBacklog:           DefaultMaxBacklog,
		BlockSize:            DefaultBlockSize,
		PieceDeadline:        DefaultPieceDeadline,
	}
}

// Validate rejects configurations that can never produce a download.
func (c Config) Validate() error {
	if !c.UseTrackers && !c.UseDHT {
		return fmt.Errorf("config: enable at least one of trackers or DHT for peer discovery")
	}
	if c.MaxBacklog <= 0 {
		return fmt.Errorf("config: MaxBacklog must be positive, got %d", c.MaxBacklog)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("config: BlockSize must be positive, got %d", c.BlockSize)
	}
	if c.PieceDeadline <= 0 {
		return fmt.Errorf("config: PieceDeadline must be positive, got %s", c.PieceDeadline)
	}
	return nil
}

// WorkerCount implements W = min(num_pieces, 2*cpu_count, len(peers)),
// spec.md §4.6 step 3, honoring WorkerLimit as an additional cap when set.
func (c Config) WorkerCount(numPieces, numPeers int) int {
	w := numPieces
	if cpuCap := 2 * runtime.NumCPU(); cpuCap < w {
		w = cpuCap
	}
	if numPeers < w {
		w = numPeers
	}
	if c.WorkerLimit > 0 && c.WorkerLimit < w {
		w = c.WorkerLimit
	}
	if w < 0 {
		w = 0
	}
	return w
}
