// Command leechd downloads a single-file torrent given its .torrent
// metainfo file, the way alice's own main.go does, generalized with
// flags for the discovery and progress toggles spec.md leaves as
// configuration rather than hardcoding.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/leechd/leechd/config"
	"github.com/leechd/leechd/discovery"
	"github.com/leechd/leechd/downloader"
	"github.com/leechd/leechd/metainfo"
	"github.com/leechd/leechd/peerconn"
	"github.com/leechd/leechd/peerid"
	"github.com/leechd/leechd/progress"
	"github.com/leechd/leechd/tracker"
)

func main() {
	var (
		useTrackers = flag.Bool("trackers", true, "discover peers via the torrent's announce url")
		useDHT      = flag.Bool("dht", false, "discover additional peers via the BitTorrent DHT")
		showBar     = flag.Bool("progress-bar", true, "render a live progress bar instead of plain log lines")
		maxBacklog  = flag.Int("max-backlog", config.DefaultMaxBacklog, "max pipelined in-flight block requests per peer")
		blockSize   = flag.Int("block-size", config.DefaultBlockSize, "block size requested per REQUEST message")
		dhtWait     = flag.Duration("dht-wait", 10*time.Second, "how long to collect DHT peers before starting the download")
	)
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		log.Fatal("usage: leechd [flags] <input.torrent> <output-path>")
	}
	inputPath, outputPath := args[0], args[1]

	cfg := config.Default()
	cfg.UseTrackers = *useTrackers
	cfg.UseDHT = *useDHT
	cfg.ShowDownloadProgress = *showBar
	cfg.MaxBacklog = *maxBacklog
	cfg.BlockSize = *blockSize
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	mi, err := metainfo.Open(inputPath)
	if err != nil {
		log.Fatal(err)
	}

	localPeerID := peerid.Generate()

	peers, err := discoverPeers(mi, localPeerID, cfg, *dhtWait)
	if err != nil {
		log.Fatal(err)
	}
	if len(peers) == 0 {
		log.Fatal("leechd: no peers discovered")
	}
	log.Printf("discovered %d peers", len(peers))

	var reporter progress.Reporter
	if cfg.ShowDownloadProgress {
		reporter = progress.NewBarReporter(len(mi.PieceHashes))
	} else {
		reporter = progress.NewLogReporter(log.Printf)
	}
	defer reporter.Close()

	coord := &downloader.Coordinator{
		Plan: downloader.Plan{
			InfoHash:    mi.InfoHash,
			PieceLength: mi.PieceLength,
			TotalLength: mi.TotalLength,
			PieceHashes: mi.PieceHashes,
		},
		PeerID:   localPeerID,
		Cfg:      cfg,
		Reporter: reporter,
	}

	buf, err := coord.Run(peers)
	if err != nil {
		log.Fatal(err)
	}

	if err := downloader.WriteFile(outputPath, buf); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s (%d bytes)", outputPath, len(buf))
}

// discoverPeers combines the tracker's announce response with whatever
// the DHT turns up in dhtWait, per cfg's toggles. Either source alone is
// enough; cfg.Validate already rejected the case where neither is on.
func discoverPeers(mi *metainfo.MetaInfo, localPeerID [20]byte, cfg config.Config, dhtWait time.Duration) ([]peerconn.Endpoint, error) {
	var peers []peerconn.Endpoint

	if cfg.UseTrackers {
		trackerPeers, err := tracker.Announce(mi, localPeerID)
		if err != nil {
			log.Printf("tracker announce failed: %v", err)
		} else {
			peers = append(peers, trackerPeers...)
		}
	}

	if cfg.UseDHT {
		found := make(chan []peerconn.Endpoint, 16)
		stop := make(chan struct{})
		if err := discovery.DHT(mi, found, stop); err != nil {
			log.Printf("dht discovery failed to start: %v", err)
		} else {
			timeout := time.After(dhtWait)
		collecting:
			for {
				select {
				case batch := <-found:
					peers = append(peers, batch...)
				case <-timeout:
					break collecting
				}
			}
		}
		close(stop)
	}

	return dedupeEndpoints(peers), nil
}

func dedupeEndpoints(peers []peerconn.Endpoint) []peerconn.Endpoint {
	seen := make(map[string]bool, len(peers))
	out := make([]peerconn.Endpoint, 0, len(peers))
	for _, p := range peers {
		key := p.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
