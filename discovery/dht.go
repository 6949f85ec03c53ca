// Package discovery wraps github.com/nictuku/dht as a supplementary,
// opt-in peer-discovery collaborator. spec.md's Non-goals exclude DHT
// from the core engine; this stays an outer, disabled-by-default
// source of the same []peerconn.Endpoint shape the tracker produces,
// grounded on the teacher's own alice/discover.go.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	gonictukudht "github.com/nictuku/dht"

	"github.com/leechd/leechd/metainfo"
	"github.com/leechd/leechd/peerconn"
)

// requeryInterval matches the teacher's own fixed five-second cadence
// (alice/discover.go's requestDHTPeers).
const requeryInterval = 5 * time.Second

// DHT streams peer endpoints for mi's info hash onto peers until
// stop is closed. It never blocks the caller: both the node's internal
// request loop and the result drain run on their own goroutines.
func DHT(mi *metainfo.MetaInfo, peers chan<- []peerconn.Endpoint, stop <-chan struct{}) error {
	node, err := gonictukudht.New(nil)
	if err != nil {
		return fmt.Errorf("discovery: create dht node: %w", err)
	}
	if err := node.Start(); err != nil {
		return fmt.Errorf("discovery: start dht node: %w", err)
	}

	infoHash := gonictukudht.InfoHash(string(mi.InfoHash[:]))

	go drainResults(node, peers, stop)
	go func() {
		ticker := time.NewTicker(requeryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				node.PeersRequest(string(infoHash), false)
			}
		}
	}()

	return nil
}

func drainResults(node *gonictukudht.DHT, peers chan<- []peerconn.Endpoint, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case results, ok := <-node.PeersRequestResults:
			if !ok {
				return
			}
			for _, addrs := range results {
				batch := make([]peerconn.Endpoint, 0, len(addrs))
				for _, raw := range addrs {
					if ep, err := toEndpoint(gonictukudht.DecodePeerAddress(raw)); err == nil {
						batch = append(batch, ep)
					}
				}
				if len(batch) > 0 {
					peers <- batch
				}
			}
		}
	}
}

func toEndpoint(hostport string) (peerconn.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return peerconn.Endpoint{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return peerconn.Endpoint{}, err
	}
	ip := net.ParseIP(strings.TrimSpace(host))
	if ip == nil {
		return peerconn.Endpoint{}, fmt.Errorf("discovery: invalid ip %q", host)
	}
	return peerconn.Endpoint{IP: ip, Port: uint16(port)}, nil
}
