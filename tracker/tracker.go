// Package tracker implements the peer-discovery collaborator spec.md
// §6 names: given a MetaInfo, return a list of IPv4 peer endpoints.
// Both the BEP-3 HTTP announce and the BEP-15 UDP announce are
// supported, grounded on the teacher's own tracker/connect/announce
// code (alice/file/tracker.go, alice/file/udp.go, alice/connect.go,
// alice/announce/announce.go).
package tracker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	bencode "github.com/jackpal/bencode-go"

	"github.com/leechd/leechd/metainfo"
	"github.com/leechd/leechd/peerconn"
	"github.com/leechd/leechd/peerid"
)

const requestTimeout = 5 * time.Second

// Announce contacts mi's tracker (HTTP or UDP, dispatched on the
// announce URL's scheme) and returns the peers it advertises.
func Announce(mi *metainfo.MetaInfo, localPeerID [20]byte) ([]peerconn.Endpoint, error) {
	base, err := url.Parse(mi.Announce)
	if err != nil {
		return nil, fmt.Errorf("tracker: parse announce url %q: %w", mi.Announce, err)
	}

	switch base.Scheme {
	case "http", "https":
		return announceHTTP(*base, mi, localPeerID)
	case "udp":
		return announceUDP(base.Host, mi, localPeerID)
	default:
		return nil, fmt.Errorf("tracker: unsupported announce scheme %q", base.Scheme)
	}
}

type httpTrackerResponse struct {
	Interval int    `bencode:"interval"`
	Peers    string `bencode:"peers"`
}

func announceHTTP(base url.URL, mi *metainfo.MetaInfo, localPeerID [20]byte) ([]peerconn.Endpoint, error) {
	params := url.Values{
		"info_hash":  []string{string(mi.InfoHash[:])},
		"peer_id":    []string{string(localPeerID[:])},
		"port":       []string{"6881"},
		"uploaded":   []string{"0"},
		"downloaded": []string{"0"},
		"compact":    []string{"1"},
		"left":       []string{strconv.FormatUint(mi.TotalLength, 10)},
	}
	base.RawQuery = params.Encode()

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Get(base.String())
	if err != nil {
		return nil, fmt.Errorf("tracker: http announce: %w", err)
	}
	defer resp.Body.Close()

	var tr httpTrackerResponse
	if err := bencode.Unmarshal(resp.Body, &tr); err != nil {
		return nil, fmt.Errorf("tracker: decode tracker response: %w", err)
	}

	return unmarshalPeers([]byte(tr.Peers))
}

// unmarshalPeers decodes the compact peers format: 6 bytes per peer,
// 4 for IPv4 then 2 for port, both big-endian.
func unmarshalPeers(compact []byte) ([]peerconn.Endpoint, error) {
	const peerSize = 6
	if len(compact)%peerSize != 0 {
		return nil, fmt.Errorf("tracker: malformed compact peers list of length %d", len(compact))
	}

	n := len(compact) / peerSize
	peers := make([]peerconn.Endpoint, n)
	for i := 0; i < n; i++ {
		off := i * peerSize
		peers[i] = peerconn.Endpoint{
			IP:   net.IP(compact[off : off+4]),
			Port: binary.BigEndian.Uint16(compact[off+4 : off+6]),
		}
	}
	return peers, nil
}

// announceUDP implements the BEP-15 UDP tracker protocol's two round
// trips: connect, then announce.

const (
	udpProtocolID = 0x41727101980
	actionConnect = 0
	actionAnnounce = 1
)

func announceUDP(hostport string, mi *metainfo.MetaInfo, localPeerID [20]byte) ([]peerconn.Endpoint, error) {
	raddr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, fmt.Errorf("tracker: resolve udp tracker %q: %w", hostport, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("tracker: dial udp tracker: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(requestTimeout))

	transactionID := peerid.RandomBytes(4)
	connectReq := make([]byte, 16)
	binary.BigEndian.PutUint64(connectReq[0:8], udpProtocolID)
	binary.BigEndian.PutUint32(connectReq[8:12], actionConnect)
	copy(connectReq[12:16], transactionID)

	if _, err := conn.Write(connectReq); err != nil {
		return nil, fmt.Errorf("tracker: send connect request: %w", err)
	}

	connectResp := make([]byte, 16)
	if _, err := conn.Read(connectResp); err != nil {
		return nil, fmt.Errorf("tracker: read connect response: %w", err)
	}
	if !bytes.Equal(connectResp[4:8], transactionID) {
		return nil, fmt.Errorf("tracker: connect transaction id mismatch")
	}
	if action := binary.BigEndian.Uint32(connectResp[0:4]); action != actionConnect {
		return nil, fmt.Errorf("tracker: expected connect action, got %d", action)
	}
	connectionID := connectResp[8:16]

	announceTxID := peerid.RandomBytes(4)
	announceReq := make([]byte, 98)
	copy(announceReq[0:8], connectionID)
	binary.BigEndian.PutUint32(announceReq[8:12], actionAnnounce)
	copy(announceReq[12:16], announceTxID)
	copy(announceReq[16:36], mi.InfoHash[:])
	copy(announceReq[36:56], localPeerID[:])
	// downloaded(56:64) stays zero; left(64:72) is everything left to
	// fetch; uploaded(72:80), event(80:84), ip(84:88) all stay zero.
	binary.BigEndian.PutUint64(announceReq[64:72], mi.TotalLength)
	copy(announceReq[88:92], peerid.RandomBytes(4)) // key
	numWant := int32(-1)
	binary.BigEndian.PutUint32(announceReq[92:96], uint32(numWant)) // num_want: -1 means "as many as the tracker likes"
	binary.BigEndian.PutUint16(announceReq[96:98], 6881)

	if _, err := conn.Write(announceReq); err != nil {
		return nil, fmt.Errorf("tracker: send announce request: %w", err)
	}

	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("tracker: read announce response: %w", err)
	}
	resp := buf[:n]
	if len(resp) < 20 {
		return nil, fmt.Errorf("tracker: announce response too short: %d bytes", len(resp))
	}
	if !bytes.Equal(resp[4:8], announceTxID) {
		return nil, fmt.Errorf("tracker: announce transaction id mismatch")
	}
	if action := binary.BigEndian.Uint32(resp[0:4]); action != actionAnnounce {
		return nil, fmt.Errorf("tracker: expected announce action, got %d", action)
	}

	return unmarshalPeers(resp[20:])
}
