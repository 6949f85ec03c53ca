// Package metainfo parses a single-file .torrent metainfo file into
// the shape the downloader consumes: info hash, announce URL, piece
// length/hashes, and total length. Multi-file torrents are an explicit
// Non-goal (spec.md §1).
package metainfo

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"os"

	bencode "github.com/jackpal/bencode-go"
)

// MetaInfo is the parsed, ready-to-use contract spec.md §6 names as
// "Inputs consumed by the core."
type MetaInfo struct {
	Announce     string
	AnnounceList []string
	InfoHash     [20]byte
	PieceLength  uint32
	PieceHashes  [][20]byte
	TotalLength  uint64
	Name         string
}

type bencodeInfo struct {
	PieceLength int    `bencode:"piece length"`
	Pieces      string `bencode:"pieces"`
	Length      int    `bencode:"length"`
	Name        string `bencode:"name"`
	Private     bool   `bencode:"private,omitempty"`
}

type bencodeTorrent struct {
	Announce     string      `bencode:"announce"`
	AnnounceList [][]string  `bencode:"announce-list,omitempty"`
	Info         bencodeInfo `bencode:"info"`
}

// Open reads and parses the .torrent file at path.
func Open(path string) (*MetaInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("metainfo: open %s: %w", path, err)
	}
	defer f.Close()

	var bto bencodeTorrent
	if err := bencode.Unmarshal(f, &bto); err != nil {
		return nil, fmt.Errorf("metainfo: decode %s: %w", path, err)
	}

	return bto.toMetaInfo()
}

func (b *bencodeInfo) hash() ([20]byte, error) {
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, *b); err != nil {
		return [20]byte{}, fmt.Errorf("metainfo: re-bencode info dict: %w", err)
	}
	return sha1.Sum(buf.Bytes()), nil
}

func (b *bencodeInfo) pieceHashes() ([][20]byte, error) {
	const hashLen = 20
	raw := []byte(b.Pieces)
	if len(raw)%hashLen != 0 {
		return nil, fmt.Errorf("metainfo: pieces string length %d not a multiple of %d", len(raw), hashLen)
	}

	hashes := make([][20]byte, len(raw)/hashLen)
	for i := range hashes {
		copy(hashes[i][:], raw[i*hashLen:(i+1)*hashLen])
	}
	return hashes, nil
}

func flattenAnnounceList(list [][]string) []string {
	flat := make([]string, 0, len(list))
	for _, tier := range list {
		if len(tier) > 0 {
			flat = append(flat, tier[0])
		}
	}
	return flat
}

func (bto *bencodeTorrent) toMetaInfo() (*MetaInfo, error) {
	infoHash, err := bto.Info.hash()
	if err != nil {
		return nil, err
	}
	pieceHashes, err := bto.Info.pieceHashes()
	if err != nil {
		return nil, err
	}
	if bto.Info.PieceLength <= 0 {
		return nil, fmt.Errorf("metainfo: non-positive piece length %d", bto.Info.PieceLength)
	}

	return &MetaInfo{
		Announce:     bto.Announce,
		AnnounceList: flattenAnnounceList(bto.AnnounceList),
		InfoHash:     infoHash,
		PieceLength:  uint32(bto.Info.PieceLength),
		PieceHashes:  pieceHashes,
		TotalLength:  uint64(bto.Info.Length),
		Name:         bto.Info.Name,
	}, nil
}
