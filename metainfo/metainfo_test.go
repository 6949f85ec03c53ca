package metainfo

import (
	"bytes"
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	bencode "github.com/jackpal/bencode-go"
)

func TestOpenComputesInfoHashAndPieceHashes(t *testing.T) {
	pieceA := bytes.Repeat([]byte{0x01}, 16)
	pieceB := bytes.Repeat([]byte{0x02}, 16)
	hashA := sha1.Sum(pieceA)
	hashB := sha1.Sum(pieceB)

	bto := bencodeTorrent{
		Announce: "http://tracker.example/announce",
		Info: bencodeInfo{
			PieceLength: 16,
			Pieces:      string(hashA[:]) + string(hashB[:]),
			Length:      32,
			Name:        "test.bin",
		},
	}

	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, bto); err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "test.torrent")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	mi, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if mi.Announce != bto.Announce {
		t.Errorf("Announce = %q, want %q", mi.Announce, bto.Announce)
	}
	if mi.TotalLength != 32 {
		t.Errorf("TotalLength = %d, want 32", mi.TotalLength)
	}
	if mi.PieceLength != 16 {
		t.Errorf("PieceLength = %d, want 16", mi.PieceLength)
	}
	if len(mi.PieceHashes) != 2 || mi.PieceHashes[0] != hashA || mi.PieceHashes[1] != hashB {
		t.Errorf("PieceHashes = %x, want [%x %x]", mi.PieceHashes, hashA, hashB)
	}

	wantHash, err := (&bto.Info).hash()
	if err != nil {
		t.Fatalf("compute expected hash: %v", err)
	}
	if mi.InfoHash != wantHash {
		t.Errorf("InfoHash = %x, want %x", mi.InfoHash, wantHash)
	}
}

func TestOpenRejectsMalformedPieces(t *testing.T) {
	bto := bencodeTorrent{
		Info: bencodeInfo{PieceLength: 16, Pieces: "short", Length: 16, Name: "x"},
	}
	var buf bytes.Buffer
	bencode.Marshal(&buf, bto)

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.torrent")
	os.WriteFile(path, buf.Bytes(), 0o644)

	if _, err := Open(path); err == nil {
		t.Fatal("expected an error for a pieces string not a multiple of 20")
	}
}
