package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestReadMessageKeepAlive(t *testing.T) {
	input := []byte{0x00, 0x00, 0x00, 0x00}
	msg, err := ReadMessage(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected keep-alive (nil message), got %v", msg)
	}

	if got := msg.Serialize(); !bytes.Equal(got, input) {
		t.Errorf("round-trip mismatch: got %x, want %x", got, input)
	}
}

func TestReadMessageHave(t *testing.T) {
	input := []byte{0x00, 0x00, 0x00, 0x05, 0x04, 0x00, 0x00, 0x00, 0xDE}
	msg, err := ReadMessage(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != Have || msg.Index != 222 {
		t.Errorf("got %+v, want Have{index=222}", msg)
	}
}

func TestReadMessageRequest(t *testing.T) {
	input := []byte{
		0x00, 0x00, 0x00, 0x0D, 0x06,
		0x00, 0x00, 0x04, 0x65,
		0x00, 0x00, 0x0B, 0xA5,
		0x00, 0x00, 0x40, 0xA4,
	}
	msg, err := ReadMessage(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != Request || msg.Index != 1125 || msg.Begin != 2981 || msg.Length != 16548 {
		t.Errorf("got %+v, want Request{index=1125 begin=2981 length=16548}", msg)
	}
}

func TestReadMessageCancel(t *testing.T) {
	input := []byte{
		0x00, 0x00, 0x00, 0x0D, 0x08,
		0x00, 0x00, 0x04, 0x65,
		0x00, 0x00, 0x0B, 0xA5,
		0x00, 0x00, 0x40, 0xA4,
	}
	msg, err := ReadMessage(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != Cancel || msg.Index != 1125 || msg.Begin != 2981 || msg.Length != 16548 {
		t.Errorf("got %+v, want Cancel{index=1125 begin=2981 length=16548}", msg)
	}
}

func TestReadMessageBitfield(t *testing.T) {
	input := []byte{0x00, 0x00, 0x00, 0x06, 0x05, 0x51, 0x00, 0x00, 0xDE, 0x00}
	msg, err := ReadMessage(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x51, 0x00, 0x00, 0xDE, 0x00}
	if msg.ID != Bitfield || !bytes.Equal(msg.Bitfield, want) {
		t.Fatalf("got %+v, want Bitfield{%x}", msg, want)
	}

	cases := map[int]bool{0: false, 1: true, 2: false, 3: true, 4: false, 5: false, 6: false, 7: true}
	bf := msg.Bitfield
	for i, want := range cases {
		if got := (bfHasPiece(bf, i)); got != want {
			t.Errorf("has_piece(%d) = %v, want %v", i, got, want)
		}
	}
}

// bfHasPiece duplicates the bit test locally so this package's tests
// don't need to import bitfield for a single assertion.
func bfHasPiece(bf []byte, index int) bool {
	byteIndex := index / 8
	offset := index % 8
	return bf[byteIndex]>>(7-offset)&1 != 0
}

func TestRoundTripAllVariants(t *testing.T) {
	msgs := []*Message{
		nil,
		{ID: Choke},
		{ID: Unchoke},
		{ID: Interested},
		{ID: NotInterested},
		NewHave(42),
		NewBitfield([]byte{0xFF, 0x00, 0x80}),
		NewRequest(1, 2, 3),
		NewPiece(1, 16384, []byte{1, 2, 3, 4}),
		NewCancel(7, 8, 9),
	}

	for _, m := range msgs {
		encoded := m.Serialize()
		got, err := ReadMessage(bytes.NewReader(encoded))
		if err != nil {
			t.Fatalf("round-trip of %v failed: %v", m, err)
		}
		if !messagesEqual(m, got) {
			t.Errorf("round-trip mismatch: sent %+v, got %+v", m, got)
		}
	}
}

func messagesEqual(a, b *Message) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID && a.Index == b.Index && a.Begin == b.Begin &&
		a.Length == b.Length && bytes.Equal(a.Block, b.Block) && bytes.Equal(a.Bitfield, b.Bitfield)
}

func TestReadMessageBadLengthForID(t *testing.T) {
	cases := map[string][]byte{
		"choke with payload":   {0x00, 0x00, 0x00, 0x02, 0x00, 0xFF},
		"have wrong length":    {0x00, 0x00, 0x00, 0x03, 0x04, 0x00, 0x00},
		"request wrong length": {0x00, 0x00, 0x00, 0x05, 0x06, 0x00, 0x00, 0x00, 0x01},
		"piece too short":      {0x00, 0x00, 0x00, 0x05, 0x07, 0x00, 0x00, 0x00, 0x01},
		"unknown id":           {0x00, 0x00, 0x00, 0x02, 0x09, 0x00},
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadMessage(bytes.NewReader(input))
			if err == nil {
				t.Fatalf("expected error for %s", name)
			}
			if !errors.Is(err, ErrInvalidMessageID) {
				t.Errorf("expected ErrInvalidMessageID, got %v", err)
			}
		})
	}
}

func TestReadMessageShortRead(t *testing.T) {
	input := []byte{0x00, 0x00, 0x00, 0x05, 0x04, 0x00}
	_, err := ReadMessage(bytes.NewReader(input))
	if err == nil {
		t.Fatal("expected error on short read")
	}
	if !errors.Is(err, ErrReadFailed) {
		t.Errorf("expected ErrReadFailed, got %v", err)
	}
}
