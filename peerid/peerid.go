// Package peerid generates the local 20-byte peer identifier sent
// verbatim in the handshake.
package peerid

import (
	"fmt"
	"math/rand"
	"time"
)

// clientTag identifies this client to peers; it is never parsed by
// them, only logged by the curious.
const clientTag = "LD"

const clientVersion = "0001"

const symbols = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890"

var source = rand.New(rand.NewSource(time.Now().UnixNano()))

// Generate returns a 20-byte id shaped like Azureus-style client ids,
// e.g. "-LD0001-" followed by a random-looking printable tail.
func Generate() [20]byte {
	var id [20]byte
	prefix := fmt.Sprintf("-%s%s-", clientTag, clientVersion)
	n := copy(id[:], prefix)

	for i := n; i < len(id); i++ {
		id[i] = symbols[source.Intn(len(symbols))]
	}
	return id
}

// RandomBytes returns size random-looking printable bytes, used for
// UDP tracker transaction/key fields that just need to be unlikely to
// collide, not cryptographically random.
func RandomBytes(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = symbols[source.Intn(len(symbols))]
	}
	return b
}
