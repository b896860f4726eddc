package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math"
)

// ByteGenerator streams HMAC-SHA256 bytes for one (server seed, client seed,
// nonce) triple. Each 32-byte round is HMAC(server, "client:nonce:round").
type ByteGenerator struct {
	serverSeed   string
	clientSeed   string
	nonce        uint64
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

// NewByteGenerator creates a generator positioned at the given byte cursor.
func NewByteGenerator(seeds Seeds, nonce uint64, cursor uint64) *ByteGenerator {
	bg := &ByteGenerator{
		serverSeed:   seeds.Server,
		clientSeed:   seeds.Client,
		nonce:        nonce,
		currentRound: cursor / 32,
		currentPos:   int(cursor % 32),
	}
	bg.generateRound()
	return bg
}

// Next returns the next byte from the generator
func (bg *ByteGenerator) Next() byte {
	if bg.currentPos >= 32 {
		bg.currentRound++
		bg.currentPos = 0
		bg.generateRound()
	}

	b := bg.buffer[bg.currentPos]
	bg.currentPos++
	return b
}

// Float consumes exactly 4 bytes and returns a float in [0, 1).
func (bg *ByteGenerator) Float() float64 {
	var b [4]byte
	for i := range b {
		b[i] = bg.Next()
	}
	return bytesToFloat(b)
}

func (bg *ByteGenerator) generateRound() {
	h := hmac.New(sha256.New, []byte(bg.serverSeed))
	fmt.Fprintf(h, "%s:%d:%d", bg.clientSeed, bg.nonce, bg.currentRound)
	copy(bg.buffer[:], h.Sum(nil))
}

// bytesToFloat reads 4 bytes as base-256 fractional digits.
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		result += float64(b) / math.Pow(256, float64(i+1))
	}
	return result
}

// Floats generates count floats starting from the given cursor.
func Floats(seeds Seeds, nonce uint64, cursor uint64, count int) []float64 {
	bg := NewByteGenerator(seeds, nonce, cursor)
	floats := make([]float64, count)
	for i := range floats {
		floats[i] = bg.Float()
	}
	return floats
}
