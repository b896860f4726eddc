package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Seeds is the provably-fair key material for a throw stream.
type Seeds struct {
	Server string `json:"server_seed"` // ASCII; never hex-decoded
	Client string `json:"client_seed"`
}

// HashServerSeed returns the hex SHA-256 commitment published before play.
func HashServerSeed(serverSeed string) string {
	if serverSeed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// NewServerSeed draws a fresh 32-byte server seed, hex encoded.
func NewServerSeed() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate server seed: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
