package auth

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateToken64 generates a random 64-character token
func GenerateToken64() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
