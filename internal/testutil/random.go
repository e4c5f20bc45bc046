package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RandomString returns n random hex characters.
func RandomString(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)[:n]
}

// RandomEmail returns a unique email address for test fixtures.
func RandomEmail() string {
	return fmt.Sprintf("test-%s@example.com", RandomString(12))
}
