package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString generates a random hexadecimal string of the given size.
// The resulting string is twice as long as size, since each byte expands to
// two hex characters. It returns an error if the random source fails.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WipeByteArray overwrites the contents of b with zeros. It is used to drop
// plaintext secrets from memory once they have been hashed or compared.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
