// Package uid provides random identifier generation for ipfsgate.
package uid

import (
	"crypto/rand"
	"fmt"
	"time"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const upperAlphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// UploadID generates a 12-character alphanumeric multipart upload ID
// using crypto/rand.
func UploadID() string {
	return sample(alphanumeric, 12)
}

// AccessKey generates an 8-character upper-case alphanumeric access key
// for the credentials subcommand.
func AccessKey() string {
	return sample(upperAlphanumeric, 8)
}

// SecretKey generates a 16-character upper-case alphanumeric secret key
// for the credentials subcommand.
func SecretKey() string {
	return sample(upperAlphanumeric, 16)
}

// sample draws n characters uniformly from the given alphabet.
func sample(alphabet string, n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// Fallback: timestamp-based ID. Should never happen with crypto/rand.
		return fmt.Sprintf("%032x", time.Now().UnixNano())[:n]
	}
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}
