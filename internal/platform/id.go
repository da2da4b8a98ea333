package platform

import (
	"crypto/rand"

	"github.com/google/uuid"
)

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func NewID() string {
	return uuid.New().String()
}

// NewSecret returns a random alphanumeric string of the given length, used
// for RCON passwords and raw API keys.
func NewSecret(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	for i := range b {
		b[i] = secretAlphabet[b[i]%byte(len(secretAlphabet))]
	}
	return string(b)
}
