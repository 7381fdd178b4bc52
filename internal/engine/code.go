package engine

import (
	"crypto/rand"
	"math/big"
)

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of a human-shareable room code.
const CodeLength = 5

// NewRoomCode mints an uppercase alphanumeric room code. Codes are drawn
// uniformly; uniqueness is probabilistic, and a collision just means two
// parties share a lobby earlier than expected.
func NewRoomCode() (string, error) {
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code), nil
}
