package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// SessionCodeLength is the length of participant join codes.
const SessionCodeLength = 6

// codeAlphabet omits characters that are easy to misread on a projector (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateSessionCode returns a random join code such as "K7QW3M".
func GenerateSessionCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < SessionCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate session code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeSessionCode upper-cases and trims a code typed by a participant.
func NormalizeSessionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
