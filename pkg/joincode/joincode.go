// Package joincode generates and normalises the short codes that admit users
// to invite-only convoys.
package joincode

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Length of every join code.
const Length = 6

// Alphabet excludes 0/O and 1/I so codes survive being read aloud.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate returns a random code of Length characters from Alphabet.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize trims and upper-cases user input so lookups are case-insensitive.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code (after Normalize) is Length alphanumerics.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
