// Package idgen generates the short, stable identifiers the engine hands
// out for event registrations. Adapted from the teacher's
// content-hash issue ID generator (same base36 encoding, same
// sha256-of-stable-content approach), generalized from "hash an issue's
// title/description/creator" to "hash whatever identifying parts the
// caller has on hand" since this domain has no title/description to key
// off of.
package idgen

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
)

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EncodeBase36 converts a byte slice to a base36 string of specified length.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	result := make([]byte, len(chars))
	for i, c := range chars {
		result[len(chars)-1-i] = c
	}
	str := string(result)

	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// New returns a short, stable identifier derived from parts, prefixed with
// prefix (e.g. "reg" for an event registration).
// Identical parts always produce the same ID; callers needing uniqueness
// across otherwise-identical calls should include a counter or nonce among
// parts.
func New(prefix string, length int, parts ...string) string {
	content := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s-%s", prefix, EncodeBase36(sum[:], length))
}
