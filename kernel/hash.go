package kernel

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

func Sha512(data string) string {
	sum := sha512.Sum512([]byte(data))
	return hex.EncodeToString(sum[:])
}

// MatchesSha512 compares the digest of plain with a stored hex digest in
// constant time. An empty stored digest never matches.
func MatchesSha512(plain, hexDigest string) bool {
	if hexDigest == "" {
		return false
	}
	got := Sha512(plain)
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(hexDigest))) == 1
}
