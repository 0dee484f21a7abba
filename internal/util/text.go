package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SanitizeTitle drops NUL and control characters (Postgres text columns reject
// NUL) and folds the title onto a single trimmed line.
func SanitizeTitle(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		switch {
		case ch == '\n' || ch == '\r' || ch == '\t':
			b.WriteRune(' ')
		case ch < 0x20 || ch == 0x7f:
		default:
			b.WriteRune(ch)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func SHA256Hex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}
