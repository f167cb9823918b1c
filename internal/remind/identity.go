package remind

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"strings"
)

// LineHash is the content hash of a source line, ignoring surrounding
// whitespace.
func LineHash(line string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(line)))
	return hex.EncodeToString(sum[:])
}

// UID derives the event identifier of a source line.
func UID(line, host string) string {
	return LineHash(line) + "@" + host
}

// HashOf returns the line hash part of uid.
func HashOf(uid string) string {
	if i := strings.IndexByte(uid, '@'); i >= 0 {
		return uid[:i]
	}
	return uid
}

// DefaultHost returns the host name used as identifier suffix.
func DefaultHost() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "localhost"
	}
	return host
}
