package util

import (
	"encoding/base64"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC so that display names compare and sort consistently
// regardless of how the client composed them.
func Normalize(s string) string {
	return norm.NFKC.String(s)
}

// B64Encode encodes binary payloads for the text wire format. Every blob
// crossing a process boundary in this system is standard base64.
func B64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func B64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
