package document

import (
	"bytes"
	"encoding/base64"
	"unicode"
)

// DecodePayload tries the payload as standard base64 text first and falls
// back to the payload as-is. Whitespace is ignored for the base64 attempt.
func DecodePayload(p []byte) ([]byte, bool) {
	compact := bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, p)
	if len(compact) == 0 || len(compact)%4 != 0 {
		return p, false
	}

	out := make([]byte, base64.StdEncoding.DecodedLen(len(compact)))
	n, err := base64.StdEncoding.Strict().Decode(out, compact)
	if err != nil {
		return p, false
	}
	return out[:n], true
}
