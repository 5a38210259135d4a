package message

import (
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

// The default lookup follows the WHATWG table, which maps "latin1" to
// windows-1252. Mail declaring latin1 means ISO-8859-1.
func init() {
	charset.RegisterEncoding("latin1", charmap.ISO8859_1)
}
