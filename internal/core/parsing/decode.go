package parsing

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type textDecoder struct {
	name   string
	decode func([]byte) (string, bool)
}

// decoders is tried in order; the first success wins.
var decoders = []textDecoder{
	{name: "utf-8", decode: func(b []byte) (string, bool) {
		if bytes.HasPrefix(b, utf8BOM) || !utf8.Valid(b) {
			return "", false
		}
		return string(b), true
	}},
	{name: "utf-8-sig", decode: func(b []byte) (string, bool) {
		if !bytes.HasPrefix(b, utf8BOM) {
			return "", false
		}
		return decodeWith(unicode.UTF8BOM, b)
	}},
	{name: "latin-1", decode: func(b []byte) (string, bool) {
		// C1 control bytes almost always mean Windows-1252 punctuation.
		for _, c := range b {
			if c >= 0x80 && c <= 0x9F {
				return "", false
			}
		}
		return decodeWith(charmap.ISO8859_1, b)
	}},
	{name: "cp1252", decode: func(b []byte) (string, bool) {
		s, ok := decodeWith(charmap.Windows1252, b)
		if !ok || strings.ContainsRune(s, utf8.RuneError) {
			return "", false
		}
		return s, true
	}},
	// Every byte maps to a Latin-1 code point, so this never fails.
	{name: "latin-1", decode: func(b []byte) (string, bool) {
		return decodeWith(charmap.ISO8859_1, b)
	}},
}

// DecodeText interprets raw bytes as text using the fallback chain
// UTF-8, UTF-8 with BOM, Latin-1, Windows-1252. Bytes that are not valid
// Windows-1252 end in unrestricted Latin-1. It returns the encoding used.
func DecodeText(data []byte) (string, string, error) {
	for _, d := range decoders {
		if s, ok := d.decode(data); ok {
			return s, d.name, nil
		}
	}
	return "", "", ErrDecode
}

func decodeWith(enc encoding.Encoding, b []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", false
	}
	return string(out), true
}
