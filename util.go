package csav

import (
	"encoding/hex"
	"log/slog"
)

func hexstr(b []byte) string {
	if b == nil {
		return "<nil>"
	}
	if len(b) == 0 {
		return "<empty>"
	}
	return hex.EncodeToString(b)
}

func hexAttr(key string, b []byte) slog.Attr {
	const limit = 32
	if len(b) > limit {
		return slog.String(key, hexstr(b[:limit])+"...")
	}
	return slog.String(key, hexstr(b))
}

func magicString(m uint32) string {
	b := []byte{byte(m), byte(m >> 8), byte(m >> 16), byte(m >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return "0x" + hex.EncodeToString(b)
		}
	}
	return string(b)
}
