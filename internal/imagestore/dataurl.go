package imagestore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotDataURL is returned when a string is not a data: URL.
var ErrNotDataURL = errors.New("imagestore: not a data URL")

// DataURL is a decoded data: URL.
type DataURL struct {
	MIME string
	Data []byte
}

// IsDataURL reports whether v is an inline data: URL.
func IsDataURL(v string) bool {
	return strings.HasPrefix(v, "data:")
}

// ParseDataURL decodes "data:[<mime>][;base64],<payload>".
func ParseDataURL(v string) (DataURL, error) {
	if !IsDataURL(v) {
		return DataURL{}, ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(v[len("data:"):], ",")
	if !ok {
		return DataURL{}, fmt.Errorf("%w: missing payload separator", ErrNotDataURL)
	}

	isBase64 := false
	mime := "text/plain"
	for i, part := range strings.Split(meta, ";") {
		switch {
		case i == 0 && part != "":
			mime = part
		case part == "base64":
			isBase64 = true
		}
	}

	var data []byte
	if isBase64 {
		var err error
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return DataURL{}, fmt.Errorf("decode base64 payload: %w", err)
			}
		}
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return DataURL{}, fmt.Errorf("decode payload: %w", err)
		}
		data = []byte(s)
	}
	return DataURL{MIME: mime, Data: data}, nil
}

// EncodeDataURL builds a base64 data: URL.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
