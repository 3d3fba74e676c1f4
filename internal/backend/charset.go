package backend

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// decodeCharset re-decodes a posted body whose Content-Type names a
// non-UTF-8 charset. Clients that declare latin-1 and friends otherwise end
// up with mojibake in the store. Unknown charsets are passed through
// unchanged.
func decodeCharset(body, contentType string) string {
	charset := charsetFromContentType(contentType)
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return body
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		log.Printf("Unknown charset %q in posted article, keeping body as-is", charset)
		return body
	}
	decoded, _, err := transform.String(enc.NewDecoder(), body)
	if err != nil {
		log.Printf("Charset decode (%s) failed: %v", charset, err)
		return body
	}
	return decoded
}

// charsetFromContentType extracts the charset parameter of a Content-Type
// header value, lowercased, without quotes.
func charsetFromContentType(contentType string) string {
	for _, part := range strings.Split(contentType, ";") {
		part = strings.TrimSpace(part)
		if value, ok := strings.CutPrefix(strings.ToLower(part), "charset="); ok {
			return strings.Trim(strings.ToLower(value), `"'`)
		}
	}
	return ""
}
