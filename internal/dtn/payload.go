package dtn

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Payload is the article content carried in a bundle's payload block. Only
// subject, body and references travel on the wire (plus reply_to when the
// poster set one); every other NNTP header is reconstructed from BP7
// metadata on the receiving side.
type Payload struct {
	Subject    string
	Body       string
	References string
	ReplyTo    string
}

// EncodePayload serializes a payload to its CBOR wire form. With compress
// set, the body is zlib-compressed and the map carries "compressed": true.
func EncodePayload(p *Payload, compress bool) ([]byte, error) {
	m := map[string]interface{}{
		"subject":    p.Subject,
		"references": p.References,
	}
	if p.ReplyTo != "" {
		m["reply_to"] = p.ReplyTo
	}
	if compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write([]byte(p.Body)); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		m["body"] = buf.Bytes()
		m["compressed"] = true
	} else {
		m["body"] = p.Body
	}
	return cbor.Marshal(m)
}

// DecodePayload parses a CBOR payload map, transparently decompressing the
// body when the "compressed" flag is set. The returned body is always plain
// text; spool hashes are computed over this form on both paths.
func DecodePayload(data []byte) (*Payload, error) {
	var m map[string]interface{}
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode payload CBOR: %w", err)
	}

	p := &Payload{
		Subject:    stringField(m, "subject"),
		References: stringField(m, "references"),
		ReplyTo:    stringField(m, "reply_to"),
	}

	compressed, _ := m["compressed"].(bool)
	switch body := m["body"].(type) {
	case string:
		p.Body = body
	case []byte:
		if !compressed {
			return nil, fmt.Errorf("payload body is a byte string but not flagged compressed")
		}
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload body: %w", err)
		}
		defer zr.Close()
		plain, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload body: %w", err)
		}
		p.Body = string(plain)
	case nil:
		return nil, fmt.Errorf("payload has no body field")
	default:
		return nil, fmt.Errorf("payload body has unexpected type %T", body)
	}

	return p, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
