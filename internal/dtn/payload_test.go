package dtn

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadPlain(t *testing.T) {
	p := &Payload{
		Subject:    "hello",
		Body:       "line one\nline two",
		References: "<a@b.dtn>",
	}
	data, err := EncodePayload(p, false)
	require.NoError(t, err)

	got, err := DecodePayload(data)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPayloadCompressed(t *testing.T) {
	p := &Payload{
		Subject:    "hello",
		Body:       "a body long enough to be worth compressing, repeated. repeated. repeated.",
		References: "",
		ReplyTo:    "list@example.org",
	}
	data, err := EncodePayload(p, true)
	require.NoError(t, err)

	// the wire map must carry the flag and a byte-string body
	var m map[string]interface{}
	require.NoError(t, cbor.Unmarshal(data, &m))
	assert.Equal(t, true, m["compressed"])
	_, isBytes := m["body"].([]byte)
	assert.True(t, isBytes)

	got, err := DecodePayload(data)
	require.NoError(t, err)
	assert.Equal(t, p.Body, got.Body)
	assert.Equal(t, p.ReplyTo, got.ReplyTo)
}

func TestPayloadByteBodyWithoutFlag(t *testing.T) {
	data, err := cbor.Marshal(map[string]interface{}{
		"subject":    "x",
		"references": "",
		"body":       []byte{0x78, 0x9c},
	})
	require.NoError(t, err)

	_, err = DecodePayload(data)
	assert.Error(t, err)
}

func TestPayloadMissingBody(t *testing.T) {
	data, err := cbor.Marshal(map[string]interface{}{"subject": "x"})
	require.NoError(t, err)

	_, err = DecodePayload(data)
	assert.Error(t, err)
}

func TestPayloadGarbage(t *testing.T) {
	_, err := DecodePayload([]byte{0xff, 0x00, 0x13})
	assert.Error(t, err)
}
