package dtn

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Bundle is the subset of an RFC 9171 bundle this gateway cares about: the
// addressing and creation timestamp from the primary block plus the raw
// payload block data.
type Bundle struct {
	Source         string
	Destination    string
	Timestamp      int64 // DTN time, milliseconds since 2000-01-01 UTC
	SequenceNumber int64
	Payload        []byte
}

// ID reconstructs the DTNd bundle id "<src>-<timestamp>-<sequence>".
func (b *Bundle) ID() string {
	return fmt.Sprintf("%s-%d-%d", b.Source, b.Timestamp, b.SequenceNumber)
}

const payloadBlockType = 1

// DecodeBundle parses the CBOR encoding of a BP7 bundle: an array whose
// first element is the primary block and whose remaining elements are
// canonical blocks. Only the payload block (type 1) is extracted; other
// extension blocks are ignored.
func DecodeBundle(data []byte) (*Bundle, error) {
	var blocks []cbor.RawMessage
	if err := cbor.Unmarshal(data, &blocks); err != nil {
		return nil, &TransportError{Op: "decode bundle", Err: err}
	}
	if len(blocks) < 2 {
		return nil, &TransportError{Op: "decode bundle",
			Err: fmt.Errorf("bundle has %d blocks, need primary and payload", len(blocks))}
	}

	b := &Bundle{}
	if err := b.decodePrimary(blocks[0]); err != nil {
		return nil, err
	}

	for _, raw := range blocks[1:] {
		var block []cbor.RawMessage
		if err := cbor.Unmarshal(raw, &block); err != nil {
			return nil, &TransportError{Op: "decode canonical block", Err: err}
		}
		// canonical block: [type, number, flags, crc-type, data, crc?]
		if len(block) < 5 {
			continue
		}
		var blockType int
		if err := cbor.Unmarshal(block[0], &blockType); err != nil || blockType != payloadBlockType {
			continue
		}
		if err := cbor.Unmarshal(block[4], &b.Payload); err != nil {
			return nil, &TransportError{Op: "decode payload block", Err: err}
		}
		return b, nil
	}

	return nil, &TransportError{Op: "decode bundle", Err: fmt.Errorf("bundle carries no payload block")}
}

// decodePrimary parses the primary block:
// [version, flags, crc-type, destination, source, report-to, [time, seq], lifetime, ...]
func (b *Bundle) decodePrimary(raw cbor.RawMessage) error {
	var primary []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &primary); err != nil {
		return &TransportError{Op: "decode primary block", Err: err}
	}
	if len(primary) < 8 {
		return &TransportError{Op: "decode primary block",
			Err: fmt.Errorf("primary block has %d fields, need at least 8", len(primary))}
	}

	var version int
	if err := cbor.Unmarshal(primary[0], &version); err != nil || version != 7 {
		return &TransportError{Op: "decode primary block",
			Err: fmt.Errorf("unsupported bundle protocol version %d", version)}
	}

	var err error
	if b.Destination, err = decodeEID(primary[3]); err != nil {
		return err
	}
	if b.Source, err = decodeEID(primary[4]); err != nil {
		return err
	}

	var creation [2]int64
	if err := cbor.Unmarshal(primary[6], &creation); err != nil {
		return &TransportError{Op: "decode creation timestamp", Err: err}
	}
	b.Timestamp = creation[0]
	b.SequenceNumber = creation[1]
	return nil
}

// decodeEID parses a BP7 endpoint id [scheme, ssp]. Scheme 1 is "dtn" with a
// text ssp ("//node/service" or 0 for dtn:none); scheme 2 is "ipn" with a
// numeric pair.
func decodeEID(raw cbor.RawMessage) (string, error) {
	var eid []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &eid); err != nil || len(eid) != 2 {
		return "", &TransportError{Op: "decode endpoint id", Err: fmt.Errorf("malformed EID")}
	}

	var scheme int
	if err := cbor.Unmarshal(eid[0], &scheme); err != nil {
		return "", &TransportError{Op: "decode endpoint id", Err: err}
	}

	switch scheme {
	case 1:
		var ssp string
		if err := cbor.Unmarshal(eid[1], &ssp); err != nil {
			// dtn:none encodes the ssp as the integer 0
			var none int
			if err2 := cbor.Unmarshal(eid[1], &none); err2 == nil && none == 0 {
				return "dtn:none", nil
			}
			return "", &TransportError{Op: "decode endpoint id", Err: err}
		}
		return "dtn:" + ssp, nil
	case 2:
		var pair [2]uint64
		if err := cbor.Unmarshal(eid[1], &pair); err != nil {
			return "", &TransportError{Op: "decode endpoint id", Err: err}
		}
		return fmt.Sprintf("ipn:%d.%d", pair[0], pair[1]), nil
	default:
		return "", &TransportError{Op: "decode endpoint id",
			Err: fmt.Errorf("unknown EID scheme %d", scheme)}
	}
}
