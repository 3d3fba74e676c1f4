package dtn

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// Frame is an outbound bundle submission on the WebSocket channel, encoded
// as a CBOR map {src, dst, delivery_notification, lifetime, data}.
type Frame struct {
	Source               string `cbor:"src"`
	Destination          string `cbor:"dst"`
	DeliveryNotification bool   `cbor:"delivery_notification"`
	Lifetime             int64  `cbor:"lifetime"`
	Data                 []byte `cbor:"data"`
}

// FrameKind distinguishes the two inbound frame flavors.
type FrameKind int

const (
	// TextFrame carries a status line with a three-digit prefix.
	TextFrame FrameKind = iota
	// BinaryFrame carries a CBOR-encoded bundle acknowledgement map.
	BinaryFrame
)

// WireFrame is one inbound frame in wire order.
type WireFrame struct {
	Kind FrameKind
	Text string
	Data []byte
}

// StreamClient is the duplex WebSocket channel to DTNd. Frames are read in
// FIFO wire order; concurrent senders are serialized by a mutex. A
// StreamClient is replaced, never reused, after a connection loss.
type StreamClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// DialStream connects to the daemon's WebSocket endpoint at
// ws://host:port<wsPath> and switches the channel to binary bundle framing.
func DialStream(host string, port int, wsPath string) (*StreamClient, error) {
	u := fmt.Sprintf("ws://%s:%d%s", host, port, wsPath)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		return nil, &TransportError{Op: "dial stream", Temporary: true, Err: err}
	}

	s := &StreamClient{conn: conn}
	// select the CBOR data plane before anything else
	if err := s.writeText("/data"); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *StreamClient) writeText(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return &TransportError{Op: "write", Temporary: true, Err: err}
	}
	return nil
}

// Subscribe asks the daemon to deliver bundles addressed to the endpoint
// over this stream.
func (s *StreamClient) Subscribe(endpoint string) error {
	return s.writeText("/subscribe " + endpoint)
}

// Send submits one bundle to the daemon.
func (s *StreamClient) Send(f *Frame) error {
	data, err := cbor.Marshal(f)
	if err != nil {
		return &TransportError{Op: "encode frame", Err: err}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return &TransportError{Op: "send", Temporary: true, Err: err}
	}
	return nil
}

// Next blocks for the next inbound frame. Any read failure is temporary and
// collapses the stream; the supervisor reconnects.
func (s *StreamClient) Next() (*WireFrame, error) {
	msgType, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, &TransportError{Op: "recv", Temporary: true, Err: err}
	}
	switch msgType {
	case websocket.TextMessage:
		return &WireFrame{Kind: TextFrame, Text: string(data)}, nil
	case websocket.BinaryMessage:
		return &WireFrame{Kind: BinaryFrame, Data: data}, nil
	default:
		return nil, &TransportError{Op: "recv", Err: fmt.Errorf("unexpected message type %d", msgType)}
	}
}

// Close tears the connection down.
func (s *StreamClient) Close() error {
	return s.conn.Close()
}
