package backend

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-dtn/dtnntp/internal/dtn"
)

func ackWireFrame(t *testing.T, src, dst, bid string, p *dtn.Payload, compress bool) *dtn.WireFrame {
	t.Helper()
	data, err := dtn.EncodePayload(p, compress)
	require.NoError(t, err)
	raw, err := cbor.Marshal(&ackFrame{Src: src, Dst: dst, Bid: bid, Data: data})
	require.NoError(t, err)
	return &dtn.WireFrame{Kind: dtn.BinaryFrame, Data: raw}
}

func TestReconcileCommitsOwnPost(t *testing.T) {
	b := newTestBackend(t, "test.group")
	fs := &fakeStream{}
	b.setStream(fs)

	require.NoError(t, b.Post(testArticle))
	n, err := b.db.CountSpool()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	frames := fs.sentFrames()
	require.Len(t, frames, 1)
	payload, err := dtn.DecodePayload(frames[0].Data)
	require.NoError(t, err)

	// the daemon echoes the bundle back with its assigned id
	src := frames[0].Source
	dst := frames[0].Destination
	bid := src + "-700000000000-1"
	b.handleFrame(ackWireFrame(t, src, dst, bid, payload, false))

	// committed under the derived message-id, spool entry cleared
	a, err := b.db.GetArticleByMessageID(dtn.MessageIDFromBundleID(bid))
	require.NoError(t, err)
	assert.Equal(t, "hello dtn", a.Subject)
	assert.Equal(t, "alice@example.org", a.FromHeader)
	assert.Equal(t, "test.group", a.Newsgroup)
	assert.Equal(t, "!localhost", a.Path)

	n, err = b.db.CountSpool()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestReconcileRemoteArticle(t *testing.T) {
	b := newTestBackend(t, "test.group")

	src := "dtn://n2/mail/other.org/bob"
	bid := src + "-700000000000-3"
	b.handleFrame(ackWireFrame(t, src, "dtn://test.group/~news", bid,
		&dtn.Payload{Subject: "from afar", Body: "remote body"}, false))

	a, err := b.db.GetArticleByMessageID(dtn.MessageIDFromBundleID(bid))
	require.NoError(t, err)
	assert.Equal(t, "bob@other.org", a.FromHeader)
	assert.Equal(t, "from afar", a.Subject)
}

func TestReconcileDuplicateIsNoOp(t *testing.T) {
	b := newTestBackend(t, "test.group")

	src := "dtn://n2/mail/other.org/bob"
	bid := src + "-700000000000-4"
	frame := ackWireFrame(t, src, "dtn://test.group/~news", bid,
		&dtn.Payload{Subject: "once", Body: "body"}, false)

	b.handleFrame(frame)
	b.handleFrame(frame)

	count, err := b.db.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestReconcileUnknownGroupDropped(t *testing.T) {
	b := newTestBackend(t, "test.group")

	src := "dtn://n2/mail/other.org/bob"
	bid := src + "-700000000000-5"
	b.handleFrame(ackWireFrame(t, src, "dtn://not.carried/~news", bid,
		&dtn.Payload{Subject: "nope", Body: "body"}, false))

	count, err := b.db.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestReconcileCompressedAck(t *testing.T) {
	b := newTestBackend(t, "test.group")
	fs := &fakeStream{}
	b.setStream(fs)
	b.cfg.Bundles.CompressBody = true

	require.NoError(t, b.Post(testArticle))
	frames := fs.sentFrames()
	require.Len(t, frames, 1)
	payload, err := dtn.DecodePayload(frames[0].Data)
	require.NoError(t, err)

	bid := frames[0].Source + "-700000000000-6"
	b.handleFrame(ackWireFrame(t, frames[0].Source, frames[0].Destination, bid, payload, true))

	// the hash join works even though the wire body was compressed
	n, err := b.db.CountSpool()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestHandleFrameText(t *testing.T) {
	b := newTestBackend(t, "test.group")

	// status lines never reach the store
	b.handleFrame(&dtn.WireFrame{Kind: dtn.TextFrame, Text: "200 subscribed"})
	b.handleFrame(&dtn.WireFrame{Kind: dtn.TextFrame, Text: "400 no such endpoint"})
	b.handleFrame(&dtn.WireFrame{Kind: dtn.TextFrame, Text: "500 internal error"})

	count, err := b.db.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestHandleFrameUndecodable(t *testing.T) {
	b := newTestBackend(t, "test.group")

	b.handleFrame(&dtn.WireFrame{Kind: dtn.BinaryFrame, Data: []byte{0xff, 0x13}})

	count, err := b.db.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
