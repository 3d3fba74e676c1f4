package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-dtn/dtnntp/internal/dtn"
)

func storedBundle(t *testing.T, src, group string, ts, seq int64, subject string) *dtn.Bundle {
	t.Helper()
	data, err := dtn.EncodePayload(&dtn.Payload{Subject: subject, Body: "body of " + subject}, false)
	require.NoError(t, err)
	return &dtn.Bundle{
		Source:         src,
		Destination:    dtn.GroupEndpoint(group),
		Timestamp:      ts,
		SequenceNumber: seq,
		Payload:        data,
	}
}

func TestIngest(t *testing.T) {
	b := newTestBackend(t, "test.group")

	src := "dtn://n2/mail/other.org/bob"
	bid1 := src + "-700000000000-1"
	bid2 := src + "-700000000000-2"
	fc := &fakeControl{
		bundles: map[string][]string{"test.group": {bid1, bid2}},
		store: map[string]*dtn.Bundle{
			bid1: storedBundle(t, src, "test.group", 700000000000, 1, "first"),
			bid2: storedBundle(t, src, "test.group", 700000000000, 2, "second"),
		},
	}
	b.setControl(fc)

	require.NoError(t, b.Ingest())

	count, err := b.db.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	a, err := b.db.GetArticleByMessageID(dtn.MessageIDFromBundleID(bid1))
	require.NoError(t, err)
	assert.Equal(t, "bob@other.org", a.FromHeader)
	assert.Equal(t, "first", a.Subject)
	assert.Equal(t, dtn.FromDTNTime(700000000000), a.CreatedAt.UTC())

	// a second pass over the same daemon state inserts nothing
	require.NoError(t, b.Ingest())
	count, err = b.db.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestIngestSkipsUncarriedGroup(t *testing.T) {
	b := newTestBackend(t, "test.group")

	src := "dtn://n2/mail/other.org/bob"
	bid := src + "-700000000000-9"
	fc := &fakeControl{
		bundles: map[string][]string{"test.group": {bid}},
		store: map[string]*dtn.Bundle{
			bid: storedBundle(t, src, "other.group", 700000000000, 9, "misrouted"),
		},
	}
	b.setControl(fc)

	require.NoError(t, b.Ingest())

	count, err := b.db.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestIngestSkipsFailedDownloads(t *testing.T) {
	b := newTestBackend(t, "test.group")

	src := "dtn://n2/mail/other.org/bob"
	good := src + "-700000000000-1"
	missing := src + "-700000000000-2"
	fc := &fakeControl{
		bundles: map[string][]string{"test.group": {good, missing}},
		store: map[string]*dtn.Bundle{
			good: storedBundle(t, src, "test.group", 700000000000, 1, "survivor"),
		},
	}
	b.setControl(fc)

	// the broken bundle is skipped, the rest of the batch still commits
	require.NoError(t, b.Ingest())

	count, err := b.db.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIngestSkipsMismatchedBundleID(t *testing.T) {
	b := newTestBackend(t, "test.group")

	src := "dtn://n2/mail/other.org/bob"
	bid := src + "-700000000000-1"
	fc := &fakeControl{
		bundles: map[string][]string{"test.group": {bid}},
		store: map[string]*dtn.Bundle{
			// decoded bundle carries a different sequence than the listing
			bid: storedBundle(t, src, "test.group", 700000000000, 7, "tampered"),
		},
	}
	b.setControl(fc)

	require.NoError(t, b.Ingest())

	count, err := b.db.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestIngestTemporaryListError(t *testing.T) {
	b := newTestBackend(t, "test.group")
	fc := &fakeControl{
		listErr: &dtn.TransportError{Op: "list", Temporary: true, Err: assert.AnError},
	}
	b.setControl(fc)

	// a daemon outage aborts the cycle so the supervisor can reconnect
	assert.Error(t, b.Ingest())
}

func TestIngestWithoutControl(t *testing.T) {
	b := newTestBackend(t, "test.group")
	assert.ErrorIs(t, b.Ingest(), dtn.ErrNotConnected)
}

func TestIngestThenReconcileSameBundle(t *testing.T) {
	b := newTestBackend(t, "test.group")

	src := "dtn://n2/mail/other.org/bob"
	bid := src + "-700000000000-1"
	fc := &fakeControl{
		bundles: map[string][]string{"test.group": {bid}},
		store: map[string]*dtn.Bundle{
			bid: storedBundle(t, src, "test.group", 700000000000, 1, "seen twice"),
		},
	}
	b.setControl(fc)
	require.NoError(t, b.Ingest())

	// the same bundle arriving over the stream later is deduplicated
	b.handleFrame(ackWireFrame(t, src, "dtn://test.group/~news", bid,
		&dtn.Payload{Subject: "seen twice", Body: "body of seen twice"}, false))

	count, err := b.db.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
