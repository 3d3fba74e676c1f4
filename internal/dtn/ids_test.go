package dtn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBundleID(t *testing.T) {
	src, ts, seq := ParseBundleID("dtn://n1/mail/example.org/alice-1700000000-7")
	assert.Equal(t, "dtn://n1/mail/example.org/alice", src)
	assert.Equal(t, "1700000000", ts)
	assert.Equal(t, "7", seq)

	// source containing dashes still splits on the last two
	src, ts, seq = ParseBundleID("dtn://my-node/mail/x.org/a-b-123-4")
	assert.Equal(t, "dtn://my-node/mail/x.org/a-b", src)
	assert.Equal(t, "123", ts)
	assert.Equal(t, "4", seq)
}

func TestMessageIDFromBundleID(t *testing.T) {
	mid := MessageIDFromBundleID("dtn://n1/mail/example.org/alice-1700000000-7")
	assert.Equal(t, "<1700000000-7@n1-mail-example.org-alice.dtn>", mid)

	// deterministic: same bundle id, same message id
	assert.Equal(t, mid, MessageIDFromBundleID("dtn://n1/mail/example.org/alice-1700000000-7"))
}

func TestSenderURI(t *testing.T) {
	uri, err := SenderURI("dtn://n1/", "alice@example.org")
	require.NoError(t, err)
	assert.Equal(t, "dtn://n1/mail/example.org/alice", uri)

	// missing trailing slash on the node id is tolerated
	uri, err = SenderURI("dtn://n1", "alice@example.org")
	require.NoError(t, err)
	assert.Equal(t, "dtn://n1/mail/example.org/alice", uri)

	_, err = SenderURI("dtn://n1/", "not-an-email")
	assert.Error(t, err)
	_, err = SenderURI("dtn://n1/", "@example.org")
	assert.Error(t, err)
}

func TestEmailFromURI(t *testing.T) {
	email, err := EmailFromURI("dtn://n2/mail/other.org/bob")
	require.NoError(t, err)
	assert.Equal(t, "bob@other.org", email)

	email, err = EmailFromURI("//n2/mail/other.org/bob")
	require.NoError(t, err)
	assert.Equal(t, "bob@other.org", email)

	_, err = EmailFromURI("bogus")
	assert.Error(t, err)
	_, err = EmailFromURI("dtn://nodeonly")
	assert.Error(t, err)
}

func TestSenderURIRoundTrip(t *testing.T) {
	uri, err := SenderURI("dtn://n1/", "carol@mail.example.com")
	require.NoError(t, err)
	email, err := EmailFromURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "carol@mail.example.com", email)
}

func TestGroupEndpoint(t *testing.T) {
	assert.Equal(t, "dtn://monntpy.users/~news", GroupEndpoint("monntpy.users"))
	assert.Equal(t, "monntpy.users", GroupFromDestination("dtn://monntpy.users/~news"))
	assert.Equal(t, "monntpy.users", GroupFromDestination("//monntpy.users/~news"))
}

func TestSpoolHash(t *testing.T) {
	h1 := SpoolHash("dtn://n1/mail/x.org/a", "dtn://g/~news", "subj", "body", "")
	h2 := SpoolHash("dtn://n1/mail/x.org/a", "dtn://g/~news", "subj", "body", "")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	h3 := SpoolHash("dtn://n1/mail/x.org/a", "dtn://g/~news", "subj", "body.", "")
	assert.NotEqual(t, h1, h3)
}

func TestDTNTimeRoundTrip(t *testing.T) {
	wall := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	ms := toDTNTime(wall)
	assert.Equal(t, wall, FromDTNTime(ms))

	// the DTN epoch itself
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), FromDTNTime(0))
}

func TestTimestampFromBundleID(t *testing.T) {
	ts := TimestampFromBundleID("dtn://n1/mail/x.org/a-86400000-0")
	assert.Equal(t, time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC), ts)

	assert.True(t, TimestampFromBundleID("garbage").IsZero())
}
