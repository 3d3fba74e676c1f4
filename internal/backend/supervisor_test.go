package backend

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-dtn/dtnntp/internal/config"
	"github.com/go-dtn/dtnntp/internal/database"
	"github.com/go-dtn/dtnntp/internal/models"
)

func TestReconcileGroupsCreatesAndDeletes(t *testing.T) {
	cfg := config.Default()
	cfg.Usenet.Newsgroups = []string{"keep.group", "new.group"}

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// pre-seed one group that stays and one that was dropped from the config
	keep, err := db.InsertNewsgroup("keep.group", "stays")
	require.NoError(t, err)
	gone, err := db.InsertNewsgroup("gone.group", "dropped")
	require.NoError(t, err)
	_, err = db.InsertArticle(&models.Article{
		NewsgroupID: gone.ID,
		FromHeader:  "a@b.org",
		Subject:     "orphan",
		Body:        "x",
		MessageID:   "<orphan@n.dtn>",
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	b := New(cfg, db)
	require.NoError(t, b.reconcileGroups())

	groups, err := db.GetNewsgroups()
	require.NoError(t, err)
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"keep.group", "new.group"}, names)

	// the dropped group's articles went with it
	count, err := db.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// the surviving group kept its identity
	assert.Equal(t, keep.ID, b.Group("keep.group").ID)
	assert.NotNil(t, b.Group("new.group"))
	assert.Nil(t, b.Group("gone.group"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "draining", Draining.String())
}

func TestStatusSnapshot(t *testing.T) {
	b := newTestBackend(t, "test.group")
	b.started = time.Now()

	st := b.Status()
	assert.Equal(t, "disconnected", st.State)
	assert.Equal(t, "dtn://n1/", st.NodeID)
	assert.Equal(t, 1, st.Groups)
	assert.Equal(t, int64(0), st.SpoolDepth)
	assert.Equal(t, int64(0), st.Articles)
}

// fastBackoff keeps supervisor tests from sitting in reconnection sleeps.
func fastBackoff(b *Backend) {
	b.cfg.Backoff.InitialWait = time.Millisecond
	b.cfg.Backoff.MaxRetries = 3
	b.cfg.Backoff.ReconnectionPause = time.Millisecond
}

// An article posted while the stream has never been up must still go out on
// the first successful connect.
func TestSpoolDrainedOnFirstStreamConnect(t *testing.T) {
	b := newTestBackend(t, "test.group")
	fastBackoff(b)

	fc := &fakeControl{nodeID: "dtn://n1/"}
	fs := newFakeStream()
	var allow atomic.Bool
	b.dialControl = func() ControlClient { return fc }
	b.dialStream = func() (StreamClient, error) {
		if !allow.Load() {
			return nil, errors.New("connection refused")
		}
		return fs, nil
	}

	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)

	// post before the stream ever came up: spooled, delivery fails softly
	require.NoError(t, b.Post(testArticle))
	allow.Store(true)

	require.Eventually(t, func() bool {
		return len(fs.sentFrames()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// A collapsed stream means DTNd may have restarted, so the endpoints have to
// be registered again once control is back.
func TestReRegisterAfterStreamLoss(t *testing.T) {
	b := newTestBackend(t, "test.group")
	fastBackoff(b)

	fc := &fakeControl{nodeID: "dtn://n1/"}
	broken := &fakeStream{nextErr: errors.New("connection reset")}
	healthy := newFakeStream()
	var dials atomic.Int32
	b.dialControl = func() ControlClient { return fc }
	b.dialStream = func() (StreamClient, error) {
		if dials.Add(1) == 1 {
			return broken, nil
		}
		return healthy, nil
	}

	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)

	require.Eventually(t, func() bool {
		return len(healthy.subscribedEndpoints()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	count := 0
	for _, ep := range fc.registeredEndpoints() {
		if ep == "dtn://test.group/~news" {
			count++
		}
	}
	assert.GreaterOrEqual(t, count, 2)
}

func TestRegisterEndpoints(t *testing.T) {
	b := newTestBackend(t, "test.group")
	fc := &fakeControl{nodeID: "dtn://n1/"}
	b.setControl(fc)

	require.NoError(t, b.registerEndpoints())

	assert.Contains(t, fc.registered, "dtn://test.group/~news")
	assert.Contains(t, fc.registered, "dtn://n1/mail/example.org/alice")
}
