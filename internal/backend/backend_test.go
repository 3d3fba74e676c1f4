package backend

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-dtn/dtnntp/internal/config"
	"github.com/go-dtn/dtnntp/internal/database"
	"github.com/go-dtn/dtnntp/internal/dtn"
)

// newTestBackend builds a backend over an in-memory store with the given
// groups reconciled. No connection is established; tests plug in fakes.
func newTestBackend(t *testing.T, groups ...string) *Backend {
	t.Helper()

	cfg := config.Default()
	cfg.Backend.DBURL = ":memory:"
	cfg.Usenet.Newsgroups = groups
	cfg.Usenet.Email = "alice@example.org"
	cfg.Backoff.ConstantWait = time.Millisecond

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	b := New(cfg, db)
	require.NoError(t, b.reconcileGroups())
	b.nodeID = "dtn://n1/"
	return b
}

func (b *Backend) setStream(s StreamClient) {
	b.mu.Lock()
	b.stream = s
	b.mu.Unlock()
}

func (b *Backend) setControl(c ControlClient) {
	b.mu.Lock()
	b.control = c
	b.mu.Unlock()
}

// fakeStream records sent frames and subscriptions. A zero value never
// returns from Next; construct with newFakeStream when the stream must be
// closable, or set nextErr to simulate a collapsing stream.
type fakeStream struct {
	mu         sync.Mutex
	sent       []*dtn.Frame
	subscribed []string
	sendErr    error
	nextErr    error
	closed     chan struct{}
	closeOnce  sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{closed: make(chan struct{})}
}

func (f *fakeStream) Subscribe(endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, endpoint)
	return nil
}

func (f *fakeStream) Send(fr *dtn.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeStream) Next() (*dtn.WireFrame, error) {
	if f.nextErr != nil {
		return nil, f.nextErr
	}
	if f.closed == nil {
		select {} // tests feed frames through handleFrame directly
	}
	<-f.closed
	return nil, errors.New("stream closed")
}

func (f *fakeStream) Close() error {
	if f.closed != nil {
		f.closeOnce.Do(func() { close(f.closed) })
	}
	return nil
}

func (f *fakeStream) sentFrames() []*dtn.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*dtn.Frame(nil), f.sent...)
}

func (f *fakeStream) subscribedEndpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

// fakeControl serves canned bundle listings and downloads.
type fakeControl struct {
	mu         sync.Mutex
	nodeID     string
	bundles    map[string][]string // group name -> bundle ids
	store      map[string]*dtn.Bundle
	listErr    error
	registered []string
}

func (f *fakeControl) Ping() error { return nil }

func (f *fakeControl) NodeID() (string, error) { return f.nodeID, nil }

func (f *fakeControl) Register(endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, endpoint)
	return nil
}

func (f *fakeControl) registeredEndpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.registered...)
}

func (f *fakeControl) ListBundles(substring string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.bundles[substring], nil
}

func (f *fakeControl) Download(bundleID string) (*dtn.Bundle, error) {
	b, ok := f.store[bundleID]
	if !ok {
		return nil, fmt.Errorf("no bundle %s", bundleID)
	}
	return b, nil
}
