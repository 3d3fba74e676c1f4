// Package backend couples the NNTP reader side with the DTNd gateway: it
// supervises the two daemon channels, spools outbound posts, ingests remote
// bundles and reconciles acknowledgements into committed articles.
package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/go-dtn/dtnntp/internal/config"
	"github.com/go-dtn/dtnntp/internal/database"
	"github.com/go-dtn/dtnntp/internal/dtn"
	"github.com/go-dtn/dtnntp/internal/models"
)

// ControlClient is the request/response channel to DTNd.
type ControlClient interface {
	Ping() error
	NodeID() (string, error)
	Register(endpoint string) error
	ListBundles(substring string) ([]string, error)
	Download(bundleID string) (*dtn.Bundle, error)
}

// StreamClient is the duplex bundle channel to DTNd.
type StreamClient interface {
	Subscribe(endpoint string) error
	Send(f *dtn.Frame) error
	Next() (*dtn.WireFrame, error)
	Close() error
}

// State of the daemon connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Draining
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Draining:
		return "draining"
	default:
		return "disconnected"
	}
}

// Backend owns the client handles and all persisted state mutation paths.
// Handles are replaced, never mutated, on reconnection; other components
// obtain the current handle through accessors and must tolerate nil.
type Backend struct {
	cfg *config.Config
	db  *database.Database

	mu      sync.RWMutex
	control ControlClient
	stream  StreamClient
	state   State
	nodeID  string

	// groups is written once during startup reconciliation, read-only after
	groups map[string]*models.Newsgroup

	frames  chan *dtn.WireFrame
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time

	// dial points, swappable in tests
	dialControl func() ControlClient
	dialStream  func() (StreamClient, error)
}

// New creates a backend over the given store and configuration.
func New(cfg *config.Config, db *database.Database) *Backend {
	b := &Backend{
		cfg:    cfg,
		db:     db,
		groups: make(map[string]*models.Newsgroup),
		frames: make(chan *dtn.WireFrame, 256),
	}
	b.dialControl = func() ControlClient {
		return dtn.NewControlClient(cfg.DTNd.Host, cfg.DTNd.Port, cfg.DTNd.RESTPath)
	}
	b.dialStream = func() (StreamClient, error) {
		return dtn.DialStream(cfg.DTNd.Host, cfg.DTNd.Port, cfg.DTNd.WSPath)
	}
	return b
}

// Start brings the backend up: group reconciliation, control channel,
// endpoint registration, one synchronous ingestion, then the stream
// supervisor, reconciler worker and janitor as long-running tasks. The spool
// drain runs whenever the stream comes up, inside the stream supervisor.
// Blocks until the control channel is up.
func (b *Backend) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.started = time.Now()

	if err := b.reconcileGroups(); err != nil {
		return fmt.Errorf("failed to reconcile newsgroups: %w", err)
	}

	if err := b.connectControl(b.ctx); err != nil {
		return err
	}
	if err := b.registerEndpoints(); err != nil {
		log.Printf("Endpoint registration failed: %v", err)
	}

	if err := b.Ingest(); err != nil {
		log.Printf("Initial ingestion failed: %v", err)
	}

	b.wg.Add(3)
	go b.streamLoop()
	go b.reconcileWorker()
	go b.janitorLoop()

	return nil
}

// Stop cancels all supervised tasks and waits a bounded time for in-flight
// work to finish.
func (b *Backend) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()

	b.mu.Lock()
	if b.stream != nil {
		b.stream.Close()
		b.stream = nil
	}
	b.control = nil
	b.state = Disconnected
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("Backend shut down gracefully")
	case <-time.After(30 * time.Second):
		log.Println("Backend shutdown timeout, forcing exit")
	}
}

// reconcileGroups makes the store's group set equal the configured set:
// configured-but-missing groups are created, present-but-unconfigured groups
// are deleted (cascading their articles away).
func (b *Backend) reconcileGroups() error {
	want := make(map[string]struct{}, len(b.cfg.Usenet.Newsgroups))
	for _, name := range b.cfg.Usenet.Newsgroups {
		want[name] = struct{}{}
	}

	have, err := b.db.GetNewsgroups()
	if err != nil {
		return err
	}

	for _, g := range have {
		if _, ok := want[g.Name]; !ok {
			log.Printf("Removing newsgroup %s (no longer configured)", g.Name)
			if err := b.db.DeleteNewsgroup(g.Name); err != nil {
				return err
			}
		}
	}

	haveNames := make(map[string]*models.Newsgroup, len(have))
	for _, g := range have {
		haveNames[g.Name] = g
	}
	for name := range want {
		g, ok := haveNames[name]
		if !ok {
			log.Printf("Creating newsgroup %s", name)
			g, err = b.db.InsertNewsgroup(name, "")
			if err != nil {
				return err
			}
		}
		b.groups[name] = g
	}

	return nil
}

// connectControl acquires a control client, retrying with backoff until it
// answers or the context is cancelled.
func (b *Backend) connectControl(ctx context.Context) error {
	backoff := b.newBackoff()
	for {
		if !sleep(ctx, backoff.Next()) {
			return ctx.Err()
		}

		client := b.dialControl()
		if err := client.Ping(); err != nil {
			log.WithError(err).Warn("DTNd control connection failed")
			continue
		}

		nodeID := b.cfg.DTNd.NodeID
		if nodeID == "" {
			var err error
			nodeID, err = client.NodeID()
			if err != nil {
				log.Printf("Could not fetch DTNd node id: %v", err)
				continue
			}
		}

		b.mu.Lock()
		b.control = client
		b.nodeID = nodeID
		b.mu.Unlock()
		backoff.Reset()
		log.Printf("Connected to DTNd control at %s:%d, node id %s", b.cfg.DTNd.Host, b.cfg.DTNd.Port, nodeID)
		return nil
	}
}

// registerEndpoints announces every group endpoint plus the configured
// sender endpoint to the daemon.
func (b *Backend) registerEndpoints() error {
	control := b.currentControl()
	if control == nil {
		return dtn.ErrNotConnected
	}

	for name := range b.groups {
		if err := control.Register(dtn.GroupEndpoint(name)); err != nil {
			return err
		}
	}

	sender, err := dtn.SenderURI(b.NodeID(), b.cfg.Usenet.Email)
	if err != nil {
		return err
	}
	return control.Register(sender)
}

// streamLoop is the reconnection supervisor for the duplex channel. On loss
// of the stream both client handles are discarded, the control channel is
// reacquired and the endpoints re-registered; every connection, the first
// included, re-ingests remote bundles and re-drains the spool.
func (b *Backend) streamLoop() {
	defer b.wg.Done()

	backoff := b.newBackoff()
	for b.ctx.Err() == nil {
		b.setState(Connecting)
		if !sleep(b.ctx, backoff.Next()) {
			return
		}

		stream, err := b.dialStream()
		if err != nil {
			log.Printf("DTNd stream connection failed: %v", err)
			continue
		}

		if err := b.subscribeAll(stream); err != nil {
			log.Printf("DTNd stream subscribe failed: %v", err)
			stream.Close()
			continue
		}

		b.mu.Lock()
		b.stream = stream
		b.state = Connected
		b.mu.Unlock()
		backoff.Reset()
		log.Printf("DTNd stream up, subscribed to %d group endpoints", len(b.groups))

		// re-ingest and re-drain on every connect; both are idempotent
		if err := b.Ingest(); err != nil {
			log.Printf("Ingestion after connect failed: %v", err)
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.Drain(b.ctx)
		}()

		b.readFrames(stream)

		// stream collapsed: drop both handles and reacquire control first
		b.mu.Lock()
		b.stream = nil
		b.control = nil
		b.state = Disconnected
		b.mu.Unlock()
		stream.Close()

		if b.ctx.Err() != nil {
			return
		}
		log.Printf("DTNd stream lost, reconnecting")
		if err := b.connectControl(b.ctx); err != nil {
			return
		}
		if err := b.registerEndpoints(); err != nil {
			log.Printf("Endpoint registration failed: %v", err)
		}
	}
}

func (b *Backend) subscribeAll(stream StreamClient) error {
	for name := range b.groups {
		if err := stream.Subscribe(dtn.GroupEndpoint(name)); err != nil {
			return err
		}
	}
	return nil
}

// readFrames pumps inbound frames into the bounded reconciler queue until
// the stream fails. Wire order is preserved: one reader, one queue, one
// worker.
func (b *Backend) readFrames(stream StreamClient) {
	for {
		frame, err := stream.Next()
		if err != nil {
			if b.ctx.Err() == nil {
				log.Printf("DTNd stream read failed: %v", err)
			}
			return
		}
		select {
		case b.frames <- frame:
		case <-b.ctx.Done():
			return
		}
	}
}

// reconcileWorker consumes the frame queue in FIFO order.
func (b *Backend) reconcileWorker() {
	defer b.wg.Done()
	for {
		select {
		case frame := <-b.frames:
			b.handleFrame(frame)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Backend) newBackoff() *Backoff {
	return &Backoff{
		InitialWait:       b.cfg.Backoff.InitialWait,
		MaxRetries:        b.cfg.Backoff.MaxRetries,
		ReconnectionPause: b.cfg.Backoff.ReconnectionPause,
	}
}

func (b *Backend) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// NodeID returns the daemon's node id as resolved at connect time.
func (b *Backend) NodeID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nodeID
}

func (b *Backend) currentControl() ControlClient {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.control
}

func (b *Backend) currentStream() StreamClient {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stream
}

// waitStream blocks until a stream handle is available or the context ends.
func (b *Backend) waitStream(ctx context.Context) StreamClient {
	for {
		if s := b.currentStream(); s != nil {
			return s
		}
		if !sleep(ctx, b.cfg.Backoff.ConstantWait) {
			return nil
		}
	}
}

// Group returns the startup-reconciled group entry, or nil when the name is
// not carried locally.
func (b *Backend) Group(name string) *models.Newsgroup {
	return b.groups[name]
}

// Status is a point-in-time snapshot for the status console.
type Status struct {
	State      string    `json:"state"`
	NodeID     string    `json:"node_id"`
	SpoolDepth int64     `json:"spool_depth"`
	Articles   int64     `json:"articles"`
	Groups     int       `json:"groups"`
	Started    time.Time `json:"started"`
	Uptime     string    `json:"uptime"`
}

// Status reports the connection state and store counters.
func (b *Backend) Status() Status {
	b.mu.RLock()
	state := b.state
	nodeID := b.nodeID
	b.mu.RUnlock()

	spool, _ := b.db.CountSpool()
	articles, _ := b.db.CountArticles()
	return Status{
		State:      state.String(),
		NodeID:     nodeID,
		SpoolDepth: spool,
		Articles:   articles,
		Groups:     len(b.groups),
		Started:    b.started,
		Uptime:     time.Since(b.started).Round(time.Second).String(),
	}
}
