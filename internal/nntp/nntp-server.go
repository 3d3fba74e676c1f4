// Package nntp implements the reader-facing NNTP server (RFC 3977). Read
// commands go straight to the article store; POST hands the article buffer
// to the backend's spool engine.
package nntp

import (
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/go-dtn/dtnntp/internal/config"
	"github.com/go-dtn/dtnntp/internal/database"
)

// Poster receives the complete, dot-unstuffed article buffer of a POST.
type Poster interface {
	Post(lines []string) error
}

// NNTPServer accepts reader connections and runs one session per
// connection.
type NNTPServer struct {
	cfg    *config.Config
	db     *database.Database
	poster Poster

	listener net.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu      sync.RWMutex
	running bool
	active  int
}

// NewNNTPServer creates a server over the given store. poster may be nil for
// a read-only server.
func NewNNTPServer(cfg *config.Config, db *database.Database, poster Poster) (*NNTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	return &NNTPServer{
		cfg:      cfg,
		db:       db,
		poster:   poster,
		shutdown: make(chan struct{}),
	}, nil
}

// Start begins listening on the configured address.
func (s *NNTPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.NNTP.Host, s.cfg.NNTP.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start NNTP listener on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("NNTP server listening on %s", addr)

	s.wg.Add(1)
	go s.serve(listener)

	s.running = true
	return nil
}

// serve handles incoming connections on the given listener
func (s *NNTPServer) serve(listener net.Listener) {
	defer s.wg.Done()

	for {
		select {
		case <-s.shutdown:
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.shutdown:
					return
				default:
					log.Printf("Error accepting connection: %v", err)
					continue
				}
			}

			if s.activeConnections() >= s.cfg.NNTP.MaxConns {
				log.Printf("Connection limit reached, rejecting connection from %s", conn.RemoteAddr())
				conn.Close()
				continue
			}

			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}
}

func (s *NNTPServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	s.connectionStarted()
	defer s.connectionEnded()

	sess := newSession(conn, s)
	if err := sess.handle(); err != nil {
		log.Printf("Connection error from %s: %v", conn.RemoteAddr(), err)
	}
}

// Stop gracefully shuts down the NNTP server.
func (s *NNTPServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	log.Println("Shutting down NNTP server...")
	close(s.shutdown)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("NNTP server shut down gracefully")
	case <-time.After(30 * time.Second):
		log.Println("NNTP server shutdown timeout, forcing exit")
	}

	s.running = false
	return nil
}

func (s *NNTPServer) activeConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *NNTPServer) connectionStarted() {
	s.mu.Lock()
	s.active++
	s.mu.Unlock()
}

func (s *NNTPServer) connectionEnded() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

// postingAllowed reports whether this instance accepts POST.
func (s *NNTPServer) postingAllowed() bool {
	return s.cfg.NNTP.ServerType == "read-write" && s.poster != nil
}
