package nntp

import (
	"fmt"
	"net"
	"net/textproto"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/go-dtn/dtnntp/internal/config"
	"github.com/go-dtn/dtnntp/internal/models"
)

// Single-line and multi-line command responses. Handlers return one or the
// other; the session writes them out.
type response interface{ isResponse() }

type line string

func (line) isResponse() {}

type multi []string

func (multi) isResponse() {}

// Response strings follow RFC 3977 wording.
const (
	respClosing           = "205 closing connection - goodbye!"
	respNoSuchGroup       = "411 no such news group"
	respNoGroupSelected   = "412 no newsgroup has been selected"
	respNoArticleSelected = "420 no current article has been selected"
	respNoNextArticle     = "421 no next article in this group"
	respNoPrevArticle     = "422 no previous article in this group"
	respNoSuchArticleNum  = "423 no such article in this group"
	respNoArticlesInRange = "423 No articles in that range"
	respNoSuchArticle     = "430 no such article"
	respPostingNotAllowed = "440 Posting not allowed"
	respSyntaxError       = "501 command syntax error (or un-implemented option)"
	respNotPerformed      = "503 program error, function not performed"
	respPostSuccessful    = "240 Article received ok"
	respSendArticle       = "340 Send article to be posted"
)

// handlerFunc runs one dispatched command.
type handlerFunc func(s *session, args []string) (response, error)

// commandTable is the static dispatch table, keyed by the lowercase command
// word. Unknown commands yield 501.
var commandTable map[string]handlerFunc

func init() {
	commandTable = map[string]handlerFunc{
		"article":      (*session).cmdArticle,
		"body":         (*session).cmdBody,
		"capabilities": (*session).cmdCapabilities,
		"current":      (*session).cmdCurrent,
		"date":         (*session).cmdDate,
		"group":        (*session).cmdGroup,
		"hdr":          (*session).cmdHdr,
		"head":         (*session).cmdHead,
		"help":         (*session).cmdHelp,
		"last":         (*session).cmdLast,
		"list":         (*session).cmdList,
		"listgroup":    (*session).cmdListGroup,
		"mode":         (*session).cmdMode,
		"newgroups":    (*session).cmdNewGroups,
		"newnews":      (*session).cmdNewNews,
		"next":         (*session).cmdNext,
		"over":         (*session).cmdOver,
		"post":         (*session).cmdPost,
		"quit":         (*session).cmdQuit,
		"stat":         (*session).cmdStat,
		"xhdr":         (*session).cmdXHdr,
		"xover":        (*session).cmdOver,
	}
}

// AvailableCommands returns the sorted command set this server dispatches.
func AvailableCommands() []string {
	names := make([]string, 0, len(commandTable))
	for name := range commandTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// session holds all per-connection state. Nothing here is shared between
// connections; the article store is the only cross-session truth.
type session struct {
	server *NNTPServer
	conn   net.Conn
	text   *textproto.Conn

	group      *models.Newsgroup
	article    *models.Article
	postMode   bool
	postBuffer []string
	emptyCount int
	terminated bool
}

func newSession(conn net.Conn, server *NNTPServer) *session {
	return &session{
		server: server,
		conn:   conn,
		text:   textproto.NewConn(conn),
	}
}

func (s *session) updateDeadlines() {
	timeout := s.server.cfg.NNTP.Timeout
	s.conn.SetReadDeadline(time.Now().Add(timeout))
	s.conn.SetWriteDeadline(time.Now().Add(time.Minute))
}

// handle runs the session until QUIT, disconnect or an empty-request flood.
func (s *session) handle() error {
	defer s.text.Close()

	if err := s.sendGreeting(); err != nil {
		return fmt.Errorf("failed to send greeting: %w", err)
	}

	for !s.terminated {
		s.updateDeadlines()
		rawLine, err := s.text.ReadLine()
		if err != nil {
			return fmt.Errorf("failed to read command: %w", err)
		}

		if s.postMode {
			s.handlePostLine(rawLine)
			continue
		}

		tokens := strings.Fields(strings.TrimSpace(rawLine))
		if len(tokens) == 0 {
			s.emptyCount++
			if s.emptyCount >= s.server.cfg.NNTP.MaxEmptyRequests {
				log.Warnf("Closing %s: too many empty requests", s.conn.RemoteAddr())
				s.terminated = true
			}
			continue
		}
		s.emptyCount = 0

		command := strings.ToLower(tokens[0])
		args := tokens[1:]

		handler, ok := commandTable[command]
		if !ok {
			if err := s.sendLine(respSyntaxError); err != nil {
				return err
			}
			continue
		}

		resp, err := handler(s, args)
		if err != nil {
			// a failed handler terminates only this session
			log.Printf("Command %s from %s failed: %v", command, s.conn.RemoteAddr(), err)
			s.sendLine(respNotPerformed)
			return err
		}
		if err := s.send(resp); err != nil {
			return err
		}
	}
	return nil
}

// handlePostLine consumes article lines in post mode until the terminating
// dot, undoing dot-stuffing on the way.
func (s *session) handlePostLine(rawLine string) {
	if rawLine == "." {
		s.postMode = false
		buffer := s.postBuffer
		s.postBuffer = nil

		if err := s.server.poster.Post(buffer); err != nil {
			log.Printf("POST from %s failed: %v", s.conn.RemoteAddr(), err)
			s.sendLine(respNotPerformed)
			return
		}
		s.sendLine(respPostSuccessful)
		return
	}
	if strings.HasPrefix(rawLine, "..") {
		rawLine = rawLine[1:]
	}
	// only the right side is trimmed so body indentation survives
	s.postBuffer = append(s.postBuffer, strings.TrimRight(rawLine, " \t\r"))
}

func (s *session) sendGreeting() error {
	if s.server.postingAllowed() {
		return s.sendLine(fmt.Sprintf("200 %s dtnntp %s server ready (posting allowed)",
			s.server.cfg.NNTP.Hostname, config.AppVersion))
	}
	return s.sendLine(fmt.Sprintf("201 %s dtnntp %s server ready (no posting allowed)",
		s.server.cfg.NNTP.Hostname, config.AppVersion))
}

func (s *session) send(resp response) error {
	switch r := resp.(type) {
	case line:
		return s.sendLine(string(r))
	case multi:
		return s.sendMultiline(r)
	default:
		return fmt.Errorf("unknown response type %T", resp)
	}
}

func (s *session) sendLine(text string) error {
	return s.text.PrintfLine("%s", text)
}

// sendMultiline writes the status line followed by the dot-terminated data
// block. The DotWriter handles dot-stuffing of data lines.
func (s *session) sendMultiline(lines []string) error {
	if len(lines) == 0 {
		return fmt.Errorf("empty multiline response")
	}
	if err := s.sendLine(lines[0]); err != nil {
		return err
	}
	dw := s.text.DotWriter()
	for _, l := range lines[1:] {
		if _, err := fmt.Fprintf(dw, "%s\r\n", l); err != nil {
			dw.Close()
			return err
		}
	}
	return dw.Close()
}
