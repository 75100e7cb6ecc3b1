// Package server exposes the launcher over a Unix socket using the TXT01
// line protocol. It is the surface GUI front ends and the CLI talk to;
// the server itself never touches the store except through the
// coordinator.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/appdex/appdexd/internal/apps"
	"github.com/appdex/appdexd/internal/launcher"
	"github.com/appdex/appdexd/internal/rank"
	"github.com/appdex/appdexd/parser"
)

// Server accepts Unix socket connections and executes launcher commands.
type Server struct {
	listener net.Listener
	launcher *launcher.Launcher
	limit    int
	running  bool
	mu       sync.RWMutex
}

// session holds per-connection state.
type session struct {
	limit int
}

// NewServer listens on socketPath. limit caps ranked results per query
// unless a connection overrides it with the limit command.
func NewServer(l *launcher.Launcher, socketPath string, limit int) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return nil, err
	}

	// A stale socket from a previous run blocks the listener.
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener: listener,
		launcher: l,
		limit:    limit,
	}, nil
}

// Start accepts connections until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			running := s.running
			s.mu.RUnlock()
			if !running {
				return nil
			}
			continue
		}

		go s.handleConnection(conn)
	}
}

// Stop closes the listener.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return s.listener.Close()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	log.Debug().Msg("connection accepted")

	p, err := parser.NewParser(conn)
	if err != nil {
		log.Warn().Err(err).Msg("bad protocol header")
		s.writeError(conn, "parser", "invalid header", err.Error())
		return
	}

	sess := &session{limit: s.limit}

	for {
		cmd, err := p.ParseCommand()
		if err == io.EOF {
			log.Debug().Msg("connection closed by client")
			break
		}
		if err != nil {
			log.Warn().Err(err).Msg("parse error")
			s.writeError(conn, "parser", "parse error", err.Error())
			continue
		}

		s.executeCommand(conn, cmd, sess)
	}
}

func (s *Server) executeCommand(conn net.Conn, cmd *parser.Command, sess *session) {
	switch cmd.Name {
	case "search":
		s.handleSearch(conn, cmd, sess)
	case "list":
		s.handleList(conn, sess)
	case "run":
		s.handleRun(conn, cmd)
	case "rescan":
		s.handleRescan(conn)
	case "stats":
		s.handleStats(conn)
	case "limit":
		s.handleLimit(conn, cmd, sess)
	default:
		s.writeError(conn, cmd.Name, "unknown command", "Command not recognized")
	}
}

func (s *Server) handleSearch(conn net.Conn, cmd *parser.Command, sess *session) {
	if len(cmd.Args) == 0 || cmd.Args[0].Type != parser.TypeString {
		s.writeError(conn, "search", "missing query", "search requires a string argument")
		return
	}
	query := cmd.Args[0].Str

	matches := s.launcher.SearchN(query, sess.limit)
	s.writeMatches(conn, "search", matches)
}

func (s *Server) handleList(conn net.Conn, sess *session) {
	// Empty query: most-used applications first.
	matches := s.launcher.SearchN("", sess.limit)
	s.writeMatches(conn, "list", matches)
}

func (s *Server) writeMatches(conn net.Conn, cmdName string, matches []rank.Match) {
	attrs := fmt.Sprintf("cmd: %s\nstatus: 0\nlist-len: %d\nbody:\n", cmdName, len(matches))
	body := strings.Builder{}
	for _, m := range matches {
		body.WriteString(fmt.Sprintf("%s\t%d\t%s\n", m.App.ID, m.Score, m.App.Name))
	}

	s.writeResponse(conn, attrs+body.String())
}

func (s *Server) handleRun(conn net.Conn, cmd *parser.Command) {
	if len(cmd.Args) == 0 || cmd.Args[0].Type != parser.TypeString {
		s.writeError(conn, "run", "missing id", "run requires an application id")
		return
	}
	id := cmd.Args[0].Str

	if err := s.launcher.Run(id); err != nil {
		if errors.Is(err, apps.ErrUnknownApp) {
			s.writeError(conn, "run", "unknown id", "No application with the requested id.")
			return
		}
		log.Warn().Err(err).Str("id", id).Msg("launch failed")
		s.writeError(conn, "run", "launch failed", err.Error())
		return
	}

	s.writeResponse(conn, fmt.Sprintf("cmd: run\nstatus: 0\nid: %s\n", id))
}

func (s *Server) handleRescan(conn net.Conn) {
	added, removed, err := s.launcher.Rescan()
	if err != nil {
		s.writeError(conn, "rescan", "scan failed", err.Error())
		return
	}

	s.writeResponse(conn, fmt.Sprintf("cmd: rescan\nstatus: 0\nadded: %d\nremoved: %d\n", added, removed))
}

func (s *Server) handleStats(conn net.Conn) {
	stats := s.launcher.Stats()

	attrs := fmt.Sprintf("cmd: stats\nstatus: 0\nrecords: %d\nsnapshot: %s\nlast-scan: %s\n",
		stats.Records, stats.SnapshotPath, stats.LastScan.Format("2006-01-02T15:04:05Z07:00"))
	s.writeResponse(conn, attrs)
}

func (s *Server) handleLimit(conn net.Conn, cmd *parser.Command, sess *session) {
	if len(cmd.Args) == 0 || cmd.Args[0].Type != parser.TypeInt || cmd.Args[0].Int <= 0 {
		s.writeError(conn, "limit", "invalid limit", "limit requires a positive integer")
		return
	}
	sess.limit = int(cmd.Args[0].Int)

	s.writeResponse(conn, fmt.Sprintf("cmd: limit\nstatus: 0\nlimit: %d\n", sess.limit))
}

// writeResponse writes the TXT01 header, the response and the blank-line
// terminator.
func (s *Server) writeResponse(conn net.Conn, response string) {
	header := []byte("TXT01")
	if _, err := conn.Write(header); err != nil {
		log.Warn().Err(err).Msg("writing response header failed")
		return
	}

	if _, err := conn.Write([]byte(response + "\n")); err != nil {
		log.Warn().Err(err).Msg("writing response failed")
	}
}

func (s *Server) writeError(conn net.Conn, cmd, errType, desc string) {
	errorMsg := fmt.Sprintf("error-cmd: %s\nerror: %s\ndesc: %s\n", cmd, errType, desc)
	s.writeResponse(conn, errorMsg)
}
