package stub

import (
	"net"

	"github.com/vigilo/vigilo/pkg/logflags"
)

// Server accepts debugger connections and serves them against one debug
// session. Connections are handled one at a time: two debuggers driving
// the same inferior would trample each other.
type Server struct {
	listener net.Listener
	ses      *DebugSession
	mode     Mode

	log logflags.Logger
}

// NewServer wraps a listener around a session.
func NewServer(listener net.Listener, ses *DebugSession, mode Mode) *Server {
	return &Server{
		listener: listener,
		ses:      ses,
		mode:     mode,
		log:      logflags.StubLogger(),
	}
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Run serves debugger connections until the listener closes or a
// connection ends in a detach or a kill.
func (s *Server) Run() error {
	defer s.ses.Release()

	for {
		c, err := s.listener.Accept()
		if err != nil {
			return err
		}
		s.log.Infof("debugger connected from %s", c.RemoteAddr())

		conn := newConn(c, s.ses, s.mode)
		if err := conn.serve(); err != nil {
			s.log.Errorf("connection error: %v", err)
		}
		if conn.detached {
			s.log.Infof("debugger detached")
			return nil
		}
		s.log.Infof("debugger disconnected")
	}
}
