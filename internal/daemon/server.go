// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package daemon

import (
	"errors"
	"net"
	"os"

	"github.com/google/uuid"

	"github.com/sharedco/wsync/internal/logging"
	"github.com/sharedco/wsync/internal/protocol"
	"github.com/sharedco/wsync/internal/wsyncerr"
)

// maxConsecutiveAcceptFailures bounds how many Accept errors in a row the
// server loop tolerates before giving up and exiting fatally.
const maxConsecutiveAcceptFailures = 10

// Server binds the daemon's command socket and dispatches each accepted
// connection to a fresh worker goroutine.
type Server struct {
	state      *State
	logger     *logging.Logger
	metrics    *Metrics
	socketPath string

	listener net.Listener
	shutdown chan struct{}
}

// NewServer builds a Server over state, bound at socketPath once Serve is
// called. metrics may be nil.
func NewServer(state *State, socketPath string, logger *logging.Logger, metrics *Metrics) *Server {
	return &Server{
		state:      state,
		logger:     logger,
		metrics:    metrics,
		socketPath: socketPath,
		shutdown:   make(chan struct{}),
	}
}

// Serve binds the Unix socket and runs the accept loop until Shutdown is
// called or the failure bound is exceeded. The socket file is removed when
// Serve returns.
func (s *Server) Serve() error {
	_ = os.Remove(s.socketPath)

	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return wsyncerr.Wrap(wsyncerr.KindIO, err, "failed to bind daemon command socket")
	}
	s.listener = l
	defer os.Remove(s.socketPath)

	consecutiveFailures := 0
	for {
		conn, err := l.Accept()
		select {
		case <-s.shutdown:
			if conn != nil {
				conn.Close()
			}
			_ = l.Close()
			return nil
		default:
		}
		if err != nil {
			consecutiveFailures++
			if consecutiveFailures > maxConsecutiveAcceptFailures {
				s.logger.Error("accept failed %d times in a row, giving up: %v", consecutiveFailures, err)
				_ = l.Close()
				return wsyncerr.Wrap(wsyncerr.KindIO, err, "daemon accept loop exhausted its failure budget")
			}
			continue
		}
		consecutiveFailures = 0
		go s.handle(conn)
	}
}

// Shutdown requests a graceful stop: it flags the loop, then self-connects
// once to unblock the blocking Accept call.
func (s *Server) Shutdown() {
	close(s.shutdown)
	if conn, err := net.Dial("unix", s.socketPath); err == nil {
		conn.Close()
	}
}

func (s *Server) handle(netConn net.Conn) {
	reqID := uuid.New().String()
	log := s.logger.With(reqID)
	conn := protocol.NewConn(netConn)
	defer conn.Shutdown()

	cmd, err := conn.ReadCommand()
	if err != nil {
		log.Warn("invalid request: %v", err)
		_ = conn.WriteResponse(protocol.ErrorResponse(clientMessage(err)))
		return
	}

	resp := s.dispatch(log, conn, cmd)
	if err := conn.WriteResponse(resp); err != nil {
		log.Warn("failed to write response: %v", err)
	}
}

func (s *Server) dispatch(log *logging.Logger, conn *protocol.Conn, cmd protocol.Command) protocol.ResponseEnvelope {
	switch cmd {
	case protocol.CommandWorkspaceInfo:
		var req protocol.WorkspaceInfoRequest
		if err := conn.ReadValue(&req); err != nil {
			return protocol.ErrorResponse(clientMessage(err))
		}
		return s.handleWorkspaceInfo(req)

	case protocol.CommandListWorkspaces:
		return s.handleListWorkspaces()

	case protocol.CommandListWorkspaceInfo:
		return s.handleListWorkspaceInfo()

	case protocol.CommandAddWorkspace:
		var req protocol.AddWorkspaceRequest
		if err := conn.ReadValue(&req); err != nil {
			return protocol.ErrorResponse(clientMessage(err))
		}
		return s.handleAddWorkspace(log, req)

	case protocol.CommandRemoveWorkspace:
		var req protocol.RemoveWorkspaceRequest
		if err := conn.ReadValue(&req); err != nil {
			return protocol.ErrorResponse(clientMessage(err))
		}
		return s.handleRemoveWorkspace(log, req)

	case protocol.CommandAttachRemoteWorkspace:
		var req protocol.AttachRemoteWorkspaceRequest
		if err := conn.ReadValue(&req); err != nil {
			return protocol.ErrorResponse(clientMessage(err))
		}
		return s.handleAttachRemoteWorkspace(log, req)

	case protocol.CommandDetachRemoteWorkspace:
		var req protocol.DetachRemoteWorkspaceRequest
		if err := conn.ReadValue(&req); err != nil {
			return protocol.ErrorResponse(clientMessage(err))
		}
		return s.handleDetachRemoteWorkspace(log, req)

	default:
		return protocol.ErrorResponse("Received invalid command '" + string(cmd) + "'")
	}
}

func (s *Server) handleWorkspaceInfo(req protocol.WorkspaceInfoRequest) protocol.ResponseEnvelope {
	s.state.Lock()
	defer s.state.Unlock()

	ws, ok := s.state.Registry.FindByName(req.Name)
	if !ok {
		return protocol.NotFound("no workspace named '" + req.Name + "' found")
	}
	return protocol.Success(protocol.PayloadWorkspaceInfo, ws)
}

func (s *Server) handleListWorkspaces() protocol.ResponseEnvelope {
	s.state.Lock()
	defer s.state.Unlock()

	all := s.state.Registry.All()
	entries := make([]protocol.WorkspaceOverview, len(all))
	for i, w := range all {
		entries[i] = protocol.WorkspaceOverview{
			Name:                 w.Name,
			LocalPath:            w.LocalPath,
			NrOfRemoteWorkspaces: len(w.Remotes),
		}
	}
	return protocol.Success(protocol.PayloadListWorkspaces, protocol.ListWorkspacesResult{
		NrOfWorkspaces: len(entries),
		Entries:        entries,
	})
}

func (s *Server) handleListWorkspaceInfo() protocol.ResponseEnvelope {
	s.state.Lock()
	defer s.state.Unlock()

	all := s.state.Registry.All()
	return protocol.Success(protocol.PayloadListWorkspaceInfo, protocol.ListWorkspaceInfoResult{
		NrOfWorkspaces: len(all),
		Entries:        all,
	})
}

func (s *Server) handleAddWorkspace(log *logging.Logger, req protocol.AddWorkspaceRequest) protocol.ResponseEnvelope {
	s.state.Lock()
	defer s.state.Unlock()

	w := protocol.Workspace{Name: req.Name, LocalPath: req.Path}
	if err := s.state.Registry.AddWorkspace(w); err != nil {
		return protocol.ErrorResponse(clientMessage(err))
	}
	if s.metrics != nil {
		s.metrics.WorkspacesManaged.Set(float64(len(s.state.Registry.All())))
	}
	return protocol.Success(protocol.PayloadAddWorkspace, nil)
}

func (s *Server) handleRemoveWorkspace(log *logging.Logger, req protocol.RemoveWorkspaceRequest) protocol.ResponseEnvelope {
	s.state.Lock()
	defer s.state.Unlock()

	if err := s.state.Registry.RemoveWorkspace(req.Name); err != nil {
		return protocol.ErrorResponse(clientMessage(err))
	}
	if err := s.state.Manager.TerminateMonitor(req.Name); err != nil {
		log.Warn("failed to terminate monitor for removed workspace %q: %v", req.Name, err)
	}
	if s.metrics != nil {
		s.metrics.WorkspacesManaged.Set(float64(len(s.state.Registry.All())))
	}
	return protocol.Success(protocol.PayloadRemoveWorkspace, nil)
}

func (s *Server) handleAttachRemoteWorkspace(log *logging.Logger, req protocol.AttachRemoteWorkspaceRequest) protocol.ResponseEnvelope {
	if err := req.Connection.Validate(); err != nil {
		return protocol.ErrorResponse(err.Error())
	}

	s.state.Lock()
	defer s.state.Unlock()

	remote := protocol.RemoteWorkspace{Name: req.Remote, RemotePath: req.RemotePath, Connection: req.Connection}
	if err := s.state.Registry.AttachRemote(req.Local, remote); err != nil {
		return protocol.ErrorResponse(clientMessage(err))
	}

	ws, ok := s.state.Registry.FindByName(req.Local)
	if !ok {
		return protocol.Success(protocol.PayloadAttachRemoteWorkspace, nil)
	}
	if err := s.state.Manager.RestartMonitor(ws); err != nil {
		log.Warn("failed to restart monitor after attach for %q: %v", req.Local, err)
		return protocol.ErrorResponse("remote attached, but sync will not be reliable for '" + req.Local + "': " + err.Error())
	}
	return protocol.Success(protocol.PayloadAttachRemoteWorkspace, nil)
}

func (s *Server) handleDetachRemoteWorkspace(log *logging.Logger, req protocol.DetachRemoteWorkspaceRequest) protocol.ResponseEnvelope {
	s.state.Lock()
	defer s.state.Unlock()

	if err := s.state.Registry.DetachRemote(req.Local, req.Remote); err != nil {
		return protocol.ErrorResponse(clientMessage(err))
	}

	ws, ok := s.state.Registry.FindByName(req.Local)
	if !ok {
		return protocol.Success(protocol.PayloadDetachRemoteWorkspace, nil)
	}
	if err := s.state.Manager.RestartMonitor(ws); err != nil {
		log.Warn("failed to restart monitor after detach for %q: %v", req.Local, err)
		return protocol.ErrorResponse("remote detached, but sync will not be reliable for '" + req.Local + "': " + err.Error())
	}
	return protocol.Success(protocol.PayloadDetachRemoteWorkspace, nil)
}

// clientMessage extracts the safe client-facing message from err, falling
// back to its plain Error() text for errors outside the wsyncerr taxonomy.
func clientMessage(err error) string {
	var e *wsyncerr.Error
	if errors.As(err, &e) && e.ClientMessage != "" {
		return e.ClientMessage
	}
	return err.Error()
}
