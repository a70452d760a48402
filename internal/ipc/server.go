package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"reel/internal/daemon"
	"reel/internal/faults"
	"reel/internal/logging"
)

// ServiceName is the RPC receiver name clients address.
const ServiceName = "Reel"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.SessionID = status.SessionID
	resp.Rotation = status.Rotation
	resp.Storage = status.Storage
	resp.StorageError = status.StorageError
	resp.RunError = status.RunError
	resp.LockPath = status.LockFilePath
	resp.LogPath = status.LogPath
	resp.StatePath = status.StatePath
	resp.Dependencies = append([]DependencyStatus(nil), status.Dependencies...)
	return nil
}

func (s *service) Swap(_ SwapRequest, resp *SwapResponse) error {
	s.logger.Debug("swap requested via IPC")
	if err := s.daemon.RequestSwap(); err != nil {
		resp.Accepted = false
		resp.Message = err.Error()
		return nil
	}
	resp.Accepted = true
	resp.Message = "swap scheduled for the next cycle"
	return nil
}

func (s *service) Resume(_ ResumeRequest, resp *ResumeResponse) error {
	if err := s.daemon.Resume(); err != nil {
		resp.Resumed = false
		resp.Message = err.Error()
		if errors.Is(err, faults.ErrHalted) {
			return nil
		}
		return err
	}
	resp.Resumed = true
	resp.Message = "rotation resumed"
	s.logger.Info("rotation resumed via IPC", logging.Event("rotation_resume_ipc"))
	return nil
}

func (s *service) Reclaim(_ ReclaimRequest, resp *ReclaimResponse) error {
	evicted, err := s.daemon.Reclaim(s.ctx)
	resp.Evicted = evicted
	return err
}

func (s *service) Evict(req EvictRequest, resp *EvictResponse) error {
	if err := s.daemon.Evict(s.ctx, req.Identifier); err != nil {
		return err
	}
	resp.Evicted = true
	return nil
}

func (s *service) StoreList(_ StoreListRequest, resp *StoreListResponse) error {
	items, err := s.daemon.ListHeld(s.ctx)
	if err != nil {
		return err
	}
	resp.Items = items
	return nil
}

func (s *service) StoreStats(_ StoreStatsRequest, resp *StoreStatsResponse) error {
	stats, err := s.daemon.StoreStats(s.ctx)
	if err != nil {
		return err
	}
	resp.Stats = stats
	return nil
}

func (s *service) Reconcile(_ ReconcileRequest, resp *ReconcileResponse) error {
	dropped, err := s.daemon.Reconcile(s.ctx)
	resp.Dropped = dropped
	return err
}
