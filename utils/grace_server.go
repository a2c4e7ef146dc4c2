package utils

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const (
	readTimeout     = 30 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 30 * time.Second

	gracefulEnvKey   = "SCHOOLGATE_GRACEFUL"
	gracefulEnvValue = gracefulEnvKey + "=1"
	gracefulFD       = 3
)

// Server wraps http.Server with signal-driven shutdown and SIGUSR2 hand-over
// of the listening socket to a fresh process.
type Server struct {
	*http.Server

	listener   net.Listener
	inherited  bool
	signals    chan os.Signal
	finished   chan struct{}
	closeOnce  sync.Once
	onShutdown []func()
}

// NewServer builds a Server. Hooks run after HTTP shutdown, in order.
func NewServer(addr string, handler http.Handler, hooks ...func()) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
		},
		inherited:  os.Getenv(gracefulEnvKey) != "",
		signals:    make(chan os.Signal, 1),
		finished:   make(chan struct{}),
		onShutdown: hooks,
	}
}

// ListenAndServe blocks until the server has been shut down by a signal.
func (srv *Server) ListenAndServe() error {
	ln, err := srv.listen()
	if err != nil {
		return err
	}
	srv.listener = ln
	go srv.handleSignals()
	err = srv.Serve(ln)
	<-srv.finished
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (srv *Server) listen() (net.Listener, error) {
	if srv.inherited {
		ln, err := net.FileListener(os.NewFile(gracefulFD, "listener"))
		if err != nil {
			return nil, fmt.Errorf("inherit listener: %w", err)
		}
		return ln, nil
	}
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func (srv *Server) handleSignals() {
	signal.Notify(srv.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR2)
	for sig := range srv.signals {
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM:
			Sugar.Infof("received %s, shutting down", sig)
			srv.shutdown()
			return
		case syscall.SIGUSR2:
			pid, err := srv.fork()
			if err != nil {
				Sugar.Errorf("restart failed, still serving: %v", err)
				continue
			}
			Sugar.Infof("restarted as pid %d, draining old process", pid)
			srv.shutdown()
			return
		}
	}
}

func (srv *Server) shutdown() {
	srv.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			Sugar.Errorf("http shutdown: %v", err)
		}
		for _, hook := range srv.onShutdown {
			hook()
		}
		close(srv.finished)
	})
}

// fork starts a copy of this binary that inherits the listener on fd 3.
func (srv *Server) fork() (int, error) {
	tcp, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is %T, not *net.TCPListener", srv.listener)
	}
	f, err := tcp.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}
	defer f.Close()

	env := make([]string, 0, len(os.Environ())+1)
	for _, kv := range os.Environ() {
		if kv != gracefulEnvValue {
			env = append(env, kv)
		}
	}
	env = append(env, gracefulEnvValue)

	return syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), f.Fd()},
	})
}

// GraceServer serves handler on addr until SIGINT/SIGTERM, then runs hooks.
func GraceServer(addr string, handler http.Handler, hooks ...func()) error {
	return NewServer(addr, handler, hooks...).ListenAndServe()
}
