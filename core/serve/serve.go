// Package serve exposes the workbench over SSH so a class can share
// one configured host. Every session gets its own shell, runner and
// trace log.
package serve

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/gliderlabs/ssh"

	"github.com/fdlab/fdlab/core/config"
	"github.com/fdlab/fdlab/core/runner"
	"github.com/fdlab/fdlab/core/shell"
	"github.com/fdlab/fdlab/core/trace"
)

type Server struct {
	configuration *config.Configuration
	sshServer     *ssh.Server
	logger        *log.Logger
}

// New builds the SSH frontend. Any username and password is accepted;
// the point of the server is the shell behind it, not gatekeeping.
func New(configuration *config.Configuration, logDest io.Writer) (*Server, error) {
	server := &Server{
		configuration: configuration,
		logger:        log.New(logDest, "", log.LstdFlags),
	}

	server.sshServer = &ssh.Server{
		Addr: fmt.Sprintf(":%d", configuration.SSHPort),
		Handler: func(s ssh.Session) {
			server.HandleSession(s)
		},
		PasswordHandler: func(ctx ssh.Context, password string) bool {
			return true
		},
		PublicKeyHandler: func(ctx ssh.Context, key ssh.PublicKey) bool {
			return true
		},
	}

	hostKey, err := configuration.HostKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("loading host key: %w", err)
	}
	if err := server.sshServer.SetOption(ssh.HostKeyPEM(hostKey)); err != nil {
		return nil, err
	}

	return server, nil
}

// HandleSession runs one SSH session to completion. A command given on
// the ssh command line runs directly; otherwise the user gets an
// interactive shell. Either way the descriptor trace lands in its own
// file under the traces directory.
func (srv *Server) HandleSession(s ssh.Session) {
	traceName := fmt.Sprintf("%s.json", time.Now().UTC().Format(time.RFC3339Nano))
	logFd, err := srv.configuration.CreateTraceLog(traceName)
	if err != nil {
		srv.logger.Printf("session %s: creating trace log: %v", s.RemoteAddr(), err)
		s.Exit(1)
		return
	}
	defer logFd.Close()

	srv.logger.Printf("session %s user=%q trace=%s", s.RemoteAddr(), s.User(), traceName)

	recorder := trace.NewRecorder(logFd)

	run := runner.New(recorder)
	run.Stdin = s
	run.Stdout = s
	run.Stderr = s.Stderr()
	run.Env = s.Environ()

	if raw := s.RawCommand(); raw != "" {
		code, err := run.Run(s.Context(), raw)
		if err != nil {
			fmt.Fprintf(s.Stderr(), "%v\n", err)
		}
		s.Exit(code)
		return
	}

	ptyInfo, winch, isPty := s.Pty()
	windowWidth := ptyInfo.Window.Width
	go func() {
		for window := range winch {
			windowWidth = window.Width
		}
	}()

	sh, err := shell.New(srv.configuration, run, shell.Options{
		Stdin:      s,
		Stdout:     s,
		Stderr:     s.Stderr(),
		User:       s.User(),
		IsTerminal: isPty,
		Width: func() int {
			return windowWidth
		},
	})
	if err != nil {
		srv.logger.Printf("session %s: starting shell: %v", s.RemoteAddr(), err)
		s.Exit(1)
		return
	}
	defer sh.Close()

	if err := sh.Run(s.Context()); err != nil && err != context.Canceled {
		srv.logger.Printf("session %s: %v", s.RemoteAddr(), err)
	}
	s.Exit(sh.LastExit())
}

func (srv *Server) ListenAndServe() error {
	srv.logger.Printf("starting SSH server on %s", srv.sshServer.Addr)
	return srv.sshServer.ListenAndServe()
}

func (srv *Server) Shutdown(ctx context.Context) error {
	return srv.sshServer.Shutdown(ctx)
}
