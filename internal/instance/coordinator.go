// Package instance keeps one primary qermital per user session. Later
// launches forward their request over a unix socket and exit.
package instance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"pkt.systems/qermital/internal/wire"
	"pkt.systems/qermital/schema"
	"pkt.systems/pslog"
)

const (
	// DefaultName is the well-known endpoint name.
	DefaultName = "qermital"
	// DefaultClientTimeout bounds a client's connect and write.
	DefaultClientTimeout = time.Second
	// DefaultReadTimeout bounds how long the primary waits for one message.
	DefaultReadTimeout = 5 * time.Second
)

// Role is the outcome of Start.
type Role int

const (
	// RolePrimary owns the endpoint and serves requests.
	RolePrimary Role = iota + 1
	// RoleClient found a live primary and should forward its request.
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

// Config describes the endpoint.
type Config struct {
	// Path is the socket path. Empty means DefaultPath("", DefaultName).
	Path          string
	ClientTimeout time.Duration
	ReadTimeout   time.Duration
}

func (c Config) normalized() Config {
	if c.Path == "" {
		c.Path = DefaultPath("", DefaultName)
	}
	if c.ClientTimeout <= 0 {
		c.ClientTimeout = DefaultClientTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// DefaultPath returns the socket path for name in dir. An empty dir means
// $XDG_RUNTIME_DIR, falling back to the temp dir with the uid in the name.
func DefaultPath(dir, name string) string {
	if name == "" {
		name = DefaultName
	}
	if dir != "" {
		return filepath.Join(dir, name+".sock")
	}
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, name+".sock")
	}
	return filepath.Join(os.TempDir(), name+"-"+strconv.Itoa(os.Getuid())+".sock")
}

// Handler receives every decoded request. It is called from the accept
// goroutines and must hand the message over to the event loop.
type Handler func(ctx context.Context, msg schema.Message)

// Coordinator is the primary's endpoint.
type Coordinator struct {
	cfg       Config
	listener  net.Listener
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Start binds the endpoint. When another live instance owns it, Start
// returns RoleClient and a nil coordinator. A socket file nobody answers on
// is removed and the bind retried once.
func Start(ctx context.Context, cfg Config) (Role, *Coordinator, error) {
	cfg = cfg.normalized()
	log := pslog.Ctx(ctx).With("endpoint", cfg.Path)
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return 0, nil, err
	}
	ln, err := net.Listen("unix", cfg.Path)
	if err == nil {
		log.Info("instance primary listening")
		return RolePrimary, &Coordinator{cfg: cfg, listener: ln}, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return 0, nil, err
	}
	if alive(cfg) {
		log.Debug("instance endpoint owned")
		return RoleClient, nil, nil
	}
	log.Info("instance endpoint stale", "action", "remove")
	if err := os.Remove(cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, nil, err
	}
	ln, err = net.Listen("unix", cfg.Path)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return RoleClient, nil, nil
		}
		return 0, nil, fmt.Errorf("%w: %w", schema.ErrEndpointInUse, err)
	}
	log.Info("instance primary listening")
	return RolePrimary, &Coordinator{cfg: cfg, listener: ln}, nil
}

func alive(cfg Config) bool {
	conn, err := net.DialTimeout("unix", cfg.Path, cfg.ClientTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Path returns the socket path.
func (c *Coordinator) Path() string {
	return c.cfg.Path
}

// Serve accepts connections until ctx is done or Close is called. Each
// connection carries exactly one message; malformed messages drop the
// connection and serving continues.
func (c *Coordinator) Serve(ctx context.Context, handle Handler) error {
	log := pslog.Ctx(ctx).With("endpoint", c.cfg.Path)
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				c.wg.Wait()
				return nil
			}
			log.Warn("instance accept failed", "err", err)
			return err
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.serveConn(ctx, log, conn, handle)
		}()
	}
}

func (c *Coordinator) serveConn(ctx context.Context, log pslog.Logger, conn net.Conn, handle Handler) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	msg, err := wire.ReadMessage(conn)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		log.Debug("instance connection empty")
		return
	case errors.Is(err, schema.ErrFraming), errors.Is(err, schema.ErrPayload):
		log.Warn("instance message dropped", "err", err)
		return
	default:
		log.Warn("instance connection failed", "err", err)
		return
	}
	log.Info("instance message received", "action", msg.Action, "folder", msg.FolderValue(), "has_command", msg.CommandValue() != "")
	handle(ctx, msg)
}

// Close stops accepting and removes the socket file.
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.listener.Close()
		if rmErr := os.Remove(c.cfg.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	})
	return err
}

// Send forwards msg to the primary and returns once it is written. Every
// failure is reported as ErrConnectionTimeout.
func Send(ctx context.Context, cfg Config, msg schema.Message) error {
	cfg = cfg.normalized()
	ctx, cancel := context.WithTimeout(ctx, cfg.ClientTimeout)
	defer cancel()
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", cfg.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", schema.ErrConnectionTimeout, cfg.Path, err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := wire.WriteMessage(conn, msg); err != nil {
		return fmt.Errorf("%w: %s: %w", schema.ErrConnectionTimeout, cfg.Path, err)
	}
	pslog.Ctx(ctx).Debug("instance message sent", "endpoint", cfg.Path, "action", msg.Action)
	return nil
}
