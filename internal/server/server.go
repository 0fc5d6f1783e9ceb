// Package server provides the csvscan daemon: a socket server that parses
// CSV streamed by clients and answers with the rows as JSON.
//
// A client sends one JSON request line. For "scan" and "count" the CSV body
// follows directly after the request line and ends when the client closes
// its write side:
//
//	{"action":"scan","delimiter":"\t","null":"\\N","limit":100}
//	id	name
//	1	Smith
//	<half-close>
//
// The daemon replies with one JSON array per row ("scan" only) followed by
// a summary line:
//
//	["id","name"]
//	["1","Smith"]
//	{"status":"ok","rows":2,"bytes":16}
//
// A failed stream ends with {"status":"error","error":"...","line":N,...}.
// "ping" and "status" answer with a single line and may be repeated on one
// connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/csvquery/csvscan/internal/stream"
)

// DaemonConfig holds configuration for the daemon.
type DaemonConfig struct {
	Network        string // "unix" or "tcp"
	Address        string // socket path or "host:port"
	MaxConcurrency int
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration

	// Options are the defaults for every stream; a request may override the
	// dialect and the row limit.
	Options stream.Options

	Verbose bool
}

// Daemon is the socket server.
type Daemon struct {
	config   DaemonConfig
	listener net.Listener
	sem      chan struct{}
	shutdown chan struct{}
	once     sync.Once
	mu       sync.Mutex // orders wg.Add against the close of shutdown
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	started  time.Time

	// counters reported by "status"
	connections atomic.Int64
	streams     atomic.Int64
	failures    atomic.Int64
	rows        atomic.Int64
	bytes       atomic.Int64
}

// NewDaemon creates a new daemon; call Listen then Serve.
func NewDaemon(cfg DaemonConfig) *Daemon {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 50
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Network == "" {
		cfg.Network = "unix"
	}
	if cfg.Address == "" {
		if cfg.Network == "unix" {
			cfg.Address = os.Getenv("CSVSCAN_SOCKET")
			if cfg.Address == "" {
				cfg.Address = "/tmp/csvscan.sock"
			}
		} else {
			cfg.Address = "127.0.0.1:0"
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		config:   cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrency),
		shutdown: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Listen binds the socket, removing a stale unix socket file first.
func (d *Daemon) Listen() error {
	if d.config.Network == "unix" {
		if _, err := os.Stat(d.config.Address); err == nil {
			if err := os.Remove(d.config.Address); err != nil {
				return fmt.Errorf("failed to remove stale socket: %w", err)
			}
		}
	}

	listener, err := net.Listen(d.config.Network, d.config.Address)
	if err != nil {
		return fmt.Errorf("failed to bind %s %s: %w", d.config.Network, d.config.Address, err)
	}
	d.listener = listener
	d.started = time.Now()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (d *Daemon) Addr() net.Addr {
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Serve accepts connections until Shutdown.
func (d *Daemon) Serve() error {
	if d.listener == nil {
		return errors.New("daemon is not listening")
	}
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.shutdown:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Printf("Accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		d.mu.Lock()
		select {
		case <-d.shutdown:
			d.mu.Unlock()
			_ = conn.Close()
			return nil
		default:
		}
		d.connections.Add(1)
		d.wg.Add(1)
		d.mu.Unlock()

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(30 * time.Second)
		}

		go d.handleConnection(conn)
	}
}

// Shutdown stops accepting, aborts running streams and waits for every
// connection to finish.
func (d *Daemon) Shutdown() {
	d.once.Do(func() {
		d.mu.Lock()
		close(d.shutdown)
		d.mu.Unlock()
		d.cancel()
		if d.listener != nil {
			_ = d.listener.Close()
		}
		d.wg.Wait()

		if d.config.Network == "unix" && d.listener != nil {
			_ = os.Remove(d.config.Address)
		}
		if d.config.Verbose {
			log.Printf("Daemon shutdown complete")
		}
	})
}

// RunDaemon is the entry point called from main.go. It serves until
// SIGINT or SIGTERM.
func RunDaemon(cfg DaemonConfig) error {
	d := NewDaemon(cfg)
	if err := d.Listen(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			d.Shutdown()
		case <-d.shutdown:
		}
	}()

	fmt.Printf("csvscan daemon started on %s (%s), concurrency %d\n",
		d.config.Network, d.Addr(), d.config.MaxConcurrency)
	return d.Serve()
}
