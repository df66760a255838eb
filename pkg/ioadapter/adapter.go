// Package ioadapter is the external I/O adapter shared by every
// externally-visible peripheral (FlexCAN, eQADC): a listening TCP socket,
// broadcast-to-all-clients framing, and an analysis-only mode that bypasses
// sockets entirely for test harnesses. Each connection is serviced by its
// own goroutine, funneling framed payloads into a single channel the owning
// peripheral drains.
package ioadapter

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Adapter owns zero or more client connections for one peripheral and
// funnels their framed payloads into a single inbound channel the owning
// peripheral drains from its own goroutine.
type Adapter struct {
	name         string
	logger       *slog.Logger
	analysisOnly bool

	listener net.Listener

	mu      sync.Mutex
	clients map[net.Conn]struct{}

	inbound  chan []byte
	outbound chan []byte

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs an adapter named name. If analysisOnly is true, no socket
// is created; Broadcast instead deposits payloads on Outbound() for a test
// harness to drain directly. Otherwise listenAddr ("host:port") is bound
// immediately and an accept loop starts on its own goroutine.
func New(name, listenAddr string, analysisOnly bool, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		name:         name,
		logger:       logger.With("adapter", name),
		analysisOnly: analysisOnly,
		clients:      make(map[net.Conn]struct{}),
		inbound:      make(chan []byte, 64),
		outbound:     make(chan []byte, 64),
		stop:         make(chan struct{}),
	}
	if analysisOnly {
		return a, nil
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	a.listener = ln
	a.wg.Add(1)
	go a.acceptLoop()
	return a, nil
}

func (a *Adapter) acceptLoop() {
	defer a.wg.Done()
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			return
		}
		a.mu.Lock()
		a.clients[conn] = struct{}{}
		a.mu.Unlock()
		a.wg.Add(1)
		go a.clientLoop(conn)
	}
}

func (a *Adapter) clientLoop(conn net.Conn) {
	defer a.wg.Done()
	defer func() {
		a.mu.Lock()
		delete(a.clients, conn)
		a.mu.Unlock()
		conn.Close()
	}()
	for {
		payload, err := readFrame(conn)
		if err != nil {
			return
		}
		select {
		case a.inbound <- payload:
		case <-a.stop:
			return
		}
	}
}

// Broadcast sends payload to every connected client, or queues it on
// Outbound() in analysis-only mode.
func (a *Adapter) Broadcast(payload []byte) {
	if a.analysisOnly {
		select {
		case a.outbound <- payload:
		default:
			a.logger.Warn("outbound queue full, dropping frame")
		}
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for conn := range a.clients {
		if err := writeFrame(conn, payload); err != nil {
			a.logger.Debug("write to client failed", "err", err)
		}
	}
}

// Inject feeds payload directly into Inbound(), bypassing the network -
// used by analysis-only test harnesses to simulate an incoming frame.
func (a *Adapter) Inject(payload []byte) {
	select {
	case a.inbound <- payload:
	case <-a.stop:
	}
}

// Addr returns the bound listener address; only meaningful when not
// analysis-only.
func (a *Adapter) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Inbound is drained by the owning peripheral from its own goroutine.
func (a *Adapter) Inbound() <-chan []byte { return a.inbound }

// Outbound is only meaningful in analysis-only mode; a test harness drains
// what would otherwise have been broadcast to clients.
func (a *Adapter) Outbound() <-chan []byte { return a.outbound }

// Close stops accepting new connections and waits up to one second for the
// client goroutines to exit.
func (a *Adapter) Close() error {
	close(a.stop)
	if a.listener != nil {
		if err := a.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			a.logger.Debug("listener close failed", "err", err)
		}
	}
	a.mu.Lock()
	for conn := range a.clients {
		conn.Close()
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(time.Second):
		a.logger.Error("io thread did not exit within one second of shutdown")
		return errors.New("ioadapter: shutdown timed out")
	}
}
