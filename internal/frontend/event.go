package frontend

import (
	"errors"
	"net"

	"github.com/adamnew123456/jobmon/internal/bus"
	"github.com/adamnew123456/jobmon/internal/log"
	"github.com/adamnew123456/jobmon/internal/wire"
)

// Event serves the event endpoint: every connection is a subscriber that
// receives every transition published after it connects, until it
// disconnects or falls behind the bus watermark.
type Event struct {
	listener net.Listener
	bus      *bus.Bus
	log      *log.Logger
}

// NewEvent wraps an already-bound listener.
func NewEvent(l net.Listener, b *bus.Bus, logger *log.Logger) *Event {
	return &Event{listener: l, bus: b, log: logger}
}

// Serve accepts connections until the listener is closed.
func (e *Event) Serve() {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			e.log.Warnf("event accept: %v", err)
			return
		}
		go e.handleConn(conn)
	}
}

func (e *Event) handleConn(conn net.Conn) {
	defer conn.Close()

	id, ch := e.bus.Subscribe()
	defer e.bus.Unsubscribe(id)

	// Detect client disconnect even while idle between events: a closed
	// read side means a zero-byte Read returns promptly.
	closed := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		conn.Read(buf)
		close(closed)
	}()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				// disconnected by the bus for falling behind
				e.log.Warnf("event subscriber %s disconnected: fell behind", id)
				return
			}
			msg := wire.Event{Job: evt.Job, Status: evt.Phase.WirePhase()}
			if err := wire.Encode(conn, msg); err != nil {
				e.log.Debugf("event write: %v", err)
				return
			}
		case <-closed:
			return
		}
	}
}
