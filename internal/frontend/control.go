package frontend

import (
	"encoding/json"
	"errors"
	"io"
	"net"

	"github.com/adamnew123456/jobmon/internal/dispatcher"
	"github.com/adamnew123456/jobmon/internal/log"
	"github.com/adamnew123456/jobmon/internal/wire"
)

// Control serves the control endpoint: each connection may carry any
// number of newline-delimited request/response pairs, per spec.md §6.
type Control struct {
	listener net.Listener
	requests chan<- dispatcher.Request
	log      *log.Logger
}

// NewControl wraps an already-bound listener.
func NewControl(l net.Listener, requests chan<- dispatcher.Request, logger *log.Logger) *Control {
	return &Control{listener: l, requests: requests, log: logger}
}

// Serve accepts connections until the listener is closed.
func (c *Control) Serve() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.log.Warnf("control accept: %v", err)
			return
		}
		go c.handleConn(conn)
	}
}

func (c *Control) handleConn(conn net.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	pending := make(chan chan dispatcher.Response, 8)

	go c.writeResponses(conn, pending, done)

	scanner := wire.NewScanner(conn)
	defer close(pending)

	for {
		var req wire.Request
		err := scanner.Next(&req)
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		malformed := errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
		if err != nil && !malformed {
			if !errors.Is(err, io.EOF) {
				c.log.Debugf("control read: %v", err)
			}
			close(done)
			return
		}

		reply := make(chan dispatcher.Response, 1)
		cmd, ok := parseCommand(req.Command)
		if malformed || !ok {
			reply <- dispatcher.Response{OK: false, Error: dispatcher.ErrBadRequest}
			close(reply)
		} else {
			c.requests <- dispatcher.Request{Command: cmd, Job: req.Job, Reply: reply, Cancel: done}
		}

		select {
		case pending <- reply:
		case <-done:
			return
		}
	}
}

func (c *Control) writeResponses(conn net.Conn, pending <-chan chan dispatcher.Response, done chan struct{}) {
	for reply := range pending {
		select {
		case resp, ok := <-reply:
			if !ok {
				return
			}
			if err := wire.Encode(conn, toWireResponse(resp)); err != nil {
				c.log.Debugf("control write: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}

func parseCommand(s string) (dispatcher.Command, bool) {
	switch dispatcher.Command(s) {
	case dispatcher.CmdStart, dispatcher.CmdStop, dispatcher.CmdStatus,
		dispatcher.CmdListJobs, dispatcher.CmdWait, dispatcher.CmdTerminate:
		return dispatcher.Command(s), true
	default:
		return "", false
	}
}

func toWireResponse(resp dispatcher.Response) wire.Response {
	if !resp.OK {
		return wire.Response{OK: false, Error: string(resp.Error)}
	}
	switch {
	case resp.Jobs != nil:
		entries := make([]wire.JobEntry, len(resp.Jobs))
		for i, j := range resp.Jobs {
			entries[i] = wire.JobEntry{Name: j.Name, Status: j.Status}
		}
		return wire.Response{OK: true, Payload: entries}
	case resp.Phase != "":
		return wire.Response{OK: true, Payload: resp.Phase}
	default:
		return wire.Response{OK: true}
	}
}
