package frontend

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/adamnew123456/jobmon/internal/bus"
	"github.com/adamnew123456/jobmon/internal/config"
	"github.com/adamnew123456/jobmon/internal/dispatcher"
	"github.com/adamnew123456/jobmon/internal/jobcore"
	"github.com/adamnew123456/jobmon/internal/log"
	"github.com/adamnew123456/jobmon/internal/reaper"
	"github.com/adamnew123456/jobmon/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestListenRejectsMalformedEndpoint(t *testing.T) {
	_, err := Listen("nope")
	require.Error(t, err)
}

func TestListenRejectsUnknownScheme(t *testing.T) {
	_, err := Listen("ftp://127.0.0.1:0")
	require.Error(t, err)
}

func TestListenTCP(t *testing.T) {
	l, err := Listen("tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	require.Equal(t, "tcp", l.Addr().Network())
}

func setupStack(t *testing.T) (net.Listener, *dispatcher.Dispatcher) {
	t.Helper()
	cfg := &config.Config{
		Jobs:     map[string]config.JobConfig{"quick": {Name: "quick", Command: "/bin/true"}},
		JobOrder: []string{"quick"},
	}
	r := reaper.New()
	go r.Run()
	t.Cleanup(r.Stop)

	d := dispatcher.New(cfg, jobcore.NewRunner(), bus.New(), r.Exits(), log.New(io.Discard, "test", log.DEBUG))
	go d.Run()
	t.Cleanup(func() {
		d.Shutdown()
		<-d.Done()
	})

	l, err := Listen("tcp://127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	ctrl := NewControl(l, d.Requests(), log.New(io.Discard, "test", log.DEBUG))
	go ctrl.Serve()

	return l, d
}

func TestControlRoundTripOverTCP(t *testing.T) {
	l, _ := setupStack(t)

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.Encode(conn, wire.Request{Command: "start", Job: "quick"}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	s := wire.NewScanner(conn)
	var resp wire.Response
	require.NoError(t, s.Next(&resp))
	require.True(t, resp.OK)
}

func TestControlUnknownCommandIsBadRequest(t *testing.T) {
	l, _ := setupStack(t)

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.Encode(conn, wire.Request{Command: "frobnicate"}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	s := wire.NewScanner(conn)
	var resp wire.Response
	require.NoError(t, s.Next(&resp))
	require.False(t, resp.OK)
	require.Equal(t, "BAD_REQUEST", resp.Error)
}

func TestEventStreamDeliversTransitions(t *testing.T) {
	cfg := &config.Config{
		Jobs:     map[string]config.JobConfig{"quick": {Name: "quick", Command: "/bin/true"}},
		JobOrder: []string{"quick"},
	}
	r := reaper.New()
	go r.Run()
	t.Cleanup(r.Stop)

	b := bus.New()
	d := dispatcher.New(cfg, jobcore.NewRunner(), b, r.Exits(), log.New(io.Discard, "test", log.DEBUG))
	go d.Run()
	t.Cleanup(func() {
		d.Shutdown()
		<-d.Done()
	})

	evtListener, err := Listen("tcp://127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { evtListener.Close() })
	evt := NewEvent(evtListener, b, log.New(io.Discard, "test", log.DEBUG))
	go evt.Serve()

	conn, err := net.Dial("tcp", evtListener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	time.Sleep(50 * time.Millisecond) // let the subscriber register

	reply := make(chan dispatcher.Response, 1)
	d.Requests() <- dispatcher.Request{Command: dispatcher.CmdStart, Job: "quick", Reply: reply}
	<-reply

	s := wire.NewScanner(conn)
	var first wire.Event
	require.NoError(t, s.Next(&first))
	require.Equal(t, "quick", first.Job)
	require.Equal(t, "RUNNING", first.Status)
}
