// Command jobmond is the supervisor daemon: it loads a configuration
// document, then wires together the job table, the event bus, the
// signal reaper, and the two socket frontends spec.md §2 describes.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/adamnew123456/jobmon/internal/bus"
	"github.com/adamnew123456/jobmon/internal/config"
	"github.com/adamnew123456/jobmon/internal/dispatcher"
	"github.com/adamnew123456/jobmon/internal/frontend"
	"github.com/adamnew123456/jobmon/internal/jobcore"
	"github.com/adamnew123456/jobmon/internal/log"
	"github.com/adamnew123456/jobmon/internal/reaper"
)

var configFlag = flag.String("config", "/etc/jobmon/jobmon.yaml", "path to the jobmon configuration document")

const (
	ecSuccess = iota
	// ecConfig indicates the configuration document failed to load or validate.
	ecConfig
	// ecLogSink indicates the configured log sink could not be opened.
	ecLogSink
	// ecListen indicates a socket frontend failed to bind its endpoint.
	ecListen
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobmond: load config: %v\n", err)
		return ecConfig
	}

	sink, err := openLogSink(cfg.LogSink)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobmond: open log sink: %v\n", err)
		return ecLogSink
	}
	defer sink.Close()

	logger := log.New(sink, "jobmond", log.ParseLevel(cfg.LogLevel))

	r := reaper.New()
	go r.Run()
	defer r.Stop()

	b := bus.New()
	d := dispatcher.New(cfg, jobcore.NewRunner(), b, r.Exits(), logger)

	controlListener, err := frontend.Listen(cfg.ControlEndpoint)
	if err != nil {
		logger.Criticalf("bind control endpoint %s: %v", cfg.ControlEndpoint, err)
		return ecListen
	}
	defer controlListener.Close()

	eventListener, err := frontend.Listen(cfg.EventEndpoint)
	if err != nil {
		logger.Criticalf("bind event endpoint %s: %v", cfg.EventEndpoint, err)
		return ecListen
	}
	defer eventListener.Close()

	control := frontend.NewControl(controlListener, d.Requests(), logger)
	event := frontend.NewEvent(eventListener, b, logger)

	go d.Run()
	d.Autostart()
	go control.Serve()
	go event.Serve()

	logger.Infof("jobmond listening: control=%s event=%s", cfg.ControlEndpoint, cfg.EventEndpoint)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh

	logger.Infof("shutdown requested")
	d.Shutdown()
	<-d.Done()
	logger.Infof("shutdown complete")

	return ecSuccess
}

// openLogSink resolves the configured log sink: "stdout", "stderr", or a
// file path opened append.
func openLogSink(sink string) (io.WriteCloser, error) {
	switch sink {
	case "", "stdout":
		return nopCloser{os.Stdout}, nil
	case "stderr":
		return nopCloser{os.Stderr}, nil
	default:
		return os.OpenFile(sink, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
