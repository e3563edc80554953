package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nodegraph/wiresock/pkg/wirelog"
	"github.com/nodegraph/wiresock/server"
)

const loggerName = "stdio"

var (
	fHost           = flag.String("host", "0.0.0.0", "address to bind")
	fPort           = flag.Int("port", 9000, "port to listen on")
	fHeaderLen      = flag.Int("header-len", 16, "frame header width, in bytes")
	fMaxConnections = flag.Int("max-connections", 0, "maximum concurrent connections, 0 for unlimited")
	fCacheSize      = flag.Int("cache-size", 0, "dispatch message cache size: negative disables, zero is unbounded")
	fKeepalive      = flag.Bool("keepalive", true, "enable the keepalive supervisor")
	fLevel          = wirelog.INFO
)

func init() {
	flag.Var(&fLevel, "level", "log level: debug, info, warn, error, fatal")
}

func main() {
	flag.Parse()

	wirelog.AddLogger(loggerName, os.Stderr, fLevel, true)

	s, err := server.New(*fHost, *fPort,
		server.HeaderLen(*fHeaderLen),
		server.MaxConnections(*fMaxConnections),
		server.CacheSize(*fCacheSize),
		server.Keepalive(*fKeepalive),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wiresockd: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		wirelog.Info("wiresockd: shutting down")
		cancel()
	}()

	wirelog.Info("wiresockd: listening on %s:%d", *fHost, *fPort)
	if err := s.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "wiresockd: %v\n", err)
		os.Exit(1)
	}
}
