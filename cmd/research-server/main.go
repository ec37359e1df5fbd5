// The research-server binary serves the paper-research provider over stdio,
// to be launched by the orchestrator as a child process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/medichat/mcp/stdio"
	"github.com/effective-security/medichat/servers/research"
	"github.com/effective-security/xlog"
)

func main() {
	papersDir := flag.String("papers-dir", "papers", "directory of the paper cache")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Stdout carries the protocol; all logging goes to stderr.
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if *debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.INFO)
	}

	searcher, err := research.NewTavilySearcher("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "research-server: %s\n", err.Error())
		os.Exit(1)
	}

	provider := research.NewProvider(research.NewLibrary(*papersDir), searcher)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := provider.Server().Serve(ctx, stdio.New(os.Stdin, os.Stdout)); err != nil {
		fmt.Fprintf(os.Stderr, "research-server: %s\n", err.Error())
		os.Exit(1)
	}
}
