// Command linechat is a line-oriented TCP chat: run with -l to accept any
// number of clients, or give a host to connect to one server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:], stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr}); err != nil {
		fmt.Fprintf(os.Stderr, "linechat: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
