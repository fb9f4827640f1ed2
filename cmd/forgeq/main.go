package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	clientcmd "github.com/rzbill/forgeq/internal/cmd/client"
	"github.com/rzbill/forgeq/internal/ui"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := clientcmd.NewRoot()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, clientcmd.ErrReported) {
			fmt.Fprintln(os.Stderr, ui.BoldRed("error:"), err)
		}
		cancel()
		os.Exit(1)
	}
}
