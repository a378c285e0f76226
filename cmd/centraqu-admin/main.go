// centraqu-admin applies the database schema and issues or deactivates intake links from
// the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/admin"

	"github.com/spf13/pflag"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := admin.Run(ctx, os.Args[1:], os.Stdout, admin.OpenPostgres)
	cancel()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
