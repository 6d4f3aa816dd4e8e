package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cierrors "github.com/cicoord/cicoord/pkg/errors"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	rootCmd := newRoot().Command()
	if cmd, err := rootCmd.ExecuteContextC(ctx); err != nil {
		var usage usageError
		var help *cierrors.Error
		switch {
		case errors.As(err, &usage):
			cmd.Println("")
			cmd.Println(cmd.UsageString())
		case errors.As(err, &help) && help.Help != "":
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprint(os.Stderr, help.Help)
		}
		os.Exit(1)
	}
}
