package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/forumdesk/foyer/internal/app"
	"github.com/forumdesk/foyer/internal/common"
)

func main() {
	a, err := app.NewApp(os.Getenv("FOYER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	a.StartSweeper()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	common.PrintShutdownBanner(a.Logger)
	a.Close()
}
