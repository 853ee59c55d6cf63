package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobuk/opscal/internal/httpapi"
)

func serve() {
	ctx := context.Background()
	a := newApp(ctx)
	defer a.Close()

	srv := httpapi.New(a.events, a.sync, a.mayday, a.deps.Links, a.lg)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		a.lg.Printf("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			a.lg.Printf("❗️ Shutdown: %v", err)
		}
	}()

	if err := srv.Listen(a.cfg.Server.Listen); err != nil {
		log.Fatalf("Error serving HTTP: %v", err)
	}
}
