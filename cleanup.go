package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"
)

// cleanupEvents purges cancelled events that ended long ago, together with
// their tokens.
func cleanupEvents(args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	days := fs.Int("days", 0, "purge cancelled events older than this many days (default from config)")
	fs.Parse(args)

	ctx := context.Background()
	a := newApp(ctx)
	defer a.Close()

	if *days <= 0 {
		*days = a.cfg.Mayday.PurgeCancelledAfterD
	}
	n, err := a.events.PurgeCancelled(ctx, time.Duration(*days)*24*time.Hour)
	if err != nil {
		log.Fatalf("Error purging cancelled events: %v", err)
	}
	fmt.Printf("🧹 %d cancelled events older than %d days removed\n", n, *days)
}
