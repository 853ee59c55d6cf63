package main

import (
	"context"
	"fmt"
	"log"
	"os"
)

// desyncCalendar removes every exported event from the external calendar and
// detaches the local records.
func desyncCalendar() {
	ctx := context.Background()
	a := newApp(ctx)
	defer a.Close()

	fmt.Println("🚀 Starting calendar desynchronization...")
	res, err := a.sync.Unlink(ctx)
	if err != nil {
		log.Fatalf("Error retrieving linked events: %v", err)
	}
	for _, e := range res.Errors {
		fmt.Printf("  ❗️ %s\n", e)
	}
	fmt.Printf("🗑 %d remote events removed\n", res.Removed)
	if len(res.Errors) > 0 {
		os.Exit(1)
	}
	fmt.Println("✅ Calendar desynchronization completed successfully!")
}
