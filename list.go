package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/bobuk/opscal/internal/store"
)

func listEvents(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	days := fs.Int("days", 7, "number of days to list, starting today")
	limit := fs.Int("limit", store.DefaultListLimit, "maximum number of events")
	fs.Parse(args)

	ctx := context.Background()
	a := newApp(ctx)
	defer a.Close()

	loc := a.cfg.Location()
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	views, err := a.events.ListWithStatus(ctx, store.EventFilter{
		From:  from,
		To:    from.AddDate(0, 0, *days),
		Limit: *limit,
	})
	if err != nil {
		log.Fatalf("❌ Error retrieving events from database: %v", err)
	}

	fmt.Println("📋 Here's the list of upcoming events:")
	for _, v := range views {
		line := fmt.Sprintf("  📅 %s %s-%s  %-13s %-9s %-7s %s",
			v.StartTime.In(loc).Format("Mon 02 Jan"), v.StartTime.In(loc).Format("15:04"), v.EndTime.In(loc).Format("15:04"),
			v.Type, v.Status, v.SyncStatus, v.Title())
		if v.DisplayStatus != "" {
			line += fmt.Sprintf(" [%s]", v.DisplayStatus)
		}
		fmt.Println(line)
		printVerbosely(2, "     id: %s\n", v.ID)
	}
}
