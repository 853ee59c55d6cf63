package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bobuk/opscal/internal/models"
	"github.com/bobuk/opscal/internal/services"
)

func eventIDs(fs *flag.FlagSet) []string {
	var ids []string
	for _, arg := range fs.Args() {
		for _, id := range strings.Split(arg, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		fmt.Printf("Usage: opscal %s [flags] <event-id>...\n", fs.Name())
		fs.PrintDefaults()
		os.Exit(1)
	}
	return ids
}

func printItems(items []services.ItemResult) {
	for _, it := range items {
		switch {
		case it.Err != nil:
			fmt.Printf("  ❗️ %s: %v\n", it.EventID, it.Err)
		case it.Notified:
			printVerbosely(2, "  📧 %s\n", it.EventID)
		default:
			printVerbosely(2, "  ✅ %s\n", it.EventID)
		}
	}
}

func shiftEvents(args []string) {
	fs := flag.NewFlagSet("shift", flag.ExitOnError)
	minutes := fs.Int("minutes", 0, "shift in minutes, negative moves events earlier")
	reason := fs.String("reason", string(models.ReasonOther), "technical_issue, staff_illness or other")
	note := fs.String("note", "", "reason shown to customers when reason is other")
	notify := fs.Bool("notify", false, "email affected customers")
	confirm := fs.Bool("confirm", false, "hold the new time until the customer confirms it")
	fs.Parse(args)
	ids := eventIDs(fs)
	if *minutes == 0 {
		fmt.Println("❗️ -minutes must not be zero")
		os.Exit(1)
	}

	ctx := context.Background()
	a := newApp(ctx)
	defer a.Close()

	fmt.Printf("🆘 Shifting %d events by %d minutes...\n", len(ids), *minutes)
	res := a.mayday.ShiftEvents(ctx, services.ShiftRequest{
		EventIDs:            ids,
		ShiftMinutes:        *minutes,
		Reason:              models.CancellationReason(*reason),
		ReasonNote:          *note,
		SendNotifications:   *notify,
		RequireConfirmation: *confirm,
	})
	printItems(res.Items)
	fmt.Printf("✅ %d shifted, %d customers notified\n", res.Shifted, res.Notified)
	if !res.Success {
		os.Exit(1)
	}
}

func cancelEvents(args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	reason := fs.String("reason", string(models.ReasonOther), "technical_issue, staff_illness or other")
	note := fs.String("note", "", "reason shown to customers when reason is other")
	notify := fs.Bool("notify", false, "email affected customers")
	rebook := fs.Bool("rebook", false, "offer customers a rebooking link")
	fs.Parse(args)
	ids := eventIDs(fs)

	ctx := context.Background()
	a := newApp(ctx)
	defer a.Close()

	fmt.Printf("🆘 Cancelling %d events...\n", len(ids))
	res := a.mayday.CancelEventsWithNotification(ctx, services.CancelRequest{
		EventIDs:          ids,
		Reason:            models.CancellationReason(*reason),
		ReasonNote:        *note,
		SendNotifications: *notify,
		OfferRebooking:    *rebook,
	})
	printItems(res.Items)
	fmt.Printf("✅ %d cancelled, %d customers notified\n", res.Cancelled, res.Notified)
	if !res.Success {
		os.Exit(1)
	}
}
