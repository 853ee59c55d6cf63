package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/bobuk/opscal/internal/config"
	"github.com/bobuk/opscal/internal/notify"
	"github.com/bobuk/opscal/internal/store"
)

// dispatchEmails sends one batch of pending outbox messages over SMTP.
func dispatchEmails() {
	cfg := loadConfig()
	if cfg.SMTP.Host == "" || cfg.SMTP.From == "" {
		log.Fatalf("Error: smtp.host and smtp.from must be set in %s", config.DefaultFilename)
	}
	db := openDB(cfg)
	defer db.Close()

	dialer := notify.NewSMTPDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	lg := log.New(os.Stderr, "", log.LstdFlags)
	d := notify.NewDispatcher(store.NewEmailQueueRepo(db), dialer, cfg.SMTP.From, cfg.SMTP.Batch, lg)

	res, err := d.Dispatch(context.Background())
	if err != nil {
		log.Fatalf("Error sending emails: %v", err)
	}
	fmt.Printf("📧 %d sent, %d failed\n", res.Sent, res.Failed)
	if res.Failed > 0 {
		os.Exit(1)
	}
}
