package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bobuk/opscal/internal/calendar"
	"github.com/bobuk/opscal/internal/store"
)

// authorize stores an OAuth token for the configured Google account, then
// checks the calendar is reachable.
func authorize() {
	cfg := loadConfig()
	db := openDB(cfg)
	defer db.Close()
	ctx := context.Background()

	fmt.Println("🚀 Starting calendar authorization...")
	if cfg.Calendar.Provider == "google" {
		conf := calendar.NewOAuthConfig(cfg.ClientID, cfg.ClientSecret)
		fmt.Printf("Go to the following link in your browser then type the "+
			"authorization code: \n%v\n", calendar.AuthCodeURL(conf))

		var authCode string
		if _, err := fmt.Scan(&authCode); err != nil {
			log.Fatalf("Unable to read authorization code: %v", err)
		}
		tokens := store.NewOAuthTokensRepo(db)
		if err := calendar.ExchangeAndSave(ctx, conf, tokens, cfg.Calendar.AccountName, authCode); err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Printf("👤 Token saved for account %s\n", cfg.Calendar.AccountName)
	}

	client, err := calendar.NewClientFromConfig(ctx, cfg, store.NewOAuthTokensRepo(db), nil)
	if err != nil {
		log.Fatalf("Error creating calendar provider: %v", err)
	}
	now := time.Now()
	if _, err := client.List(ctx, now, now.Add(24*time.Hour), 1); err != nil {
		log.Fatalf("Error retrieving calendar %s: %v", cfg.Calendar.CalendarID, err)
	}
	fmt.Printf("✅ Calendar %s (%s) is reachable\n", cfg.Calendar.CalendarID, cfg.Calendar.Provider)
}
