// sync.go
package main

import (
	"context"
	"fmt"
	"os"
)

func syncCalendar() {
	ctx := context.Background()
	a := newApp(ctx)
	defer a.Close()

	fmt.Println("🚀 Starting calendar synchronization...")
	res := a.sync.FullSync(ctx)
	printVerbosely(1, "  📥 Imported: %d\n  ➕ Exported: %d\n  🔄 Updated: %d\n", res.Imported, res.Exported, res.Updated)
	for _, e := range res.Errors {
		fmt.Printf("  ❗️ %s\n", e)
	}
	if !res.Success {
		fmt.Printf("❗️ Calendar synchronization finished with %d errors\n", len(res.Errors))
		os.Exit(1)
	}
	fmt.Println("✅ Calendar synchronization completed successfully!")
}
