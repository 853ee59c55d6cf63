package main

import (
	"fmt"
	"os"
)

const usage = "Usage: opscal (auth|sync|list|shift|cancel|cleanup|desync|dispatch|serve)"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "auth":
		authorize()
	case "sync":
		syncCalendar()
	case "list":
		listEvents(args)
	case "shift":
		shiftEvents(args)
	case "cancel":
		cancelEvents(args)
	case "cleanup":
		cleanupEvents(args)
	case "desync":
		desyncCalendar()
	case "dispatch":
		dispatchEmails()
	case "serve":
		serve()
	default:
		fmt.Printf("Unknown command: %s\n%s\n", command, usage)
		os.Exit(1)
	}
}
