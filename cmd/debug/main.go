package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/thatsimonsguy/ozone-monitor/db"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command string
	var limit int
	flag.StringVar(&dbPath, "db", "data/ozone.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: show-cycle, commands")
	flag.IntVar(&limit, "limit", 20, "Number of command log entries to show")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of ozone-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/ozone.db')")
		fmt.Println("  -cmd string\tCommand to run: show-cycle, commands")
		fmt.Println("  -limit int\tNumber of command log entries to show (default 20)")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "show-cycle":
		err = showCycle(dbPath)
	case "commands":
		err = showCommands(dbPath, limit)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func showCycle(dbPath string) error {
	state, ok, err := db.ShowCycleCLI(dbPath)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("No active cycle")
		return nil
	}
	fmt.Printf("Started:   %s\n", state.StartedAt().Format(time.RFC3339))
	fmt.Printf("Total:     %d min\n", state.TotalMinutes)
	fmt.Printf("Remaining: %d min\n", state.Remaining(time.Now()))
	return nil
}

func showCommands(dbPath string, limit int) error {
	records, err := db.RecentCommandsCLI(dbPath, limit)
	if err != nil {
		return err
	}
	for _, rec := range records {
		outcome := "ok"
		if !rec.OK {
			outcome = fmt.Sprintf("failed (status %d): %s", rec.Status, rec.Error)
		}
		fmt.Printf("%s  %-7s %5dms  %s\n", rec.IssuedAt.Format(time.RFC3339), rec.Kind, rec.PulseMs, outcome)
	}
	return nil
}
