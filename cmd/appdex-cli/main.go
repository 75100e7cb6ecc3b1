package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/appdex/appdexd/client/launcher"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <command> [args...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  search <query>  - Fuzzy search applications\n")
		fmt.Fprintf(os.Stderr, "  list            - List most used applications\n")
		fmt.Fprintf(os.Stderr, "  run <id>        - Launch application by id\n")
		fmt.Fprintf(os.Stderr, "  rescan          - Rescan application directories\n")
		fmt.Fprintf(os.Stderr, "  stats           - Show index statistics\n")
		fmt.Fprintf(os.Stderr, "  limit <n>       - Set result limit for this session\n")
		fmt.Fprintf(os.Stderr, "  interactive     - Interactive mode\n")
		os.Exit(1)
	}

	client, err := launcher.NewClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to appdexd: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	cmd := os.Args[1]

	if cmd == "interactive" {
		runInteractive(client)
		return
	}

	if err := execute(client, cmd, os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func execute(client *launcher.Client, cmd string, args []string) error {
	switch cmd {
	case "search":
		if len(args) < 1 {
			return fmt.Errorf("usage: search <query>")
		}
		matches, err := client.Search(strings.Join(args, " "))
		if err != nil {
			return err
		}
		printMatches(matches)
	case "list":
		matches, err := client.List()
		if err != nil {
			return err
		}
		printMatches(matches)
	case "run":
		if len(args) < 1 {
			return fmt.Errorf("usage: run <id>")
		}
		if err := client.Run(args[0]); err != nil {
			return err
		}
		fmt.Println("started")
	case "rescan":
		added, removed, err := client.Rescan()
		if err != nil {
			return err
		}
		fmt.Printf("rescan done: %d added, %d removed\n", added, removed)
	case "stats":
		attrs, err := client.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("records:   %s\n", attrs["records"])
		fmt.Printf("snapshot:  %s\n", attrs["snapshot"])
		fmt.Printf("last scan: %s\n", attrs["last-scan"])
	case "limit":
		if len(args) < 1 {
			return fmt.Errorf("usage: limit <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("limit must be an integer")
		}
		return client.SetLimit(n)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

func printMatches(matches []launcher.Match) {
	for _, m := range matches {
		fmt.Printf("%s\t%d\t%s\n", m.ID, m.Score, m.Name)
	}
}

func runInteractive(client *launcher.Client) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Interactive mode. Type a query, 'run <id>', or 'exit'.")
	fmt.Print("> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "exit" || line == "quit" {
			break
		}
		if line == "" {
			fmt.Print("> ")
			continue
		}

		parts := strings.Fields(line)
		var err error
		switch parts[0] {
		case "run", "rescan", "stats", "list", "limit", "search":
			err = execute(client, parts[0], parts[1:])
		default:
			// Bare text is a search query.
			err = execute(client, "search", parts)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}

		fmt.Print("> ")
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
	}
}
