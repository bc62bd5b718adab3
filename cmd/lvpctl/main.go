// Command lvpctl inspects and edits saved timeline positions.
//
// Usage:
//
//	lvpctl                  Show help
//	lvpctl show <feed>      Print the saved position for a feed
//	lvpctl list             List every saved position
//	lvpctl delete <feed>    Forget a feed's position
//	lvpctl clear            Forget every position
//	lvpctl events           JSONL event log viewer
package main

import (
	"fmt"
	"os"
)

const usage = `lvpctl - last viewed position tool

Usage:
  lvpctl <command> [flags]

Commands:
  show <feed>     Print the saved position for a feed
  list            List every saved position
  delete <feed>   Forget a feed's position
  clear           Forget every position
  events          JSONL event log viewer

Environment:
  LASTVIEW_DATA_DIR          Data directory (default: ~/.lastview)
  LASTVIEW_CACHE_REDIS_ADDR  Also read and invalidate the Redis cache

Run 'lvpctl <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	var err error
	switch cmd {
	case "show":
		err = runShow(os.Args[1:])
	case "list":
		err = runList(os.Args[1:])
	case "delete":
		err = runDelete(os.Args[1:])
	case "clear":
		err = runClear(os.Args[1:])
	case "events":
		err = runEvents(os.Args[1:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "lvpctl: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "lvpctl %s: %v\n", cmd, err)
		os.Exit(1)
	}
}
