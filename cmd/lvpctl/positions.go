package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/abelbrown/lastview/internal/scrollpos"
)

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	rawJSON := fs.Bool("json", false, "Output JSON")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: lvpctl show <feed>")
	}
	feedKey := fs.Arg(0)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, closeFn, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := cmdContext()
	defer cancel()

	p, err := repo.Get(ctx, feedKey)
	if errors.Is(err, scrollpos.ErrNotFound) {
		fmt.Printf("%s: no saved position\n", feedKey)
		return nil
	}
	if err != nil {
		return err
	}
	if *rawJSON {
		return writeJSON(os.Stdout, positionJSON(p))
	}
	printPosition(os.Stdout, p)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	rawJSON := fs.Bool("json", false, "Output JSON")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, closeFn, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := cmdContext()
	defer cancel()

	all, err := repo.List(ctx)
	if err != nil {
		return err
	}
	if *rawJSON {
		out := make([]positionRecord, len(all))
		for i, p := range all {
			out[i] = positionJSON(p)
		}
		return writeJSON(os.Stdout, out)
	}
	if len(all) == 0 {
		fmt.Println("No saved positions.")
		return nil
	}
	fmt.Printf("%-20s %-28s %14s  %s\n", "FEED", "ITEM", "SORT", "UPDATED")
	for _, p := range all {
		fmt.Printf("%-20s %-28s %14d  %s\n",
			truncate(p.FeedKey, 20), truncate(p.LastViewedItemID, 28),
			p.LastViewedSortValue, updatedAt(p).Format(time.RFC3339))
	}
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: lvpctl delete <feed>")
	}
	feedKey := fs.Arg(0)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, closeFn, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := cmdContext()
	defer cancel()

	if err := repo.Delete(ctx, feedKey); err != nil {
		return err
	}
	fmt.Printf("Deleted position for %s\n", feedKey)
	return nil
}

func runClear(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	yes := fs.Bool("y", false, "Do not ask for confirmation")
	fs.Parse(args)

	if !*yes {
		fmt.Print("Forget every saved position? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, closeFn, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := cmdContext()
	defer cancel()

	n, err := repo.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d positions\n", n)
	return nil
}

type positionRecord struct {
	FeedKey   string    `json:"feed"`
	ItemID    string    `json:"item,omitempty"`
	SortValue int64     `json:"sort_value,omitempty"`
	Updated   time.Time `json:"updated"`
	Valid     bool      `json:"valid"`
}

func positionJSON(p scrollpos.Position) positionRecord {
	return positionRecord{
		FeedKey:   p.FeedKey,
		ItemID:    p.LastViewedItemID,
		SortValue: p.LastViewedSortValue,
		Updated:   updatedAt(p),
		Valid:     p.Valid(),
	}
}

func printPosition(w io.Writer, p scrollpos.Position) {
	fmt.Fprintf(w, "Feed:        %s\n", p.FeedKey)
	fmt.Fprintf(w, "Item:        %s\n", p.LastViewedItemID)
	fmt.Fprintf(w, "Sort value:  %d\n", p.LastViewedSortValue)
	fmt.Fprintf(w, "Updated:     %s\n", updatedAt(p).Format(time.RFC3339))
	if !p.Valid() {
		fmt.Fprintln(w, "(incomplete: treated as no saved position)")
	}
}

func updatedAt(p scrollpos.Position) time.Time {
	return time.UnixMilli(p.LastUpdated)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
