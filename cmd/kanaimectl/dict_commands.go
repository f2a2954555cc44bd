package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"kanaime/internal/config"
	"kanaime/internal/romaji"
	"kanaime/internal/store"
)

// openStore opens the configured store whether or not hosts record to it.
func openStore() (*config.Config, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.OpenWithOptions(cfg.Store.Path, store.Options{
		BusyTimeout: time.Duration(cfg.Store.BusyTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, st, nil
}

func cmdDict(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: kanaimectl dict add|remove|list|check")
	}

	switch args[0] {
	case "add":
		if len(args) != 3 {
			return errors.New("usage: kanaimectl dict add <key> <value>")
		}
		return dictAdd(args[1], args[2])
	case "remove":
		if len(args) != 2 {
			return errors.New("usage: kanaimectl dict remove <key>")
		}
		return dictRemove(args[1])
	case "list":
		return dictList()
	case "check":
		if len(args) != 2 {
			return errors.New("usage: kanaimectl dict check <file>")
		}
		return dictCheck(args[1])
	default:
		return fmt.Errorf("unknown dict command: %s", args[0])
	}
}

func dictAdd(key, value string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	// Reject entries that would break the merged dictionary at startup.
	existing, err := st.Entries()
	if err != nil {
		return err
	}
	existing[key] = value
	if _, err := romaji.Default().Merge(existing); err != nil {
		return err
	}

	if err := st.PutEntry(key, value); err != nil {
		return err
	}
	fmt.Printf("Added %s -> %s\n", key, value)
	if !cfg.Dictionary.UseStore {
		fmt.Println("Note: dictionary.use_store is off; hosts will not load this entry.")
	}
	return nil
}

func dictRemove(key string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteEntry(key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no user entry for %q", key)
		}
		return err
	}
	fmt.Printf("Removed %s\n", key)
	return nil
}

func dictList() error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.ListEntries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No user dictionary entries.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE\tADDED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Key, e.Value, e.CreatedAt.Format(time.DateTime))
	}
	return w.Flush()
}

func dictCheck(path string) error {
	f, err := romaji.LoadFile(path)
	if err != nil {
		return err
	}
	dict, err := f.Apply(romaji.Default())
	if err != nil {
		return err
	}

	name := f.Name
	if name == "" {
		name = path
	}
	fmt.Printf("%s: %d entries, %d keys after merge\n", name, len(f.Entries), dict.Len())

	shadowed := dict.Shadowed()
	var unreachable []string
	for key := range f.Entries {
		if _, ok := shadowed[key]; ok {
			unreachable = append(unreachable, key)
		}
	}
	sort.Strings(unreachable)
	for _, key := range unreachable {
		fmt.Printf("  warning: %q is never typed, %q matches first\n", key, shadowed[key])
	}
	return nil
}

func cmdStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of keys to show (0 for all)")
	byKey := fs.Bool("by-key", false, "sort by key instead of count")
	reset := fs.Bool("reset", false, "clear conversion statistics")
	fs.Parse(args)

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if *reset {
		if err := st.ResetConversions(); err != nil {
			return err
		}
		fmt.Println("Conversion statistics cleared.")
		return nil
	}

	totals, err := st.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("User entries:  %d\n", totals.Entries)
	fmt.Printf("Keys seen:     %d\n", totals.Keys)
	fmt.Printf("Conversions:   %d\n", totals.Conversions)
	if totals.Conversions == 0 {
		return nil
	}

	top, err := st.TopConversions(*limit)
	if err != nil {
		return err
	}
	if *byKey {
		store.SortStatsByKey(top)
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tOUTPUT\tCOUNT\tLAST")
	for _, s := range top {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Key, s.Output, s.Count, s.Last.Format(time.DateTime))
	}
	return w.Flush()
}
