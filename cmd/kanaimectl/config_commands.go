package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"kanaime/internal/config"
)

func cmdConfig(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: kanaimectl config init|path|show")
	}

	path := config.ResolveConfigPath(*configPath)
	switch args[0] {
	case "init":
		_, created, err := config.LoadOrCreate(path)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Wrote default configuration to %s\n", path)
		} else {
			fmt.Printf("%s already exists and is valid\n", path)
		}
		return nil

	case "path":
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			fmt.Printf("%s (not created, defaults in effect)\n", path)
			return nil
		}
		fmt.Println(path)
		return nil

	case "show":
		fs := flag.NewFlagSet("config show", flag.ExitOnError)
		format := fs.String("format", "toml", "output format: toml, json or yaml")
		fs.Parse(args[1:])

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return showConfig(cfg, *format)

	default:
		return fmt.Errorf("unknown config command: %s", args[0])
	}
}

func showConfig(cfg *config.Config, format string) error {
	data, err := config.Marshal(cfg, format)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
