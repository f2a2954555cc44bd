//go:build linux

// kanaime-ibus is the Linux IBus input method engine.
//
// Installation:
//  1. Copy the binary to /usr/local/bin/kanaime-ibus
//  2. Run: kanaime-ibus -install
//  3. Enable via ibus-setup or GNOME Settings > Keyboard > Input Sources
//
// ibus-daemon starts the engine with -ibus. Every input context gets its own
// engine; the configuration file is watched and new contexts pick up changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"kanaime/internal/bootstrap"
	"kanaime/internal/config"
	"kanaime/internal/ime"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	installFlag := flag.Bool("install", false, "install the IBus component")
	uninstallFlag := flag.Bool("uninstall", false, "uninstall the IBus component")
	ibusFlag := flag.Bool("ibus", false, "started by ibus-daemon")
	flag.Parse()

	loader := config.NewLoader(config.ResolveConfigPath(*configPath))
	cfg, err := loader.Load()
	if err != nil {
		fatalf("load config: %v", err)
	}

	platform := ime.NewLinuxPlatform(platformConfig(cfg))

	if *installFlag {
		if err := platform.Install(); err != nil {
			fatalf("install: %v", err)
		}
		fmt.Printf("Installed %s\n", platform.ComponentPath())
		return
	}
	if *uninstallFlag {
		if err := platform.Uninstall(); err != nil {
			fatalf("uninstall: %v", err)
		}
		fmt.Println("Uninstalled.")
		return
	}
	if !*ibusFlag && !platform.IsInstalled() {
		fmt.Fprintln(os.Stderr, "Component not installed; run kanaime-ibus -install first.")
	}

	if err := run(loader, cfg); err != nil {
		fatalf("%v", err)
	}
}

func run(loader *config.Loader, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	release, err := acquireLock(filepath.Join(config.PlatformDataDir(), "kanaime-ibus.lock"))
	if err != nil {
		return err
	}
	defer release()

	rt, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.Logger

	host := ime.NewIBusHost(rt.Sessions, ime.IBusHostConfig{
		BusName:    cfg.IBus.BusName,
		EngineName: cfg.IBus.EngineName,
		Logger:     logger.Logger,
		Observer:   rt.Observer(),
	})
	if err := host.Start(ctx); err != nil {
		return fmt.Errorf("start ibus host: %w", err)
	}
	defer host.Stop()

	loader.OnChange(func(_, next *config.Config) {
		if err := rt.Reload(next); err != nil {
			logger.Warn("reload rejected", "error", err)
		}
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch disabled", "error", err)
	}
	defer loader.Close()

	logger.Info("kanaime ibus engine started",
		"bus_name", cfg.IBus.BusName,
		"engine", cfg.IBus.EngineName,
		"config", loader.Path(),
	)

	for {
		select {
		case <-ctx.Done():
			stats := host.Stats()
			logger.Info("shutting down",
				"engines_created", stats.EnginesCreated,
				"keys_handled", stats.KeysHandled,
				"commits", stats.Commits,
			)
			return nil
		case err := <-loader.Errors():
			logger.Warn("config reload failed", "error", err)
		}
	}
}

func platformConfig(cfg *config.Config) ime.PlatformConfig {
	pc := ime.DefaultPlatformConfig()
	pc.BusName = cfg.IBus.BusName
	pc.EngineName = cfg.IBus.EngineName
	pc.ComponentDir = cfg.IBus.ComponentDir
	pc.ExecPath = cfg.IBus.ExecPath
	return pc
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "kanaime-ibus: "+format+"\n", args...)
	os.Exit(1)
}
