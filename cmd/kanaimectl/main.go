// kanaimectl is the command-line front end for kanaime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"
	"golang.org/x/text/transform"

	"kanaime/internal/bootstrap"
	"kanaime/internal/config"
	"kanaime/internal/health"
	"kanaime/internal/ime"
	"kanaime/internal/server"
	"kanaime/internal/terminal"
)

var (
	configPath = flag.String("config", "", "path to config file")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch cmd {
	case "convert":
		err = cmdConvert(args)
	case "try":
		err = cmdTry(args)
	case "serve":
		err = cmdServe(args)
	case "dict":
		err = cmdDict(args)
	case "stats":
		err = cmdStats(args)
	case "config":
		err = cmdConfig(args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `kanaimectl - romaji to kana input method

Usage: kanaimectl [options] <command> [args]

Commands:
  convert [text...]         Transliterate text, or stdin when no text is given
  try                       Type interactively in the terminal
  serve [-addr host:port]   Serve sessions over websockets
  dict add <key> <value>    Add a user dictionary entry
  dict remove <key>         Remove a user dictionary entry
  dict list                 List user dictionary entries
  dict check <file>         Validate a dictionary file
  stats [-n N] [-by-key]    Show conversion statistics
  config init               Write a default config file if none exists
  config path               Print the config file in use
  config show [-format f]   Print the effective configuration
  help                      Show this help message

Options:
  -config <path>  Path to config file (default: searched in standard locations)`)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ResolveConfigPath(*configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func cmdConvert(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := bootstrap.OpenStore(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}
	factory, err := bootstrap.BuildFactory(cfg, st)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		fmt.Println(ime.Transliterate(factory, strings.Join(args, " ")))
		return nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("stdin is a terminal; pipe text in, pass it as arguments, or use kanaimectl try")
	}

	r := transform.NewReader(os.Stdin, ime.NewTransformer(factory))
	if _, err := io.Copy(os.Stdout, r); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	return nil
}

func cmdTry(args []string) error {
	fs := flag.NewFlagSet("try", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The screen owns the terminal; console log output would corrupt it.
	cfg.Logging.Output = "file"
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	rt, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}

	host := terminal.New(screen, rt.Sessions, terminal.Options{
		Logger:   rt.Logger.Logger,
		Observer: rt.Observer(),
	})
	err = host.Run(ctx)
	screen.Fini()
	if err != nil {
		return err
	}

	if text := host.Text(); text != "" {
		fmt.Println(text)
	}
	return nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address (default from config)")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	rt, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	checker := health.NewChecker()
	checker.RegisterFunc("sessions", true, health.SessionsCheck(rt.Sessions))
	if rt.Store != nil {
		checker.RegisterFunc("store", false, health.PingCheck("store", rt.Store.Ping))
	}

	sc := server.FromSettings(cfg.Server)
	sc.Logger = rt.Logger.Logger
	sc.Observer = rt.Observer()
	sc.Health = checker

	return server.New(rt.Sessions, sc).ListenAndServe(ctx, cfg.Server.Addr, nil)
}
