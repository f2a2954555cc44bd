//go:build linux

package ime

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LinuxPlatform implements the Platform interface for IBus.
type LinuxPlatform struct {
	config PlatformConfig

	// run executes an external command and returns its stdout.
	run func(name string, args ...string) ([]byte, error)
}

// NewPlatform returns the platform integration for this OS.
func NewPlatform(config PlatformConfig) Platform {
	return NewLinuxPlatform(config)
}

// NewLinuxPlatform creates a new Linux IME platform.
func NewLinuxPlatform(config PlatformConfig) *LinuxPlatform {
	def := DefaultPlatformConfig()
	if config.BusName == "" {
		config.BusName = def.BusName
	}
	if config.EngineName == "" {
		config.EngineName = def.EngineName
	}
	if config.DisplayName == "" {
		config.DisplayName = def.DisplayName
	}
	if config.Language == "" {
		config.Language = def.Language
	}
	if config.Layout == "" {
		config.Layout = def.Layout
	}
	if config.Symbol == "" {
		config.Symbol = def.Symbol
	}
	if config.ComponentDir == "" {
		config.ComponentDir = defaultComponentDir()
	}

	return &LinuxPlatform{
		config: config,
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
	}
}

func defaultComponentDir() string {
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, "ibus", "component")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "ibus", "component")
}

func (p *LinuxPlatform) Name() string {
	return "linux"
}

func (p *LinuxPlatform) Available() bool {
	if _, err := os.Stat("/usr/share/ibus/component"); err == nil {
		return true
	}
	_, err := exec.LookPath("ibus-daemon")
	return err == nil
}

// ComponentPath returns the component description file.
func (p *LinuxPlatform) ComponentPath() string {
	return filepath.Join(p.config.ComponentDir, p.config.EngineName+".xml")
}

func (p *LinuxPlatform) execPath() (string, error) {
	if p.config.ExecPath != "" {
		return p.config.ExecPath, nil
	}
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return path, nil
}

// Install writes the IBus component description and asks ibus-daemon to
// reload.
func (p *LinuxPlatform) Install() error {
	execPath, err := p.execPath()
	if err != nil {
		return err
	}

	data, err := p.componentXML(execPath)
	if err != nil {
		return fmt.Errorf("generate component: %w", err)
	}

	if err := os.MkdirAll(p.config.ComponentDir, 0755); err != nil {
		return fmt.Errorf("create component directory: %w", err)
	}
	if err := os.WriteFile(p.ComponentPath(), data, 0644); err != nil {
		return fmt.Errorf("write component: %w", err)
	}

	p.restartIBus()
	return nil
}

type ibusComponent struct {
	XMLName     xml.Name     `xml:"component"`
	Name        string       `xml:"name"`
	Description string       `xml:"description"`
	Exec        string       `xml:"exec"`
	Version     string       `xml:"version"`
	License     string       `xml:"license"`
	Textdomain  string       `xml:"textdomain"`
	Engines     []ibusEngine `xml:"engines>engine"`
}

type ibusEngine struct {
	Name        string `xml:"name"`
	Language    string `xml:"language"`
	License     string `xml:"license"`
	Layout      string `xml:"layout"`
	LongName    string `xml:"longname"`
	Description string `xml:"description"`
	Rank        int    `xml:"rank"`
	Symbol      string `xml:"symbol"`
}

func (p *LinuxPlatform) componentXML(execPath string) ([]byte, error) {
	c := ibusComponent{
		Name:        p.config.BusName,
		Description: p.config.DisplayName + " romaji to kana input method",
		Exec:        execPath + " -ibus",
		Version:     "1.0",
		License:     "MIT",
		Textdomain:  p.config.EngineName,
		Engines: []ibusEngine{{
			Name:        p.config.EngineName,
			Language:    p.config.Language,
			License:     "MIT",
			Layout:      p.config.Layout,
			LongName:    p.config.DisplayName,
			Description: "Romaji to kana with glyph substitution",
			Rank:        0,
			Symbol:      p.config.Symbol,
		}},
	}

	out, err := xml.MarshalIndent(c, "", "    ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func (p *LinuxPlatform) restartIBus() {
	p.run("ibus", "restart")
}

// Uninstall removes the component description.
func (p *LinuxPlatform) Uninstall() error {
	if err := os.Remove(p.ComponentPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove component: %w", err)
	}
	p.restartIBus()
	return nil
}

func (p *LinuxPlatform) IsInstalled() bool {
	_, err := os.Stat(p.ComponentPath())
	return err == nil
}

func (p *LinuxPlatform) IsActive() bool {
	output, err := p.run("ibus", "engine")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(output)) == p.config.EngineName
}

func (p *LinuxPlatform) Activate() error {
	if _, err := p.run("ibus", "engine", p.config.EngineName); err != nil {
		return fmt.Errorf("please select %s from your input source settings: %w", p.config.DisplayName, err)
	}
	return nil
}

var _ Platform = (*LinuxPlatform)(nil)
