//go:build linux

package ime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"
)

// IBus D-Bus constants
const (
	IBusService          = "org.freedesktop.IBus"
	IBusPath             = "/org/freedesktop/IBus"
	IBusFactoryPath      = "/org/freedesktop/IBus/Factory"
	IBusFactoryInterface = "org.freedesktop.IBus.Factory"
	IBusEngineInterface  = "org.freedesktop.IBus.Engine"
	IBusServiceInterface = "org.freedesktop.IBus.Service"
)

// IBus key event state masks
const (
	IBusShiftMask   uint32 = 1 << 0
	IBusLockMask    uint32 = 1 << 1
	IBusControlMask uint32 = 1 << 2
	IBusMod1Mask    uint32 = 1 << 3 // Alt
	IBusMod4Mask    uint32 = 1 << 6 // Super/Meta
	IBusReleaseMask uint32 = 1 << 30

	// ibusShortcutMask marks key events that belong to application shortcuts.
	ibusShortcutMask = IBusControlMask | IBusMod1Mask | IBusMod4Mask
)

// Common GDK key symbols
const (
	GDKBackSpace = 0xff08
	GDKDelete    = 0xffff
	GDKReturn    = 0xff0d
	GDKTab       = 0xff09
	GDKEscape    = 0xff1b
	GDKSpace     = 0x0020
)

// IBus text attribute constants
const (
	ibusAttrTypeUnderline   uint32 = 1
	ibusAttrUnderlineSingle uint32 = 1
)

// busConn is the part of *dbus.Conn the host uses after connecting.
type busConn interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// ibusAttribute is the D-Bus form of IBusAttribute, (sa{sv}uuuu).
type ibusAttribute struct {
	Name        string
	Attachments map[string]dbus.Variant
	Type        uint32
	Value       uint32
	StartIndex  uint32
	EndIndex    uint32
}

// ibusAttrList is the D-Bus form of IBusAttrList, (sa{sv}av).
type ibusAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attributes  []dbus.Variant
}

// ibusText is the D-Bus form of IBusText, (sa{sv}sv).
type ibusText struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	AttrList    dbus.Variant
}

// newIBusText wraps text for CommitText and UpdatePreeditText signals. An
// underlined text carries one underline attribute over its whole length.
func newIBusText(text string, underline bool) dbus.Variant {
	attrs := ibusAttrList{
		Name:        "IBusAttrList",
		Attachments: map[string]dbus.Variant{},
		Attributes:  []dbus.Variant{},
	}
	if underline && text != "" {
		attrs.Attributes = append(attrs.Attributes, dbus.MakeVariant(ibusAttribute{
			Name:        "IBusAttribute",
			Attachments: map[string]dbus.Variant{},
			Type:        ibusAttrTypeUnderline,
			Value:       ibusAttrUnderlineSingle,
			StartIndex:  0,
			EndIndex:    uint32(utf8.RuneCountInString(text)),
		}))
	}

	return dbus.MakeVariant(ibusText{
		Name:        "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        text,
		AttrList:    dbus.MakeVariant(attrs),
	})
}

// IBusHostConfig holds IBus host configuration.
type IBusHostConfig struct {
	// BusName is the well-known name requested on the IBus bus.
	BusName string

	// EngineName is the only engine name CreateEngine accepts.
	EngineName string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Observer, if set, sees every batch of committed commands.
	Observer CommitObserver
}

// DefaultIBusHostConfig returns sensible defaults.
func DefaultIBusHostConfig() IBusHostConfig {
	def := DefaultPlatformConfig()
	return IBusHostConfig{
		BusName:    def.BusName,
		EngineName: def.EngineName,
	}
}

// IBusStats tracks host statistics.
type IBusStats struct {
	EnginesCreated   uint64
	EnginesDestroyed uint64
	KeysHandled      uint64
	KeysPassed       uint64
	Commits          uint64
	FocusChanges     uint64
	LastKeyTime      time.Time
	LastFocusChange  time.Time
}

// IBusHost serves kanaime engines to ibus-daemon. Each engine object IBus
// creates owns one session, and therefore one Engine.
type IBusHost struct {
	sessions *SessionManager
	config   IBusHostConfig
	logger   *slog.Logger
	focus    *FocusTracker

	bus  *dbus.Conn
	conn busConn

	mu      sync.Mutex
	engines map[dbus.ObjectPath]*IBusEngine
	nextID  uint32
	stats   IBusStats
}

// NewIBusHost creates a host that opens sessions on sessions.
func NewIBusHost(sessions *SessionManager, config IBusHostConfig) *IBusHost {
	def := DefaultIBusHostConfig()
	if config.BusName == "" {
		config.BusName = def.BusName
	}
	if config.EngineName == "" {
		config.EngineName = def.EngineName
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &IBusHost{
		sessions: sessions,
		config:   config,
		logger:   logger.With("component", "ibus"),
		focus:    NewFocusTracker(),
		engines:  make(map[dbus.ObjectPath]*IBusEngine),
	}
}

// Start connects to the IBus bus, requests the bus name and exports the
// factory. It returns once the host is ready to serve.
func (h *IBusHost) Start(ctx context.Context) error {
	bus, err := connectIBus(ctx)
	if err != nil {
		return err
	}

	reply, err := bus.RequestName(h.config.BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		bus.Close()
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		bus.Close()
		return fmt.Errorf("bus name %s already taken", h.config.BusName)
	}

	h.bus = bus
	if err := h.serve(bus); err != nil {
		bus.Close()
		return err
	}

	h.logger.Info("ibus host started", "bus_name", h.config.BusName, "engine", h.config.EngineName)
	return nil
}

func (h *IBusHost) serve(conn busConn) error {
	h.conn = conn
	factory := &IBusFactory{host: h}
	if err := conn.Export(factory, IBusFactoryPath, IBusFactoryInterface); err != nil {
		return fmt.Errorf("export factory: %w", err)
	}
	return nil
}

// connectIBus dials the IBus daemon's private bus. It falls back to the
// session bus when no IBus address can be found.
func connectIBus(ctx context.Context) (*dbus.Conn, error) {
	addr := os.Getenv("IBUS_ADDRESS")
	if addr == "" {
		if out, err := exec.CommandContext(ctx, "ibus", "address").Output(); err == nil {
			addr = strings.TrimSpace(string(out))
		}
	}

	if addr != "" && addr != "(null)" {
		conn, err := dbus.Connect(addr, dbus.WithContext(ctx))
		if err == nil {
			return conn, nil
		}
		slog.Warn("ibus address unusable, trying session bus", "address", addr, "error", err)
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return conn, nil
}

// Stop flushes and closes every session and disconnects.
func (h *IBusHost) Stop() error {
	h.mu.Lock()
	engines := make([]*IBusEngine, 0, len(h.engines))
	for _, e := range h.engines {
		engines = append(engines, e)
	}
	h.mu.Unlock()

	for _, e := range engines {
		e.Destroy()
	}

	if h.bus != nil {
		return h.bus.Close()
	}
	return nil
}

// Stats returns host statistics.
func (h *IBusHost) Stats() IBusStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Engines returns the number of live engine objects.
func (h *IBusHost) Engines() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.engines)
}

func (h *IBusHost) count(fn func(s *IBusStats)) {
	h.mu.Lock()
	fn(&h.stats)
	h.mu.Unlock()
}

// IBusFactory implements the IBus Factory D-Bus interface.
type IBusFactory struct {
	host *IBusHost
}

// CreateEngine creates a new engine instance for IBus.
func (f *IBusFactory) CreateEngine(engineName string) (dbus.ObjectPath, *dbus.Error) {
	h := f.host
	h.logger.Debug("CreateEngine", "engine", engineName)

	if engineName != h.config.EngineName {
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine",
			[]interface{}{"Unknown engine: " + engineName})
	}

	session := h.sessions.Open(SessionOptions{AppID: "ibus"})

	h.mu.Lock()
	h.nextID++
	path := dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/IBus/Engine/%d", h.nextID))
	e := &IBusEngine{
		host:    h,
		path:    path,
		session: session,
		logger:  h.logger.With("session_id", session.ID),
	}
	h.engines[path] = e
	h.stats.EnginesCreated++
	h.mu.Unlock()

	if err := h.conn.Export(e, path, IBusEngineInterface); err != nil {
		h.forget(e)
		return "", dbus.MakeFailedError(err)
	}
	if err := h.conn.Export(e, path, IBusServiceInterface); err != nil {
		h.conn.Export(nil, path, IBusEngineInterface)
		h.forget(e)
		return "", dbus.MakeFailedError(err)
	}

	e.logger.Info("engine created", "path", path)
	return path, nil
}

func (h *IBusHost) forget(e *IBusEngine) {
	h.sessions.Close(e.session.ID)
	h.mu.Lock()
	delete(h.engines, e.path)
	h.mu.Unlock()
}

// IBusEngine is one engine object exported to ibus-daemon.
type IBusEngine struct {
	host    *IBusHost
	path    dbus.ObjectPath
	session *Session
	logger  *slog.Logger

	mu sync.Mutex
	// disabled is set between Disable and the next Enable. Keys pass
	// through untouched while it holds.
	disabled  bool
	destroyed bool
}

// Path returns the exported object path.
func (e *IBusEngine) Path() dbus.ObjectPath {
	return e.path
}

// ProcessKeyEvent handles key press/release events from IBus.
// Returns true if the key was consumed, false to pass through. While the
// engine is disabled every key passes through.
func (e *IBusEngine) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	if state&IBusReleaseMask != 0 {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return false, nil
	}

	handled := false
	if !e.disabled {
		handled = e.processKeyPress(e.session.Engine, keyval, state)
	}

	e.host.count(func(s *IBusStats) {
		if handled {
			s.KeysHandled++
		} else {
			s.KeysPassed++
		}
		s.LastKeyTime = time.Now()
	})
	return handled, nil
}

// processKeyPress must be called with e.mu held.
func (e *IBusEngine) processKeyPress(engine *Engine, keyval, state uint32) bool {
	if state&ibusShortcutMask != 0 {
		e.apply(engine.Flush())
		return false
	}

	if keyval == GDKBackSpace {
		if engine.State() == StateEmpty {
			return false
		}
		e.apply(engine.Step(Backspace))
		return true
	}

	char := keyvalToRune(keyval)
	if char == 0 {
		e.apply(engine.Flush())
		return false
	}

	sym, err := DecodeSymbol(string(char))
	if err != nil {
		e.logger.Debug("key not decodable", "keyval", keyval, "error", err)
		e.apply(engine.Flush())
		return false
	}

	e.logger.Debug("key", "symbol", sym.String(), "keyval", keyval)
	e.apply(engine.Step(sym))
	return true
}

// apply commits cmds in order and refreshes the preedit. It must be called
// with e.mu held.
func (e *IBusEngine) apply(cmds []Command) {
	for _, cmd := range cmds {
		if err := e.host.conn.Emit(e.path, IBusEngineInterface+".CommitText", newIBusText(cmd.Text, false)); err != nil {
			e.logger.Warn("CommitText failed", "error", err)
		}
	}
	e.updatePreedit(e.session.Engine.Pending())

	if len(cmds) == 0 {
		return
	}
	e.host.count(func(s *IBusStats) { s.Commits += uint64(len(cmds)) })
	if e.host.config.Observer != nil {
		e.host.config.Observer.Observe(cmds)
	}
}

func (e *IBusEngine) updatePreedit(pending string) {
	cursor := uint32(utf8.RuneCountInString(pending))
	visible := pending != ""
	if err := e.host.conn.Emit(e.path, IBusEngineInterface+".UpdatePreeditText",
		newIBusText(pending, true), cursor, visible); err != nil {
		e.logger.Warn("UpdatePreeditText failed", "error", err)
	}
}

// flush commits the pending buffer unconverted.
func (e *IBusEngine) flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.apply(e.session.Engine.Flush())
}

// FocusIn is called when the engine gains input focus.
func (e *IBusEngine) FocusIn() *dbus.Error {
	if info, err := e.host.focus.FocusInfo(); err == nil {
		e.host.sessions.Describe(e.session.ID, SessionOptions{AppID: info.AppID, DocID: info.WindowTitle})
		e.logger.Debug("FocusIn", "app", info.AppID)
	} else {
		e.logger.Debug("FocusIn", "focus_error", err)
	}

	e.host.count(func(s *IBusStats) {
		s.FocusChanges++
		s.LastFocusChange = time.Now()
	})
	return nil
}

// FocusOut commits the pending buffer before focus leaves the client.
func (e *IBusEngine) FocusOut() *dbus.Error {
	e.logger.Debug("FocusOut")
	e.flush()
	return nil
}

// Enable resumes key handling after Disable.
func (e *IBusEngine) Enable() *dbus.Error {
	e.mu.Lock()
	e.disabled = false
	e.mu.Unlock()

	e.logger.Debug("Enable")
	return nil
}

// Disable commits the pending buffer and stops handling keys.
func (e *IBusEngine) Disable() *dbus.Error {
	e.logger.Debug("Disable")
	e.flush()

	e.mu.Lock()
	e.disabled = true
	e.mu.Unlock()
	return nil
}

// Reset commits the pending buffer. IBus calls it when the client moves the
// cursor or clears the field.
func (e *IBusEngine) Reset() *dbus.Error {
	e.logger.Debug("Reset")
	e.flush()
	return nil
}

// Destroy flushes and closes the session and unexports the engine.
func (e *IBusEngine) Destroy() *dbus.Error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.destroyed = true
	cmds, err := e.host.sessions.Close(e.session.ID)
	if err == nil {
		e.apply(cmds)
	}
	e.mu.Unlock()

	e.host.conn.Export(nil, e.path, IBusEngineInterface)
	e.host.conn.Export(nil, e.path, IBusServiceInterface)

	e.host.mu.Lock()
	delete(e.host.engines, e.path)
	e.host.stats.EnginesDestroyed++
	e.host.mu.Unlock()

	e.logger.Info("engine destroyed", "path", e.path)
	return nil
}

// SetCapabilities informs about client capabilities.
func (e *IBusEngine) SetCapabilities(caps uint32) *dbus.Error {
	return nil
}

// SetContentType informs about the type of content being edited.
func (e *IBusEngine) SetContentType(purpose, hints uint32) *dbus.Error {
	return nil
}

// SetCursorLocation informs about cursor position.
func (e *IBusEngine) SetCursorLocation(x, y, w, h int32) *dbus.Error {
	return nil
}

// SetSurroundingText provides context around the cursor.
func (e *IBusEngine) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	return nil
}

// PropertyActivate handles property activations.
func (e *IBusEngine) PropertyActivate(propName string, state uint32) *dbus.Error {
	return nil
}

// PageUp handles page up in candidate list.
func (e *IBusEngine) PageUp() *dbus.Error {
	return nil
}

// PageDown handles page down in candidate list.
func (e *IBusEngine) PageDown() *dbus.Error {
	return nil
}

// CursorUp handles cursor up in candidate list.
func (e *IBusEngine) CursorUp() *dbus.Error {
	return nil
}

// CursorDown handles cursor down in candidate list.
func (e *IBusEngine) CursorDown() *dbus.Error {
	return nil
}

// CandidateClicked handles candidate selection.
func (e *IBusEngine) CandidateClicked(index, button, state uint32) *dbus.Error {
	return nil
}

// keyvalToRune converts X11 keysym to Unicode rune.
func keyvalToRune(keyval uint32) rune {
	// Direct Unicode mapping for Latin-1 range
	if keyval >= 0x20 && keyval <= 0x7e {
		return rune(keyval)
	}

	// Extended Latin (ISO 8859-1)
	if keyval >= 0xa0 && keyval <= 0xff {
		return rune(keyval)
	}

	// Unicode keysyms (0x01000000 + codepoint)
	if keyval >= 0x01000000 {
		return rune(keyval - 0x01000000)
	}

	return 0
}

// FocusInfo contains information about the focused window.
type FocusInfo struct {
	AppID       string
	WindowTitle string
	WindowClass string
}

// ErrNoFocusInfo is returned when the focused window cannot be inspected.
var ErrNoFocusInfo = errors.New("ime: focused window unavailable")

// FocusTracker looks up the focused window for session metadata.
type FocusTracker struct {
	isWayland bool
	run       func(name string, args ...string) ([]byte, error)
}

// NewFocusTracker creates a new focus tracker.
func NewFocusTracker() *FocusTracker {
	return &FocusTracker{
		isWayland: os.Getenv("WAYLAND_DISPLAY") != "",
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
	}
}

// FocusInfo returns information about the currently focused window.
func (f *FocusTracker) FocusInfo() (*FocusInfo, error) {
	if f.isWayland {
		// Wayland doesn't allow window inspection.
		if appID := os.Getenv("GIO_LAUNCHED_DESKTOP_FILE"); appID != "" {
			return &FocusInfo{AppID: appID}, nil
		}
		return nil, ErrNoFocusInfo
	}
	return f.x11FocusInfo()
}

func (f *FocusTracker) x11FocusInfo() (*FocusInfo, error) {
	output, err := f.run("xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return nil, fmt.Errorf("%w: xprop: %v", ErrNoFocusInfo, err)
	}

	parts := strings.Fields(string(output))
	if len(parts) < 5 {
		return nil, fmt.Errorf("%w: could not parse window ID", ErrNoFocusInfo)
	}
	windowID := parts[len(parts)-1]

	nameOutput, _ := f.run("xprop", "-id", windowID, "WM_NAME")
	classOutput, _ := f.run("xprop", "-id", windowID, "WM_CLASS")

	windowClass := parseXpropString(string(classOutput))
	return &FocusInfo{
		AppID:       strings.ToLower(windowClass),
		WindowTitle: parseXpropString(string(nameOutput)),
		WindowClass: windowClass,
	}, nil
}

// parseXpropString extracts the string value from xprop output.
func parseXpropString(output string) string {
	idx := strings.Index(output, "=")
	if idx == -1 {
		return ""
	}
	value := strings.TrimSpace(output[idx+1:])
	// WM_CLASS format: "instance", "class"
	if parts := strings.Split(value, "\", \""); len(parts) > 1 {
		return strings.Trim(parts[1], "\"")
	}
	return strings.Trim(value, "\"")
}
