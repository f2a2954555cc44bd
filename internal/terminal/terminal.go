// Package terminal is an interactive kanaime host on a tcell screen. Typed
// keys go through one session's engine; committed text accumulates on screen
// and the pending buffer is drawn underlined after it.
package terminal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"kanaime/internal/ime"
)

// Options configures a Host.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Observer, if set, sees every batch of committed commands.
	Observer ime.CommitObserver

	// Title is drawn on the first line.
	Title string
}

var (
	titleStyle   = tcell.StyleDefault.Bold(true)
	textStyle    = tcell.StyleDefault
	pendingStyle = tcell.StyleDefault.Underline(true)
	statusStyle  = tcell.StyleDefault.Reverse(true)
)

// Host drives one engine from terminal key events.
type Host struct {
	screen   tcell.Screen
	sessions *ime.SessionManager
	session  *ime.Session
	observer ime.CommitObserver
	logger   *slog.Logger
	title    string

	mu      sync.Mutex
	text    []string
	commits int
	last    ime.CommitKind
}

// New opens a session on sessions and binds it to screen. The screen must
// already be initialised.
func New(screen tcell.Screen, sessions *ime.SessionManager, opts Options) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	title := opts.Title
	if title == "" {
		title = "kanaime: type romaji, Esc or Ctrl-C to quit"
	}

	session := sessions.Open(ime.SessionOptions{AppID: "terminal"})
	return &Host{
		screen:   screen,
		sessions: sessions,
		session:  session,
		observer: opts.Observer,
		logger:   logger.With("component", "terminal", "session_id", session.ID),
		title:    title,
	}
}

// Run processes events until the user quits or ctx is cancelled. The pending
// buffer is committed before Run returns and the session is closed.
func (h *Host) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = h.screen.PostEvent(tcell.NewEventInterrupt(ctx.Err()))
		case <-done:
		}
	}()

	h.draw()
	for {
		ev := h.screen.PollEvent()
		if ev == nil {
			break
		}
		if _, ok := ev.(*tcell.EventInterrupt); ok {
			break
		}
		if h.HandleEvent(ev) {
			break
		}
		h.draw()
	}

	cmds, err := h.sessions.Close(h.session.ID)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	h.apply(cmds)
	h.draw()
	return nil
}

// HandleEvent applies one event and reports whether the host should quit.
func (h *Host) HandleEvent(ev tcell.Event) bool {
	switch e := ev.(type) {
	case *tcell.EventKey:
		return h.handleKey(e)
	case *tcell.EventResize:
		h.screen.Sync()
	}
	return false
}

func (h *Host) handleKey(ev *tcell.EventKey) bool {
	engine := h.session.Engine

	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true

	case tcell.KeyEnter:
		h.apply(engine.Flush())
		h.apply([]ime.Command{{Text: "\n", Kind: ime.CommitLiteral, Source: "\n"}})

	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if engine.State() == ime.StateEmpty {
			h.deleteLast()
			return false
		}
		h.apply(engine.Step(ime.Backspace))

	case tcell.KeyCtrlU:
		engine.Reset()
		h.mu.Lock()
		h.text = nil
		h.mu.Unlock()

	case tcell.KeyRune:
		sym, err := ime.DecodeSymbol(string(ev.Rune()))
		if err != nil {
			h.logger.Debug("key not decodable", "error", err)
			h.apply(engine.Flush())
			return false
		}
		h.logger.Debug("key", "symbol", sym.String())
		h.apply(engine.Step(sym))

	default:
		h.apply(engine.Flush())
	}
	return false
}

// apply appends committed text and reports the commands.
func (h *Host) apply(cmds []ime.Command) {
	if len(cmds) == 0 {
		return
	}

	h.mu.Lock()
	for _, cmd := range cmds {
		h.text = append(h.text, cmd.Text)
		h.commits++
		h.last = cmd.Kind
	}
	h.mu.Unlock()

	if h.observer != nil {
		h.observer.Observe(cmds)
	}
}

// deleteLast removes the last grapheme of committed text.
func (h *Host) deleteLast() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for len(h.text) > 0 {
		last := h.text[len(h.text)-1]
		if last == "" {
			h.text = h.text[:len(h.text)-1]
			continue
		}
		h.text[len(h.text)-1] = dropLastGrapheme(last)
		if h.text[len(h.text)-1] == "" {
			h.text = h.text[:len(h.text)-1]
		}
		return
	}
}

func dropLastGrapheme(s string) string {
	var end int
	state := -1
	rest := s
	for len(rest) > 0 {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if len(rest) > 0 {
			end += len(cluster)
		}
	}
	return s[:end]
}

// Text returns the committed text.
func (h *Host) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return strings.Join(h.text, "")
}

// Session returns the host's session.
func (h *Host) Session() *ime.Session {
	return h.session
}

func (h *Host) draw() {
	h.screen.Clear()
	width, height := h.screen.Size()
	if width <= 0 || height <= 0 {
		return
	}

	h.drawString(0, 0, width, h.title, titleStyle)

	x, y := 0, 2
	put := func(s string, style tcell.Style) {
		state := -1
		for len(s) > 0 {
			var cluster string
			var w int
			cluster, s, w, state = uniseg.FirstGraphemeClusterInString(s, state)
			if cluster == "\n" {
				x, y = 0, y+1
				continue
			}
			if w == 0 {
				w = 1
			}
			if x+w > width {
				x, y = 0, y+1
			}
			if y >= height-1 {
				return
			}
			runes := []rune(cluster)
			h.screen.SetContent(x, y, runes[0], runes[1:], style)
			x += w
		}
	}

	put(h.Text(), textStyle)
	pending := h.session.Engine.Pending()
	put(pending, pendingStyle)
	if y < height-1 {
		h.screen.ShowCursor(x, y)
	}

	h.mu.Lock()
	status := fmt.Sprintf(" %s | pending %q | commits %d | last %s ",
		h.session.Engine.State(), pending, h.commits, h.last)
	h.mu.Unlock()
	h.drawString(0, height-1, width, status, statusStyle)

	h.screen.Show()
}

func (h *Host) drawString(x, y, width int, s string, style tcell.Style) {
	for _, r := range s {
		if x >= width {
			return
		}
		h.screen.SetContent(x, y, r, nil, style)
		x += uniseg.StringWidth(string(r))
	}
}
