package keys

import (
	"errors"
	"fmt"
	"sync"

	hook "github.com/robotn/gohook"
)

// ErrHookActive is returned when a second hook is installed while one is live.
var ErrHookActive = errors.New("key hook already installed")

// Event is a translated key transition.
type Event struct {
	Name string
	Down bool
}

// Process-wide hook entry points; tests replace them.
var (
	startHook = func() <-chan hook.Event { return hook.Start() }
	endHook   = hook.End
)

var (
	guardMu   sync.Mutex
	installed int
)

// Installed reports how many hooks are live (0 or 1).
func Installed() int {
	guardMu.Lock()
	defer guardMu.Unlock()
	return installed
}

// Hook is an owned handle on the OS key hook. Close releases it; it must be
// called on every path out of the scope that installed it.
type Hook struct {
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Install starts the OS key hook. Every transition updates state and is then passed
// to onKey (which may be nil). Only one hook may be live at a time.
func Install(state *State, onKey func(Event)) (*Hook, error) {
	guardMu.Lock()
	if installed > 0 {
		guardMu.Unlock()
		return nil, ErrHookActive
	}
	installed++
	guardMu.Unlock()

	events := startHook()
	h := &Hook{done: make(chan struct{})}
	h.wg.Add(1)
	go h.pump(events, state, onKey)
	return h, nil
}

func (h *Hook) pump(events <-chan hook.Event, state *State, onKey func(Event)) {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			k, ok := translate(ev)
			if !ok {
				continue
			}
			if k.Down {
				state.Press(k.Name)
			} else {
				state.Release(k.Name)
			}
			if onKey != nil {
				onKey(k)
			}
		}
	}
}

// Close stops the hook and waits for the event pump. Safe to call more than once.
func (h *Hook) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		endHook()
		h.wg.Wait()
		guardMu.Lock()
		installed--
		guardMu.Unlock()
	})
	return nil
}

// translate keeps key press (KeyHold) and release (KeyUp) events.
// KeyDown is gohook's "typed" event, which repeats a press and carries no release.
func translate(ev hook.Event) (Event, bool) {
	switch ev.Kind {
	case hook.KeyHold:
		return Event{Name: KeyName(ev), Down: true}, true
	case hook.KeyUp:
		return Event{Name: KeyName(ev), Down: false}, true
	default:
		return Event{}, false
	}
}

var keyNames = func() map[uint16]string {
	names := make(map[uint16]string, len(hook.Keycode))
	for name, code := range hook.Keycode {
		if prev, ok := names[code]; !ok || name < prev {
			names[code] = name
		}
	}
	return names
}()

// KeyName maps a hook event to a stable key name ("a", "shift", "esc", ...).
func KeyName(ev hook.Event) string {
	if ev.Keycode != 0 {
		if name, ok := keyNames[ev.Keycode]; ok {
			return name
		}
	}
	if name := hook.RawcodetoKeychar(ev.Rawcode); name != "" {
		return name
	}
	return fmt.Sprintf("raw%d", ev.Rawcode)
}
