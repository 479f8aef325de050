// Package tray provides a system tray interface for the Tagsight tag detection service.
package tray

import (
	"strconv"
	"strings"
	"sync"

	"github.com/getlantern/systray"
)

// maxListedTags caps the ids shown in the last-tags menu item.
const maxListedTags = 8

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(enabled bool)
	onSettings func()
	onQuit     func()
	enabled    bool
	family     string
	lastTags   string
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle   *systray.MenuItem
	menuFamily   *systray.MenuItem
	menuLastTags *systray.MenuItem
}

// New creates a new Tray instance with the given initial enabled state.
func New(enabled bool) *Tray {
	return &Tray{
		enabled:  enabled,
		lastTags: FormatTags(nil),
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Tagsight")
	systray.SetTooltip("Tagsight Tag Detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle tag detection")
	systray.AddSeparator()

	t.menuFamily = systray.AddMenuItem(familyTitle(t.family), "Active tag family")
	t.menuFamily.Disable()
	t.menuLastTags = systray.AddMenuItem(t.lastTags, "Tags in the last frame")
	t.menuLastTags.Disable()
	systray.AddSeparator()
	t.mu.Unlock()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Tagsight")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLastTags updates the last-tags display in the menu.
func (t *Tray) SetLastTags(ids []int) {
	title := FormatTags(ids)

	t.mu.Lock()
	defer t.mu.Unlock()
	if title == t.lastTags {
		return
	}
	t.lastTags = title
	if t.menuLastTags != nil {
		t.menuLastTags.SetTitle(title)
	}
}

// SetFamily updates the active family display in the menu.
func (t *Tray) SetFamily(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if name == t.family {
		return
	}
	t.family = name
	if t.menuFamily != nil {
		t.menuFamily.SetTitle(familyTitle(name))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// LastTags returns the current last-tags title.
func (t *Tray) LastTags() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastTags
}

// FormatTags renders tag ids for the menu, eliding past maxListedTags.
func FormatTags(ids []int) string {
	if len(ids) == 0 {
		return "Last: none"
	}

	parts := make([]string, 0, min(len(ids), maxListedTags)+1)
	for i, id := range ids {
		if i == maxListedTags {
			parts = append(parts, "…")
			break
		}
		parts = append(parts, strconv.Itoa(id))
	}
	return "Last: " + strings.Join(parts, ", ")
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func familyTitle(name string) string {
	if name == "" {
		return "Family: not configured"
	}
	return "Family: " + name
}
