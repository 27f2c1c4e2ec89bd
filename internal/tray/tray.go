// Package tray provides system tray functionality using getlantern/systray.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// MenuItem represents a menu item
type MenuItem struct {
	ID        int
	Title     string
	Checkable bool
	Callback  func()

	checked bool
	item    *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	title   string
	tooltip string

	mu      sync.Mutex
	items   []*MenuItem
	readyCh chan struct{}
	quitCh  chan struct{}
}

// New creates a new system tray
func New(title, tooltip string) *Tray {
	return &Tray{
		title:   title,
		tooltip: tooltip,
		items:   make([]*MenuItem, 0),
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
	}
}

// AddMenuItem adds a menu item to the tray
func (t *Tray) AddMenuItem(title string, callback func()) int {
	return t.add(&MenuItem{Title: title, Callback: callback})
}

// AddCheckItem adds a menu item that shows a check mark while checked
func (t *Tray) AddCheckItem(title string, checked bool, callback func()) int {
	return t.add(&MenuItem{Title: title, Checkable: true, checked: checked, Callback: callback})
}

func (t *Tray) add(mi *MenuItem) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	mi.ID = len(t.items)
	t.items = append(t.items, mi)
	return mi.ID
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, nil) // nil indicates separator
}

// SetItemChecked sets the checked state of a menu item. It may be called
// before Run; the state is applied when the menu is built.
func (t *Tray) SetItemChecked(id int, checked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.items) || t.items[id] == nil {
		return
	}
	mi := t.items[id]
	mi.checked = checked
	if mi.item != nil {
		if checked {
			mi.item.Check()
		} else {
			mi.item.Uncheck()
		}
	}
}

// IsItemChecked returns the last checked state set for a menu item
func (t *Tray) IsItemChecked(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.items) || t.items[id] == nil {
		return false
	}
	return t.items[id].checked
}

// Ready is closed once the menu has been built
func (t *Tray) Ready() <-chan struct{} {
	return t.readyCh
}

// Run starts the tray event loop (blocks)
func (t *Tray) Run() {
	systray.Run(t.setupMenu, t.onExit)
}

func (t *Tray) onExit() {
	close(t.quitCh)
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	systray.SetTitle(t.title)
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(getIcon())

	t.mu.Lock()
	for _, menuItem := range t.items {
		if menuItem == nil {
			// Separator
			systray.AddSeparator()
			continue
		}

		item := systray.AddMenuItem(menuItem.Title, "")
		if menuItem.Checkable && menuItem.checked {
			item.Check()
		}
		menuItem.item = item

		// Handle clicks in goroutine
		if menuItem.Callback != nil {
			go func(mi *MenuItem, clicked chan struct{}) {
				for {
					select {
					case <-clicked:
						mi.Callback()
					case <-t.quitCh:
						return
					}
				}
			}(menuItem, item.ClickedCh)
		}
	}
	t.mu.Unlock()

	close(t.readyCh)
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// getIcon returns a placeholder icon (valid 16x16 ICO)
func getIcon() []byte {
	// A valid 16x16 32-bit ICO file with correct size and DIB header
	icon := make([]byte, 1118)
	// ICO Header
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	// Icon Directory
	copy(icon[6:22], []byte{
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x48, 0x04, 0x00, 0x00, // Size: 1024 (pixels) + 40 (header) + 32 (mask) = 1096 bytes
		0x16, 0x00, 0x00, 0x00, // Offset
	})
	// DIB Header
	copy(icon[22:62], []byte{
		0x28, 0x00, 0x00, 0x00, // Size
		0x10, 0x00, 0x00, 0x00, // Width
		0x20, 0x00, 0x00, 0x00, // Height (16 * 2 for icon)
		0x01, 0x00, // Planes
		0x20, 0x00, // BPP
		0x00, 0x00, 0x00, 0x00, // Compression
		0x00, 0x04, 0x00, 0x00, // Image Size
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	})
	// The rest (pixels and mask) can stay 0 for transparency
	return icon
}
