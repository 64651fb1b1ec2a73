// internal/browser/session/keyboard.go
package session

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/internal/inject"
)

type keyDef struct {
	key  string
	code string
	vk   int64
	text string
}

var namedKeys = map[string]keyDef{
	"enter":      {"Enter", "Enter", 13, "\r"},
	"escape":     {"Escape", "Escape", 27, ""},
	"backspace":  {"Backspace", "Backspace", 8, ""},
	"tab":        {"Tab", "Tab", 9, "\t"},
	"delete":     {"Delete", "Delete", 46, ""},
	"end":        {"End", "End", 35, ""},
	"home":       {"Home", "Home", 36, ""},
	"arrowup":    {"ArrowUp", "ArrowUp", 38, ""},
	"arrowdown":  {"ArrowDown", "ArrowDown", 40, ""},
	"arrowleft":  {"ArrowLeft", "ArrowLeft", 37, ""},
	"arrowright": {"ArrowRight", "ArrowRight", 39, ""},
	"pageup":     {"PageUp", "PageUp", 33, ""},
	"pagedown":   {"PageDown", "PageDown", 34, ""},
	"space":      {" ", "Space", 32, " "},
	"f11":        {"F11", "F11", 122, ""},
}

// Chrome ignores some shortcuts sent as raw key events unless the matching
// editing command rides along.
var chordCommands = map[string]string{
	"control+a":    "selectAll",
	"control+c":    "copy",
	"control+v":    "paste",
	"control+x":    "cut",
	"control+z":    "undo",
	"control+end":  "moveToEndOfDocument",
	"control+home": "moveToBeginningOfDocument",
}

// chord is a parsed key combination such as "Control+Shift+End".
type chord struct {
	modifiers input.Modifier
	def       keyDef
	command   string
}

func parseChord(spec string) (chord, error) {
	parts := strings.Split(spec, "+")
	if spec == "+" {
		parts = []string{"+"}
	}
	var c chord
	for _, m := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(m)) {
		case "control", "ctrl":
			c.modifiers |= input.ModifierCtrl
		case "shift":
			c.modifiers |= input.ModifierShift
		case "alt":
			c.modifiers |= input.ModifierAlt
		case "meta", "command", "cmd":
			c.modifiers |= input.ModifierMeta
		default:
			return chord{}, fmt.Errorf("unknown modifier %q in %q", m, spec)
		}
	}

	last := parts[len(parts)-1]
	if def, ok := namedKeys[strings.ToLower(last)]; ok {
		c.def = def
	} else if r := []rune(last); len(r) == 1 {
		c.def = charKey(r[0])
	} else {
		return chord{}, fmt.Errorf("unknown key %q in %q", last, spec)
	}
	if c.modifiers&(input.ModifierCtrl|input.ModifierAlt|input.ModifierMeta) != 0 {
		c.def.text = ""
	}
	c.command = chordCommands[strings.ToLower(spec)]
	return c, nil
}

func charKey(r rune) keyDef {
	up := unicode.ToUpper(r)
	def := keyDef{key: string(r), text: string(r)}
	switch {
	case up >= 'A' && up <= 'Z':
		def.code = "Key" + string(up)
		def.vk = int64(up)
	case r >= '0' && r <= '9':
		def.code = "Digit" + string(r)
		def.vk = int64(r)
	}
	return def
}

func (c chord) events() []chromedp.Action {
	downType := input.KeyDown
	if c.def.text == "" {
		downType = input.KeyRawDown
	}
	down := input.DispatchKeyEvent(downType).
		WithModifiers(c.modifiers).
		WithKey(c.def.key).
		WithCode(c.def.code).
		WithWindowsVirtualKeyCode(c.def.vk).
		WithNativeVirtualKeyCode(c.def.vk)
	if c.def.text != "" {
		down = down.WithText(c.def.text).WithUnmodifiedText(c.def.text)
	}
	if c.command != "" {
		down = down.WithCommands([]string{c.command})
	}
	up := input.DispatchKeyEvent(input.KeyUp).
		WithModifiers(c.modifiers).
		WithKey(c.def.key).
		WithCode(c.def.code).
		WithWindowsVirtualKeyCode(c.def.vk).
		WithNativeVirtualKeyCode(c.def.vk)
	return []chromedp.Action{down, up}
}

// Press dispatches a key or chord to the focused element.
func (s *Session) Press(ctx context.Context, key string) error {
	c, err := parseChord(key)
	if err != nil {
		return err
	}
	if err := s.runActionsFunc(ctx, c.events()...); err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	return nil
}

// SendKeys types keys through chromedp's keyboard encoder.
func (s *Session) SendKeys(ctx context.Context, keys string) error {
	return s.runActionsFunc(ctx, chromedp.KeyEvent(keys))
}

// InsertText commits text as if typed through an input method.
func (s *Session) InsertText(ctx context.Context, text string) error {
	return s.runActionsFunc(ctx, input.InsertText(text))
}

// Paste puts text on the clipboard and presses Control+V. When the page
// refuses the clipboard write the text is inserted directly.
func (s *Session) Paste(ctx context.Context, text string) error {
	if err := s.grantClipboard(ctx); err != nil {
		s.logger.Debug("Clipboard permission grant failed.", zap.Error(err))
	}
	script := fmt.Sprintf(`navigator.clipboard.writeText(%s).then(() => true)`, jsonEncode(text))
	var ok bool
	if err := s.Evaluate(ctx, script, &ok); err != nil || !ok {
		if isFatal(err) {
			return err
		}
		s.logger.Warn("Clipboard write failed, inserting text directly.", zap.Error(err))
		return s.InsertText(ctx, text)
	}
	if err := s.Press(ctx, "Control+V"); err != nil {
		return err
	}
	return s.Sleep(ctx, 120*time.Millisecond)
}

func (s *Session) grantClipboard(ctx context.Context) error {
	if s.granted.Load() {
		return nil
	}
	err := s.runActionsFunc(ctx, browser.GrantPermissions([]browser.PermissionType{
		browser.PermissionTypeClipboardReadWrite,
		browser.PermissionTypeClipboardSanitizedWrite,
	}))
	if err == nil {
		s.granted.Store(true)
	}
	return err
}

// SetEditorContent waits for the TinyMCE instance id, then replaces its
// content and commits it to the backing textarea.
func (s *Session) SetEditorContent(ctx context.Context, editorID, html string) error {
	probe := fmt.Sprintf(`!!(window.tinymce && window.tinymce.get && window.tinymce.get(%s))`, jsonEncode(editorID))
	deadline := time.Now().Add(s.cfg.OperationTimeout)
	for {
		var ready bool
		err := s.Evaluate(ctx, probe, &ready)
		if isFatal(err) {
			return err
		}
		if err == nil && ready {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: tinymce %q not ready after %v", inject.ErrEditorUnavailable, editorID, s.cfg.OperationTimeout)
		}
		if err := s.Sleep(ctx, s.editorPoll); err != nil {
			return err
		}
	}

	script := fmt.Sprintf(`((id, html) => {
  const ed = window.tinymce.get(id);
  ed.focus();
  ed.setContent(html);
  ed.save();
  return true;
})(%s, %s)`, jsonEncode(editorID), jsonEncode(html))
	return s.Evaluate(ctx, script, nil)
}
