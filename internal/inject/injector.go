// internal/inject/injector.go
package inject

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"go.uber.org/zap"
)

// Mode says whether existing content of the target is kept.
type Mode string

const (
	ModeReplace Mode = "REPLACE"
	ModeAppend  Mode = "APPEND"
)

// Technique is the way content is written, chosen from the target's nature.
type Technique string

const (
	TechniquePlainField     Technique = "plain-field"
	TechniqueScriptEditor   Technique = "script-editor"
	TechniqueEditableRegion Technique = "editable-region"
	TechniqueOptionList     Technique = "option-list"
	TechniqueTagInput       Technique = "tag-input"
)

// InputMethod is how text reaches a focused element.
type InputMethod string

const (
	// InputClipboard writes the clipboard and pastes. Reliable for wide
	// characters and emoji.
	InputClipboard InputMethod = "clipboard"
	// InputKeystroke types one character at a time.
	InputKeystroke InputMethod = "keystroke"
	// InputInsert uses the IME-style insertText channel.
	InputInsert InputMethod = "insert"
)

// ErrEditorUnavailable is returned by a Driver when the editor scripting API
// cannot be reached.
var ErrEditorUnavailable = errors.New("editor scripting API unavailable")

// Driver is the set of page operations the injector needs.
type Driver interface {
	Click(ctx context.Context, h locator.Handle) error
	// Press dispatches a key or chord such as "Enter" or "Control+A".
	Press(ctx context.Context, key string) error
	InsertText(ctx context.Context, text string) error
	Paste(ctx context.Context, text string) error
	// SetEditorContent replaces the content of a scriptable rich editor and
	// commits it to the underlying form field.
	SetEditorContent(ctx context.Context, editorID, html string) error
	Sleep(ctx context.Context, d time.Duration) error
}

// Typist types text key by key.
type Typist interface {
	Type(ctx context.Context, text string) error
}

// Request describes one write.
type Request struct {
	Handle    locator.Handle
	Content   string
	Tokens    []string
	Mode      Mode
	Technique Technique
	Input     InputMethod
	EditorID  string
}

// Injector writes content into located targets.
type Injector struct {
	driver  Driver
	typist  Typist
	locator *locator.Locator
	settle  time.Duration
	logger  *zap.Logger
}

// New creates an Injector. settle is the pause after focus changes and
// key chords, giving the page time to react.
func New(driver Driver, typist Typist, loc *locator.Locator, settle time.Duration, logger *zap.Logger) *Injector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Injector{driver: driver, typist: typist, locator: loc, settle: settle, logger: logger.Named("injector")}
}

// Inject writes req.Content into req.Handle using req.Technique. It returns
// false with an injection error when the target rejected the write, and a
// transport error when the browser channel itself failed.
func (in *Injector) Inject(ctx context.Context, req Request) (bool, error) {
	var err error
	switch req.Technique {
	case TechniquePlainField:
		err = in.plainField(ctx, req)
	case TechniqueScriptEditor:
		err = in.scriptEditor(ctx, req)
	case TechniqueEditableRegion:
		err = in.editableRegion(ctx, req)
	case TechniqueTagInput:
		err = in.tagInput(ctx, req)
	default:
		err = fmt.Errorf("technique %q cannot be used with Inject", req.Technique)
	}
	if err != nil {
		err = classify(string(req.Technique), err)
		in.logger.Warn("Injection failed.",
			zap.String("role", string(req.Handle.Role)),
			zap.String("technique", string(req.Technique)),
			zap.Error(err))
		return false, err
	}
	in.logger.Debug("Injected content.",
		zap.String("role", string(req.Handle.Role)),
		zap.String("technique", string(req.Technique)),
		zap.String("mode", string(req.Mode)),
		zap.Int("length", len([]rune(req.Content))))
	return true, nil
}

// classify keeps transport failures fatal and marks everything else as a
// recoverable injection failure.
func classify(op string, err error) error {
	switch schemas.KindOf(err) {
	case schemas.KindTransport, schemas.KindInjection:
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return schemas.NewError(schemas.KindInjection, op, err)
}

func (in *Injector) focus(ctx context.Context, h locator.Handle) error {
	if err := in.driver.Click(ctx, h); err != nil {
		return fmt.Errorf("focus: %w", err)
	}
	return in.driver.Sleep(ctx, in.settle)
}

func (in *Injector) keys(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := in.driver.Press(ctx, k); err != nil {
			return fmt.Errorf("press %s: %w", k, err)
		}
	}
	return in.driver.Sleep(ctx, in.settle)
}

func (in *Injector) clear(ctx context.Context) error {
	return in.keys(ctx, "Control+A", "Backspace")
}

func (in *Injector) write(ctx context.Context, method InputMethod, text string) error {
	if text == "" {
		return nil
	}
	switch method {
	case InputClipboard:
		return in.driver.Paste(ctx, text)
	case InputKeystroke:
		if in.typist == nil {
			return fmt.Errorf("keystroke input requested without a typist")
		}
		return in.typist.Type(ctx, text)
	default:
		return in.driver.InsertText(ctx, text)
	}
}

// plainField fully replaces the value of a title-like control.
func (in *Injector) plainField(ctx context.Context, req Request) error {
	if err := in.focus(ctx, req.Handle); err != nil {
		return err
	}
	if req.Mode != ModeAppend {
		if err := in.clear(ctx); err != nil {
			return err
		}
	} else if err := in.keys(ctx, "End"); err != nil {
		return err
	}
	method := req.Input
	if method == "" || method == InputClipboard {
		method = InputInsert
	}
	return in.write(ctx, method, req.Content)
}

// scriptEditor hands the content to the editor's own API and skips
// simulated input entirely.
func (in *Injector) scriptEditor(ctx context.Context, req Request) error {
	if req.EditorID == "" {
		return fmt.Errorf("script editor target has no editor id")
	}
	if err := in.driver.SetEditorContent(ctx, req.EditorID, req.Content); err != nil {
		return err
	}
	// Close any popup the editor opened on focus.
	return in.keys(ctx, "Escape")
}

// editableRegion drives a rich editor through user input only. In append
// mode the caret moves to the end and two line breaks separate the new text
// from whatever the region already holds.
func (in *Injector) editableRegion(ctx context.Context, req Request) error {
	if err := in.focus(ctx, req.Handle); err != nil {
		return err
	}
	if req.Mode == ModeAppend {
		if err := in.keys(ctx, "Control+End", "Enter", "Enter"); err != nil {
			return err
		}
	} else if err := in.clear(ctx); err != nil {
		return err
	}
	method := req.Input
	if method == "" {
		method = InputClipboard
	}
	if err := in.write(ctx, method, req.Content); err != nil {
		return err
	}
	return in.driver.Sleep(ctx, in.settle)
}

// tagInput confirms each token separately; tag widgets build their chip list
// one Enter at a time.
func (in *Injector) tagInput(ctx context.Context, req Request) error {
	if err := in.focus(ctx, req.Handle); err != nil {
		return err
	}
	for _, tok := range req.Tokens {
		if tok == "" {
			continue
		}
		var err error
		if in.typist != nil {
			err = in.typist.Type(ctx, tok)
		} else {
			err = in.driver.InsertText(ctx, tok)
		}
		if err != nil {
			return fmt.Errorf("tag %q: %w", tok, err)
		}
		if err := in.keys(ctx, "Enter"); err != nil {
			return fmt.Errorf("confirm tag %q: %w", tok, err)
		}
	}
	return nil
}
