// internal/locator/strategy.go
package locator

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/postpilot/api/schemas"
)

// Kind selects how a strategy resolves candidates.
type Kind string

const (
	// KindStableID resolves a single element by its id attribute.
	KindStableID Kind = "stable-id"
	// KindAttribute resolves a CSS selector, usually an attribute pattern.
	KindAttribute Kind = "attribute-pattern"
	// KindText matches elements of Scope whose visible text contains Value.
	KindText Kind = "text-match"
	// KindNearLabel finds the element whose text contains Value and returns
	// the nearest clickable control in its container.
	KindNearLabel Kind = "near-label"
	// KindFrameCoordinate targets a point inside a frame, given as fractions
	// of the frame's box.
	KindFrameCoordinate Kind = "frame-coordinate"
)

// FrameKind selects how a nested frame is found.
type FrameKind string

const (
	FrameTop        FrameKind = ""
	FrameByIndex    FrameKind = "index"
	FrameByURL      FrameKind = "url"
	FrameBySelector FrameKind = "selector"
)

// FrameScope names the document a strategy runs in. The zero value is the
// top-level document.
type FrameScope struct {
	Kind  FrameKind
	Index int
	Value string
}

func (f FrameScope) String() string {
	switch f.Kind {
	case FrameByIndex:
		return fmt.Sprintf("iframe[%d]", f.Index)
	case FrameByURL:
		return fmt.Sprintf("iframe(url~%q)", f.Value)
	case FrameBySelector:
		return fmt.Sprintf("iframe(%s)", f.Value)
	}
	return "top"
}

// FrameIndex scopes to the n-th iframe of the top document.
func FrameIndex(n int) FrameScope { return FrameScope{Kind: FrameByIndex, Index: n} }

// FrameURL scopes to the first iframe whose URL contains substr.
func FrameURL(substr string) FrameScope { return FrameScope{Kind: FrameByURL, Value: substr} }

// FrameSelector scopes to the iframe matched by a CSS selector.
func FrameSelector(sel string) FrameScope { return FrameScope{Kind: FrameBySelector, Value: sel} }

// Validity rejects candidates that cannot be the real target, such as
// hidden duplicates or decorative elements sharing a label.
type Validity struct {
	MinWidth       float64
	MinHeight      float64
	RequireVisible bool
}

// Accept reports whether c passes the predicate.
func (v Validity) Accept(c Candidate) bool {
	if v.RequireVisible && !c.Visible {
		return false
	}
	if c.Box.Width < v.MinWidth || c.Box.Height < v.MinHeight {
		return false
	}
	return true
}

// Strategy is one declarative way of finding a target.
type Strategy struct {
	Kind  Kind
	Frame FrameScope
	// Value is the id, selector, text needle or label, depending on Kind.
	Value string
	// Scope restricts text-match candidates to a CSS selector. For near-label
	// it selects the control inside the label's container.
	Scope string
	// Exact requires the trimmed text to equal Value.
	Exact      bool
	RelX, RelY float64
	Validity   Validity
}

func (s Strategy) String() string {
	var b strings.Builder
	b.WriteString(string(s.Kind))
	if s.Frame.Kind != FrameTop {
		b.WriteString("@" + s.Frame.String())
	}
	switch s.Kind {
	case KindFrameCoordinate:
		fmt.Fprintf(&b, "(%.2f,%.2f)", s.RelX, s.RelY)
	case KindText:
		fmt.Fprintf(&b, "(%s~%q)", s.Scope, s.Value)
	default:
		fmt.Fprintf(&b, "(%s)", s.Value)
	}
	return b.String()
}

// In returns a copy of s scoped to frame.
func (s Strategy) In(frame FrameScope) Strategy {
	s.Frame = frame
	return s
}

// Valid returns a copy of s with the given predicate.
func (s Strategy) Valid(v Validity) Strategy {
	s.Validity = v
	return s
}

// ByID builds a stable-id strategy.
func ByID(id string) Strategy {
	return Strategy{Kind: KindStableID, Value: id, Validity: Validity{RequireVisible: true}}
}

// ByCSS builds an attribute-pattern strategy.
func ByCSS(selector string) Strategy {
	return Strategy{Kind: KindAttribute, Value: selector, Validity: Validity{RequireVisible: true}}
}

// ByText builds a text-match strategy over elements matching scope.
func ByText(scope, text string) Strategy {
	return Strategy{Kind: KindText, Scope: scope, Value: text, Validity: Validity{RequireVisible: true}}
}

// ByExactText is ByText requiring the whole text to match.
func ByExactText(scope, text string) Strategy {
	s := ByText(scope, text)
	s.Exact = true
	return s
}

// NearLabel builds a near-label strategy. Without a control selector the
// container is clicked when it holds no button-like control.
func NearLabel(label string) Strategy {
	return Strategy{Kind: KindNearLabel, Value: label, Validity: Validity{RequireVisible: true}}
}

// NearLabelControl is NearLabel restricted to controls matching sel.
func NearLabelControl(label, sel string) Strategy {
	s := NearLabel(label)
	s.Scope = sel
	return s
}

// AtFrameCoordinate targets the point (relX, relY) of frame's box.
func AtFrameCoordinate(frame FrameScope, relX, relY float64) Strategy {
	return Strategy{Kind: KindFrameCoordinate, Frame: frame, RelX: relX, RelY: relY}
}

// Descriptor is the immutable strategy chain of one semantic role.
type Descriptor struct {
	Role       schemas.Role
	Name       string
	Strategies []Strategy
}

func (d Descriptor) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%s(%s)", d.Role, d.Name)
	}
	return string(d.Role)
}

// NamePlaceholder is replaced by Bind in strategy values.
const NamePlaceholder = "{name}"

// Bind returns a copy of d with NamePlaceholder replaced by name, used for
// parameterized roles such as CATEGORY_OPTION(name).
func (d Descriptor) Bind(name string) Descriptor {
	out := Descriptor{Role: d.Role, Name: name, Strategies: make([]Strategy, len(d.Strategies))}
	for i, s := range d.Strategies {
		s.Value = strings.ReplaceAll(s.Value, NamePlaceholder, name)
		s.Scope = strings.ReplaceAll(s.Scope, NamePlaceholder, name)
		out.Strategies[i] = s
	}
	return out
}
