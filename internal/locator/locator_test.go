// internal/locator/locator_test.go
package locator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/postpilot/api/schemas"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakePage answers by strategy value and records what was evaluated.
type fakePage struct {
	answers   map[string][]Candidate
	errs      map[string]error
	evaluated []string
}

func (p *fakePage) Candidates(_ context.Context, s Strategy) ([]Candidate, error) {
	p.evaluated = append(p.evaluated, s.Value)
	if err := p.errs[s.Value]; err != nil {
		return nil, err
	}
	return p.answers[s.Value], nil
}

func visible(ref string, w, h float64) Candidate {
	return Candidate{Ref: ref, Visible: true, Box: schemas.ElementGeometry{Width: w, Height: h}}
}

func titleDescriptor() Descriptor {
	return Descriptor{Role: schemas.RoleTitleField, Strategies: []Strategy{
		ByCSS("S1"),
		ByCSS("S2"),
		ByCSS("S3"),
	}}
}

func TestLocate_FirstMatchWinsAndStops(t *testing.T) {
	page := &fakePage{answers: map[string][]Candidate{
		"S2": {visible("two", 400, 40)},
		"S3": {visible("three", 400, 40)},
	}}
	l := New(page, zaptest.NewLogger(t))

	res, err := l.Locate(context.Background(), titleDescriptor())
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, 1, res.StrategyUsed)
	assert.Equal(t, "two", res.Handle.Ref)
	assert.Equal(t, schemas.RoleTitleField, res.Handle.Role)
	assert.Equal(t, []string{"S1", "S2"}, page.evaluated, "S3 must not be evaluated")
}

func TestLocate_ValidityRejectsNarrowOnlyMatch(t *testing.T) {
	d := Descriptor{Role: schemas.RoleTitleField, Strategies: []Strategy{
		ByCSS("textarea.tit").Valid(Validity{MinWidth: 200}),
		ByCSS("fallback").Valid(Validity{MinWidth: 200}),
	}}
	page := &fakePage{answers: map[string][]Candidate{
		"textarea.tit": {visible("narrow", 120, 30)},
		"fallback":     {visible("wide", 640, 30)},
	}}

	res, err := New(page, nil).Locate(context.Background(), d)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, 1, res.StrategyUsed)
	assert.Equal(t, "wide", res.Handle.Ref)
}

func TestLocate_SkipsInvalidCandidatesWithinStrategy(t *testing.T) {
	d := Descriptor{Role: schemas.RoleTagInput, Strategies: []Strategy{ByCSS("input")}}
	page := &fakePage{answers: map[string][]Candidate{
		"input": {
			{Ref: "hidden", Visible: false, Box: schemas.ElementGeometry{Width: 300, Height: 30}},
			visible("shown", 300, 30),
		},
	}}

	res, err := New(page, nil).Locate(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "shown", res.Handle.Ref)
}

func TestLocate_StrategyErrorCountsAsZeroCandidates(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	page := &fakePage{
		errs:    map[string]error{"S1": errors.New("Execution context was destroyed")},
		answers: map[string][]Candidate{"S2": {visible("ok", 300, 30)}},
	}

	res, err := New(page, zap.New(core)).Locate(context.Background(), titleDescriptor())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 1, res.StrategyUsed)
	assert.Equal(t, 1, logs.FilterMessage("Strategy failed, trying next.").Len())
}

func TestLocate_NotFound(t *testing.T) {
	page := &fakePage{}
	res, err := New(page, nil).Locate(context.Background(), titleDescriptor())
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Nil(t, res.Handle)
	assert.Equal(t, -1, res.StrategyUsed)
	assert.Len(t, page.evaluated, 3)
}

func TestLocate_TransportErrorAborts(t *testing.T) {
	transport := schemas.NewError(schemas.KindTransport, "evaluate", errors.New("websocket: close 1006"))
	page := &fakePage{
		errs:    map[string]error{"S1": transport},
		answers: map[string][]Candidate{"S2": {visible("ok", 300, 30)}},
	}

	res, err := New(page, nil).Locate(context.Background(), titleDescriptor())
	require.Error(t, err)
	assert.True(t, schemas.IsFatal(err))
	assert.False(t, res.Found)
	assert.Equal(t, []string{"S1"}, page.evaluated)
}

func TestLocate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := &fakePage{}

	_, err := New(page, nil).Locate(ctx, titleDescriptor())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, page.evaluated)
}

func TestLocate_CoordinateCarriesPoint(t *testing.T) {
	d := Descriptor{Role: schemas.RoleBodyEditor, Strategies: []Strategy{
		AtFrameCoordinate(FrameIndex(0), 0.5, 0.3),
	}}
	page := &fakePage{answers: map[string][]Candidate{
		"": {{Visible: true, Box: schemas.ElementGeometry{X: 100, Y: 50, Width: 800, Height: 600}, Point: &Point{X: 500, Y: 230}}},
	}}

	res, err := New(page, nil).Locate(context.Background(), d)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.True(t, res.Handle.IsPoint())
	assert.Equal(t, Point{X: 500, Y: 230}, *res.Handle.Point)
	assert.Equal(t, FrameIndex(0), res.Handle.Frame)
}

func TestDescriptorBind(t *testing.T) {
	tmpl := Descriptor{Role: schemas.RoleCategoryOption, Strategies: []Strategy{
		ByExactText(`[role="option"]`, NamePlaceholder),
		ByText("li", NamePlaceholder),
	}}
	bound := tmpl.Bind("Daily")

	assert.Equal(t, "Daily", bound.Name)
	assert.Equal(t, "Daily", bound.Strategies[0].Value)
	assert.True(t, bound.Strategies[0].Exact)
	assert.Equal(t, "li", bound.Strategies[1].Scope)
	assert.Equal(t, NamePlaceholder, tmpl.Strategies[0].Value, "template must stay untouched")
	assert.Equal(t, "CATEGORY_OPTION(Daily)", bound.String())
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "attribute-pattern(#post-title-inp)", ByCSS("#post-title-inp").String())
	assert.Equal(t, "frame-coordinate@iframe[0](0.50,0.30)", AtFrameCoordinate(FrameIndex(0), 0.5, 0.3).String())
	assert.Equal(t, `text-match@iframe(#x)(li~"a")`, ByText("li", "a").In(FrameSelector("#x")).String())
}
