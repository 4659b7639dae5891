package gate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

type scriptFunc func(ctx context.Context, route core.ExecRoute, script string) (json.RawMessage, error)

func (f scriptFunc) EvaluateScript(ctx context.Context, route core.ExecRoute, script string) (json.RawMessage, error) {
	return f(ctx, route, script)
}

func alwaysFound(extra string) scriptFunc {
	return func(context.Context, core.ExecRoute, string) (json.RawMessage, error) {
		return json.RawMessage(`{"found":true` + extra + `}`), nil
	}
}

func mockRoute() core.ExecRoute {
	return core.NewExecRoute(core.NewSessionId(), core.NewPageId(), core.NewFrameId())
}

func TestExpectSpecBuilder(t *testing.T) {
	spec := NewExpectSpec().
		WithTimeout(3000).
		WithAll(UrlCond(UrlCondition{Kind: UrlContains, Operand: "success"})).
		WithAny(TitleCond(TitleCondition{Kind: TitleContains, Operand: "Complete"})).
		WithDeny(RuntimeCond(RuntimeCondition{Kind: RuntimeHasErrors}))

	assert.Equal(t, 3000, spec.TimeoutMs)
	assert.Len(t, spec.All, 1)
	assert.Len(t, spec.Any, 1)
	assert.Len(t, spec.Deny, 1)
	assert.True(t, spec.HasConditions())
	assert.Equal(t, 3, spec.ConditionCount())
}

func TestValidationContextAddSignal(t *testing.T) {
	ctx := NewValidationContext()
	url := "https://example.com"
	ctx.CurrentURL = &url
	ctx.DomMutations = 5
	ctx.AddSignal("custom", map[string]int{"value": 42})

	require.NotNil(t, ctx.CurrentURL)
	assert.Equal(t, url, *ctx.CurrentURL)
	assert.Equal(t, 5, ctx.DomMutations)
	assert.Equal(t, 42, ctx.CustomSignals["custom"].(map[string]int)["value"])
}

func TestNoConditionsPassesByDefault(t *testing.T) {
	v := NewDefaultGateValidator(alwaysFound(""), nil)
	result, err := v.Validate(context.Background(), NewExpectSpec(), NewValidationContext(), mockRoute())
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Contains(t, result.Reasons, "No conditions to validate")
}

func TestAllConditionsMustPass(t *testing.T) {
	v := NewDefaultGateValidator(alwaysFound(`,"visible":false`), nil)
	url := "https://example.com/success"
	vctx := NewValidationContext()
	vctx.CurrentURL = &url

	spec := NewExpectSpec().
		WithAll(UrlCond(UrlCondition{Kind: UrlContains, Operand: "success"})).
		WithAll(DomCond(DomCondition{Kind: DomElementVisible, Anchor: NewCssAnchor("#status")}))

	result, err := v.Validate(context.Background(), spec, vctx, mockRoute())
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.NotEmpty(t, result.Reasons)
}

func TestAnyConditionsShortCircuitOnFirstMatch(t *testing.T) {
	v := NewDefaultGateValidator(alwaysFound(""), nil)
	spec := NewExpectSpec().
		WithAny(DomCond(DomCondition{Kind: DomElementExists, Anchor: NewCssAnchor("#a")})).
		WithAny(DomCond(DomCondition{Kind: DomElementExists, Anchor: NewCssAnchor("#b")}))

	result, err := v.Validate(context.Background(), spec, NewValidationContext(), mockRoute())
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestDenyConditionErrorCountsAsMetTheInverse(t *testing.T) {
	// A deny condition that errors (missing signal) is treated as "not
	// met", which is the deny clause's desired outcome: overall pass.
	v := NewDefaultGateValidator(alwaysFound(""), nil)
	spec := NewExpectSpec().WithDeny(UrlCond(UrlCondition{Kind: UrlContains, Operand: "error"}))

	result, err := v.Validate(context.Background(), spec, NewValidationContext(), mockRoute())
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestDenyConditionPassingFailsOverall(t *testing.T) {
	v := NewDefaultGateValidator(alwaysFound(""), nil)
	url := "https://example.com/error"
	vctx := NewValidationContext()
	vctx.CurrentURL = &url
	spec := NewExpectSpec().WithDeny(UrlCond(UrlCondition{Kind: UrlContains, Operand: "error"}))

	result, err := v.Validate(context.Background(), spec, vctx, mockRoute())
	require.NoError(t, err)
	assert.False(t, result.Passed)
}

func TestElementTextMatchesCaseInsensitiveTrimmed(t *testing.T) {
	evaluator := scriptFunc(func(context.Context, core.ExecRoute, string) (json.RawMessage, error) {
		return json.RawMessage(`{"found":true,"text":"  Done!  "}`), nil
	})
	v := NewDefaultGateValidator(evaluator, nil)
	ok, err := v.ValidateCondition(context.Background(), DomCond(DomCondition{
		Kind: DomElementText, Anchor: NewCssAnchor("#status"), Text: "done!", Exact: true,
	}), NewValidationContext(), mockRoute())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestElementAttributeChecksExpectedValue(t *testing.T) {
	evaluator := scriptFunc(func(context.Context, core.ExecRoute, string) (json.RawMessage, error) {
		return json.RawMessage(`{"found":true,"value":"true"}`), nil
	})
	v := NewDefaultGateValidator(evaluator, nil)
	expected := "true"
	ok, err := v.ValidateCondition(context.Background(), DomCond(DomCondition{
		Kind: DomElementAttribute, Anchor: NewCssAnchor("#box"), Attribute: "aria-checked", Value: &expected,
	}), NewValidationContext(), mockRoute())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUrlConditionMissingSignalReturnsMissingSignalError(t *testing.T) {
	v := NewDefaultGateValidator(alwaysFound(""), nil)
	_, err := v.ValidateCondition(context.Background(), UrlCond(UrlCondition{Kind: UrlEquals, Operand: "x"}), NewValidationContext(), mockRoute())
	require.Error(t, err)
	assert.Equal(t, core.KindMissingSignal, core.KindOf(err))
}

func TestUrlConditionInvalidRegexReturnsConditionFailed(t *testing.T) {
	v := NewDefaultGateValidator(alwaysFound(""), nil)
	url := "https://example.com"
	vctx := NewValidationContext()
	vctx.CurrentURL = &url
	_, err := v.ValidateCondition(context.Background(), UrlCond(UrlCondition{Kind: UrlMatches, Operand: "("}), vctx, mockRoute())
	require.Error(t, err)
	assert.Equal(t, core.KindConditionFailed, core.KindOf(err))
}

func TestCountConditionComparators(t *testing.T) {
	cases := []struct {
		name string
		cond CountCondition
		obs  int
		want bool
	}{
		{"eq match", CountCondition{Cmp: CmpEq, Target: 3}, 3, true},
		{"eq mismatch", CountCondition{Cmp: CmpEq, Target: 3}, 4, false},
		{"gt", CountCondition{Cmp: CmpGt, Target: 3}, 4, true},
		{"le", CountCondition{Cmp: CmpLe, Target: 3}, 3, true},
		{"range", CountCondition{Target: 2, High: intPtr(5)}, 4, true},
		{"range miss", CountCondition{Target: 2, High: intPtr(5)}, 9, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.cond.Matches(c.obs))
		})
	}
}

func intPtr(v int) *int { return &v }

func TestVisAndSemConditionsPassByDefault(t *testing.T) {
	v := NewDefaultGateValidator(alwaysFound(""), nil)
	ok, err := v.ValidateCondition(context.Background(), VisCond(), NewValidationContext(), mockRoute())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.ValidateCondition(context.Background(), SemCond(), NewValidationContext(), mockRoute())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRuntimeHasErrorsScansConsoleMessages(t *testing.T) {
	v := NewDefaultGateValidator(alwaysFound(""), nil)
	vctx := NewValidationContext()
	vctx.ConsoleMessages = []string{"info: loaded", "ERROR: boom"}
	ok, err := v.ValidateCondition(context.Background(), RuntimeCond(RuntimeCondition{Kind: RuntimeHasErrors}), vctx, mockRoute())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCollectAllGathersEachSignalKind(t *testing.T) {
	collector := NewDefaultEvidenceCollector(nil)
	url := "https://example.com"
	title := "Example"
	vctx := NewValidationContext()
	vctx.CurrentURL = &url
	vctx.CurrentTitle = &title
	vctx.ConsoleMessages = []string{"hello"}
	vctx.NetworkRequests = 2

	evidence := collector.CollectAll(context.Background(), vctx, mockRoute())
	kinds := make(map[string]bool)
	for _, e := range evidence {
		kinds[e.Kind] = true
	}
	assert.True(t, kinds["url"])
	assert.True(t, kinds["title"])
	assert.True(t, kinds["console"])
	assert.True(t, kinds["network"])
}
