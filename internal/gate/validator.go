package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

// ScriptEvaluator runs a JS expression against a route's page and returns
// its JSON result. The Gate Validator's only dependency on a live browser;
// a CDP-backed implementation lives in internal/external.
type ScriptEvaluator interface {
	EvaluateScript(ctx context.Context, route core.ExecRoute, script string) (json.RawMessage, error)
}

// GateValidator decides whether an ExpectSpec is satisfied.
type GateValidator interface {
	Validate(ctx context.Context, spec ExpectSpec, vctx ValidationContext, route core.ExecRoute) (GateResult, error)
	ValidateCondition(ctx context.Context, condition Condition, vctx ValidationContext, route core.ExecRoute) (bool, error)
}

// DefaultGateValidator evaluates all/any/deny in order, then collects
// evidence, mirroring the original's synthesis exactly.
type DefaultGateValidator struct {
	evaluator ScriptEvaluator
	evidence  EvidenceCollector
}

func NewDefaultGateValidator(evaluator ScriptEvaluator, evidence EvidenceCollector) *DefaultGateValidator {
	return &DefaultGateValidator{evaluator: evaluator, evidence: evidence}
}

func (v *DefaultGateValidator) Validate(ctx context.Context, spec ExpectSpec, vctx ValidationContext, route core.ExecRoute) (GateResult, error) {
	start := time.Now()

	if !spec.HasConditions() {
		return PassResult([]string{"No conditions to validate"}).
			WithLatency(uint64(time.Since(start).Milliseconds())), nil
	}

	var reasons []string
	allPassed := true

	for i, condition := range spec.All {
		ok, err := v.ValidateCondition(ctx, condition, vctx, route)
		switch {
		case err != nil:
			reasons = append(reasons, fmt.Sprintf("all condition %d error: %v", i, err))
			allPassed = false
		case !ok:
			reasons = append(reasons, fmt.Sprintf("all condition %d failed", i))
			allPassed = false
		}
	}

	if len(spec.Any) > 0 {
		anyPassed := false
		for _, condition := range spec.Any {
			ok, err := v.ValidateCondition(ctx, condition, vctx, route)
			if err == nil && ok {
				anyPassed = true
				break
			}
		}
		if !anyPassed {
			reasons = append(reasons, "none of the 'any' conditions passed")
			allPassed = false
		}
	}

	for i, condition := range spec.Deny {
		ok, err := v.ValidateCondition(ctx, condition, vctx, route)
		if err != nil {
			// An error inside a deny condition counts as "not met", which
			// is the deny clause's desired outcome: a pass.
			continue
		}
		if ok {
			reasons = append(reasons, fmt.Sprintf("deny condition %d passed (should have failed)", i))
			allPassed = false
		}
	}

	var evidence []Evidence
	if v.evidence != nil {
		evidence = v.evidence.CollectAll(ctx, vctx, route)
	}

	var locatorHintResult *LocatorHintResult
	if !spec.LocatorHint.isEmpty() {
		result := v.checkLocatorHints(spec.LocatorHint)
		locatorHintResult = &result
	}

	var result GateResult
	if allPassed {
		if len(reasons) == 0 {
			reasons = []string{"All conditions met"}
		}
		result = PassResult(reasons)
	} else {
		result = FailResult(reasons)
	}
	for _, e := range evidence {
		result = result.WithEvidence(e)
	}
	if locatorHintResult != nil {
		result = result.WithLocatorHint(*locatorHintResult)
	}
	result = result.WithLatency(uint64(time.Since(start).Milliseconds()))
	return result, nil
}

func (v *DefaultGateValidator) ValidateCondition(ctx context.Context, condition Condition, vctx ValidationContext, route core.ExecRoute) (bool, error) {
	switch condition.Kind {
	case CondDom:
		return v.validateDom(ctx, condition.Dom, vctx, route)
	case CondNet:
		return v.validateNet(condition.Net, vctx)
	case CondUrl:
		return v.validateURL(condition.Url, vctx)
	case CondTitle:
		return v.validateTitle(condition.Title, vctx)
	case CondRuntime:
		return v.validateRuntime(condition.Runtime, vctx)
	case CondVis, CondSem:
		// Not yet implemented: visual/semantic perceivers are out of the
		// core's scope. Passes by default, matching the original's TODOs.
		return true, nil
	default:
		return false, core.New(core.KindInternal, "unknown condition kind")
	}
}

func (v *DefaultGateValidator) validateDom(ctx context.Context, cond DomCondition, vctx ValidationContext, route core.ExecRoute) (bool, error) {
	switch cond.Kind {
	case DomElementExists:
		return v.elementPresence(ctx, route, cond.Anchor)
	case DomElementNotExists:
		exists, err := v.elementPresence(ctx, route, cond.Anchor)
		return !exists, err
	case DomElementVisible:
		return v.elementVisibility(ctx, route, cond.Anchor)
	case DomElementHidden:
		visible, err := v.elementVisibility(ctx, route, cond.Anchor)
		return !visible, err
	case DomElementAttribute:
		return v.elementAttribute(ctx, route, cond.Anchor, cond.Attribute, cond.Value)
	case DomElementText:
		return v.elementText(ctx, route, cond.Anchor, cond.Text, cond.Exact)
	case DomMutationCount:
		return cond.Count.Matches(vctx.DomMutations), nil
	default:
		return false, core.New(core.KindInternal, "unknown dom condition kind")
	}
}

type domProbeResult struct {
	Found   bool    `json:"found"`
	Visible bool    `json:"visible"`
	Value   *string `json:"value"`
	Text    string  `json:"text"`
}

func (v *DefaultGateValidator) runDomProbe(ctx context.Context, route core.ExecRoute, script string) (domProbeResult, error) {
	raw, err := v.evaluator.EvaluateScript(ctx, route, script)
	if err != nil {
		return domProbeResult{}, core.Wrap(core.KindTransport, "dom probe failed", err)
	}
	var result domProbeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domProbeResult{}, core.Wrap(core.KindInternal, "dom probe result unparsable", err)
	}
	return result, nil
}

func (v *DefaultGateValidator) elementPresence(ctx context.Context, route core.ExecRoute, anchor AnchorDescriptor) (bool, error) {
	script := domProbeScript(anchor, "return { found: true };")
	result, err := v.runDomProbe(ctx, route, script)
	if err != nil {
		return false, err
	}
	return result.Found, nil
}

func (v *DefaultGateValidator) elementVisibility(ctx context.Context, route core.ExecRoute, anchor AnchorDescriptor) (bool, error) {
	body := `
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		const visible =
			style.visibility !== 'hidden' &&
			style.display !== 'none' &&
			(rect.width > 0 || rect.height > 0 || el.getClientRects().length > 0);
		return { found: true, visible };
	`
	script := domProbeScript(anchor, body)
	result, err := v.runDomProbe(ctx, route, script)
	if err != nil {
		return false, err
	}
	return result.Visible, nil
}

func (v *DefaultGateValidator) elementAttribute(ctx context.Context, route core.ExecRoute, anchor AnchorDescriptor, attribute string, expected *string) (bool, error) {
	attr, _ := json.Marshal(attribute)
	body := fmt.Sprintf("const attrValue = el.getAttribute(%s); return { found: true, value: attrValue };", attr)
	script := domProbeScript(anchor, body)
	result, err := v.runDomProbe(ctx, route, script)
	if err != nil {
		return false, err
	}
	if !result.Found {
		return false, nil
	}
	if expected == nil {
		return result.Value != nil, nil
	}
	return result.Value != nil && *result.Value == *expected, nil
}

func (v *DefaultGateValidator) elementText(ctx context.Context, route core.ExecRoute, anchor AnchorDescriptor, text string, exact bool) (bool, error) {
	body := "const content = (el.innerText || el.textContent || ''); return { found: true, text: content };"
	script := domProbeScript(anchor, body)
	result, err := v.runDomProbe(ctx, route, script)
	if err != nil {
		return false, err
	}
	if !result.Found {
		return false, nil
	}
	normalize := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	expectedNorm := normalize(text)
	actualNorm := normalize(result.Text)
	if exact {
		return actualNorm == expectedNorm, nil
	}
	return strings.Contains(actualNorm, expectedNorm), nil
}

func (v *DefaultGateValidator) validateNet(cond NetCondition, vctx ValidationContext) (bool, error) {
	switch cond.Kind {
	case NetRequestCount:
		return cond.Count.Matches(vctx.NetworkRequests), nil
	case NetRequestToURL:
		// Placeholder: network log correlation is perceiver territory.
		return cond.Occurred, nil
	case NetResponseStatus:
		return true, nil
	case NetNetworkIdle:
		return true, nil
	default:
		return false, core.New(core.KindInternal, "unknown net condition kind")
	}
}

func (v *DefaultGateValidator) validateURL(cond UrlCondition, vctx ValidationContext) (bool, error) {
	if vctx.CurrentURL == nil {
		return false, core.MissingSignal("current_url")
	}
	currentURL := *vctx.CurrentURL
	switch cond.Kind {
	case UrlEquals:
		return currentURL == cond.Operand, nil
	case UrlContains:
		return strings.Contains(currentURL, cond.Operand), nil
	case UrlMatches:
		re, err := regexp.Compile(cond.Operand)
		if err != nil {
			return false, core.ConditionFailed("invalid regex: " + err.Error())
		}
		return re.MatchString(currentURL), nil
	case UrlChanged, UrlUnchanged:
		// Placeholder: comparing against the pre-action URL requires
		// threading that baseline through the caller, not yet wired.
		return true, nil
	default:
		return false, core.New(core.KindInternal, "unknown url condition kind")
	}
}

func (v *DefaultGateValidator) validateTitle(cond TitleCondition, vctx ValidationContext) (bool, error) {
	if vctx.CurrentTitle == nil {
		return false, core.MissingSignal("current_title")
	}
	currentTitle := *vctx.CurrentTitle
	switch cond.Kind {
	case TitleEquals:
		return currentTitle == cond.Operand, nil
	case TitleContains:
		return strings.Contains(currentTitle, cond.Operand), nil
	case TitleMatches:
		re, err := regexp.Compile(cond.Operand)
		if err != nil {
			return false, core.ConditionFailed("invalid regex: " + err.Error())
		}
		return re.MatchString(currentTitle), nil
	case TitleChanged, TitleUnchanged:
		return true, nil
	default:
		return false, core.New(core.KindInternal, "unknown title condition kind")
	}
}

func (v *DefaultGateValidator) validateRuntime(cond RuntimeCondition, vctx ValidationContext) (bool, error) {
	switch cond.Kind {
	case RuntimeHasErrors:
		for _, msg := range vctx.ConsoleMessages {
			if strings.Contains(strings.ToLower(msg), "error") {
				return true, nil
			}
		}
		return false, nil
	case RuntimeNoErrors:
		for _, msg := range vctx.ConsoleMessages {
			if strings.Contains(strings.ToLower(msg), "error") {
				return false, nil
			}
		}
		return true, nil
	case RuntimeMessageMatches:
		re, err := regexp.Compile(cond.Pattern)
		if err != nil {
			return false, core.ConditionFailed("invalid regex: " + err.Error())
		}
		for _, msg := range vctx.ConsoleMessages {
			if re.MatchString(msg) {
				return true, nil
			}
		}
		return false, nil
	case RuntimeMessageCount:
		return cond.Count.Matches(len(vctx.ConsoleMessages)), nil
	case RuntimeJsEvaluates:
		// Placeholder: evaluating an arbitrary expression and checking its
		// truthiness needs the evaluator wired with a dedicated script
		// shape; not yet implemented.
		return true, nil
	default:
		return false, core.New(core.KindInternal, "unknown runtime condition kind")
	}
}

func (v *DefaultGateValidator) checkLocatorHints(hint LocatorHint) LocatorHintResult {
	return LocatorHintResult{AppearsSuccessful: true}
}

// domProbeScript wraps an anchor-locator snippet and a per-check body into
// one self-contained IIFE, returning {found:false} if the anchor resolves
// to nothing.
func domProbeScript(anchor AnchorDescriptor, body string) string {
	locator := anchorLocatorSnippet(anchor)
	return fmt.Sprintf(`(() => {
		%s
		if (!el) {
			return { found: false };
		}
		const elRef = el;
		{
			const el = elRef;
			%s
		}
	})()`, locator, body)
}

func anchorLocatorSnippet(anchor AnchorDescriptor) string {
	switch anchor.Kind {
	case AnchorCss:
		selector, _ := json.Marshal(anchor.Css)
		return fmt.Sprintf("const el = document.querySelector(%s);", selector)
	case AnchorAria:
		role, _ := json.Marshal(anchor.Role)
		name, _ := json.Marshal(anchor.Name)
		return fmt.Sprintf(`const role = %s;
			const targetName = %s;
			const normalize = (value) => (value || '').trim().toLowerCase();
			const computeName = (node) => {
				if (!node) return '';
				const label = node.getAttribute('aria-label');
				if (label) return label.trim();
				const labelledby = node.getAttribute('aria-labelledby');
				if (labelledby) {
					return labelledby.split(/\s+/)
						.map(id => document.getElementById(id))
						.map(node => node ? (node.textContent || '') : '')
						.join(' ')
						.trim();
				}
				if (node.title) return node.title.trim();
				return (node.innerText || node.textContent || '').trim();
			};
			const candidates = Array.from(document.querySelectorAll('[role="' + role + '"]'));
			const el = candidates.find(node => normalize(computeName(node)) === normalize(targetName));`, role, name)
	case AnchorText:
		pattern, _ := json.Marshal(anchor.Content)
		exactFlag := "false"
		if anchor.Exact {
			exactFlag = "true"
		}
		return fmt.Sprintf(`const searchFor = %s;
			const exact = %s;
			const normalize = (value) => (value || '').trim().toLowerCase();
			const target = normalize(searchFor);
			const nodes = Array.from(document.querySelectorAll('body *'));
			const el = nodes.find(node => {
				const value = normalize(node.innerText || node.textContent || '');
				if (!value) return false;
				return exact ? value === target : value.includes(target);
			});`, pattern, exactFlag)
	default:
		return "const el = null;"
	}
}
