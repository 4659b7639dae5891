// Package plan models the agent's executable plan (AgentPlan/AgentPlanStep)
// and normalizes raw planner output into something the scheduler can run
// without losing the planner's intent. Grounded on
// original_source/crates/soulbrowser-kernel/src/agent/mod.rs (normalize_plan
// and its helpers) and original_source/crates/agent-core/src/plan_validator.rs.
package plan

import "github.com/soulbrowser/soulbrowser/internal/core"

// ToolKind tags the Tool variant in play on a step.
type ToolKind int

const (
	ToolNavigate ToolKind = iota
	ToolClick
	ToolTypeText
	ToolSelect
	ToolScroll
	ToolWait
	ToolCustom
	ToolDone
)

// LocatorKind tags the Locator variant.
type LocatorKind int

const (
	LocatorCss LocatorKind = iota
	LocatorAria
	LocatorText
)

// Locator addresses a DOM element for Click/TypeText/Select/Scroll steps.
type Locator struct {
	Kind LocatorKind
	Css  string
	Role string
	Name string
	Text string
	Exact bool
}

func CssLocator(selector string) Locator { return Locator{Kind: LocatorCss, Css: selector} }
func AriaLocator(role, name string) Locator {
	return Locator{Kind: LocatorAria, Role: role, Name: name}
}
func TextLocator(text string, exact bool) Locator {
	return Locator{Kind: LocatorText, Text: text, Exact: exact}
}

// ScrollTargetKind tags the ScrollTarget variant.
type ScrollTargetKind int

const (
	ScrollTop ScrollTargetKind = iota
	ScrollBottom
	ScrollPixels
	ScrollSelector
)

type ScrollTarget struct {
	Kind     ScrollTargetKind
	Pixels   int
	Selector Locator
}

// WaitConditionKind tags the WaitCondition variant a Wait tool or a step
// validation checks.
type WaitConditionKind int

const (
	WaitDuration WaitConditionKind = iota
	WaitNetworkIdle
	WaitElementVisible
	WaitElementHidden
	WaitUrlEquals
	WaitUrlMatches
	WaitTitleMatches
)

type WaitCondition struct {
	Kind        WaitConditionKind
	DurationMs  uint64
	NetworkMs   uint64
	Locator     Locator
	Operand     string
}

func DurationWait(ms uint64) WaitCondition     { return WaitCondition{Kind: WaitDuration, DurationMs: ms} }
func NetworkIdleWait(ms uint64) WaitCondition  { return WaitCondition{Kind: WaitNetworkIdle, NetworkMs: ms} }
func ElementVisibleWait(l Locator) WaitCondition {
	return WaitCondition{Kind: WaitElementVisible, Locator: l}
}
func ElementHiddenWait(l Locator) WaitCondition {
	return WaitCondition{Kind: WaitElementHidden, Locator: l}
}
func UrlEqualsWait(url string) WaitCondition    { return WaitCondition{Kind: WaitUrlEquals, Operand: url} }
func UrlMatchesWait(pattern string) WaitCondition {
	return WaitCondition{Kind: WaitUrlMatches, Operand: pattern}
}
func TitleMatchesWait(pattern string) WaitCondition {
	return WaitCondition{Kind: WaitTitleMatches, Operand: pattern}
}

// CoversNavigation reports whether this condition is a navigation-style
// signal a click validator would accept (URL/title changed, element
// appeared/disappeared).
func (c WaitCondition) CoversNavigation() bool {
	switch c.Kind {
	case WaitUrlEquals, WaitUrlMatches, WaitTitleMatches, WaitElementVisible, WaitElementHidden:
		return true
	default:
		return false
	}
}

// WaitMode is the page-readiness signal a step's Tool waits for before its
// Validations are checked.
type WaitMode int

const (
	WaitModeNone WaitMode = iota
	WaitModeDomReady
	WaitModeIdle
	WaitModeLoad
)

// Tool is the closed union of actions a step can perform.
type Tool struct {
	Kind ToolKind

	// Navigate
	URL string
	// Click/TypeText/Select/Scroll share Locator
	Locator Locator
	// TypeText
	Text   string
	Submit bool
	// Select
	Value  string
	Method string
	// Scroll
	ScrollTarget ScrollTarget
	// Wait
	Condition WaitCondition
	// Custom
	Name    string
	Payload map[string]any

	Wait      WaitMode
	TimeoutMs *int
}

func NavigateTool(url string) Tool { return Tool{Kind: ToolNavigate, URL: url} }
func ClickTool(l Locator) Tool     { return Tool{Kind: ToolClick, Locator: l} }
func TypeTextTool(l Locator, text string, submit bool) Tool {
	return Tool{Kind: ToolTypeText, Locator: l, Text: text, Submit: submit}
}
func SelectTool(l Locator, value, method string) Tool {
	return Tool{Kind: ToolSelect, Locator: l, Value: value, Method: method}
}
func ScrollTool(target ScrollTarget) Tool { return Tool{Kind: ToolScroll, ScrollTarget: target} }
func WaitTool(condition WaitCondition) Tool { return Tool{Kind: ToolWait, Condition: condition} }
func CustomTool(name string, payload map[string]any) Tool {
	if payload == nil {
		payload = map[string]any{}
	}
	return Tool{Kind: ToolCustom, Name: name, Payload: payload}
}
func DoneTool() Tool { return Tool{Kind: ToolDone} }

// Validation is one condition a step checks after its Tool has executed.
type Validation struct {
	Description string
	Condition   WaitCondition
}

// Step is one unit of execution in an AgentPlan.
type Step struct {
	ID               string
	Title            string
	Detail           string
	Tool             Tool
	Validations      []Validation
	RequiresApproval bool
	Metadata         map[string]any
}

func NewStep(id, title string, tool Tool) Step {
	return Step{ID: id, Title: title, Tool: tool, Metadata: map[string]any{}}
}

func (s *Step) metadataMap() map[string]any {
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	return s.Metadata
}

// MarkRepaired appends note to the step's repair_notes metadata and flags
// it as repaired, mirroring mark_step_repaired.
func (s *Step) MarkRepaired(note string) {
	m := s.metadataMap()
	m["repaired"] = true
	existing, _ := m["repair_notes"].([]string)
	m["repair_notes"] = append(existing, note)
}

// PlanMeta carries plan-level bookkeeping: vendor-specific extras and any
// UI overlays emitted by normalization passes.
type PlanMeta struct {
	VendorContext map[string]any
	Overlays      []map[string]any
}

func newPlanMeta() PlanMeta {
	return PlanMeta{VendorContext: map[string]any{}}
}

// AgentPlan is the full executable plan for one task.
type AgentPlan struct {
	TaskID core.TaskId
	Title  string
	Steps  []Step
	Meta   PlanMeta
}

func NewAgentPlan(taskID core.TaskId, title string) AgentPlan {
	return AgentPlan{TaskID: taskID, Title: title, Meta: newPlanMeta()}
}

// UniqueStepID returns base if no existing step carries that id, otherwise
// base suffixed with an incrementing counter until unique.
func (p *AgentPlan) UniqueStepID(base string) string {
	taken := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		taken[s.ID] = true
	}
	if !taken[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + "-" + itoa(i)
		if !taken[candidate] {
			return candidate
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// IntentKind classifies the high-level shape of a request.
type IntentKind int

const (
	IntentInformational IntentKind = iota
	IntentTransactional
	IntentNavigational
	IntentOther
)

// RequestedOutput is one structured-output requirement a request asks for.
type RequestedOutput struct {
	Schema string
}

// Intent is the classified reading of a raw request: what kind of task it
// is, which sites it prefers, and what structured output it expects back.
type Intent struct {
	IntentKind      IntentKind
	PrimaryGoal     string
	TargetSites     []string
	RequiredOutputs []RequestedOutput
}

// RequestContext carries ambient signals (like the page the user was
// already looking at) that help normalization fill in gaps.
type RequestContext struct {
	CurrentURL string
}

// Request is the raw task handed to the planner before any plan exists.
type Request struct {
	TaskID   core.TaskId
	Goal     string
	Intent   Intent
	Context  RequestContext
	Metadata map[string]any
}

// RepairReport summarizes everything a Normalizer changed about a plan.
type RepairReport struct {
	TotalRepairs   int
	Notes          []string
	BudgetExhausted bool
	Overlays       []map[string]any
}

func (r RepairReport) HasRepairs() bool { return r.TotalRepairs > 0 }
