// Package gate evaluates an ExpectSpec predicate tree against the current
// page state: DOM/URL/title/runtime/network signals, reached through an
// anchor-addressed DOM probe run via an injected script evaluator. Grounded
// on original_source/crates/action-gate/src/validator.rs.
package gate

// AnchorDescriptor addresses one DOM element for a probe: by CSS selector,
// by ARIA role+accessible-name, or by visible text content.
type AnchorDescriptor struct {
	Kind AnchorKind
	// Css holds the selector when Kind == AnchorCss.
	Css string
	// Role/Name hold the ARIA role and accessible name when Kind == AnchorAria.
	Role string
	Name string
	// Content/Exact hold the text match when Kind == AnchorText.
	Content string
	Exact   bool
}

type AnchorKind int

const (
	AnchorCss AnchorKind = iota
	AnchorAria
	AnchorText
)

func NewCssAnchor(selector string) AnchorDescriptor {
	return AnchorDescriptor{Kind: AnchorCss, Css: selector}
}

func NewAriaAnchor(role, name string) AnchorDescriptor {
	return AnchorDescriptor{Kind: AnchorAria, Role: role, Name: name}
}

func NewTextAnchor(content string, exact bool) AnchorDescriptor {
	return AnchorDescriptor{Kind: AnchorText, Content: content, Exact: exact}
}

// Comparator is the relational operator a CountCondition applies to an
// observed integer signal.
type Comparator int

const (
	CmpEq Comparator = iota
	CmpNe
	CmpGt
	CmpLt
	CmpGe
	CmpLe
)

// CountCondition compares an accumulated integer signal (DOM mutation
// count, network request count, console message count) against a target
// using Comparator, or, for CmpRange-like needs, a [Low, High] band when
// both bounds are set.
type CountCondition struct {
	Cmp    Comparator
	Target int
	// High, when non-nil, turns this into an inclusive range check
	// [Target, *High] and Cmp is ignored.
	High *int
}

// Matches reports whether observed satisfies this condition.
func (c CountCondition) Matches(observed int) bool {
	if c.High != nil {
		return observed >= c.Target && observed <= *c.High
	}
	switch c.Cmp {
	case CmpEq:
		return observed == c.Target
	case CmpNe:
		return observed != c.Target
	case CmpGt:
		return observed > c.Target
	case CmpLt:
		return observed < c.Target
	case CmpGe:
		return observed >= c.Target
	case CmpLe:
		return observed <= c.Target
	default:
		return false
	}
}

// DomConditionKind tags the DomCondition variant in play.
type DomConditionKind int

const (
	DomElementExists DomConditionKind = iota
	DomElementNotExists
	DomElementVisible
	DomElementHidden
	DomElementAttribute
	DomElementText
	DomMutationCount
)

// DomCondition is a closed union over the DOM-facing checks; only the
// fields relevant to Kind are populated.
type DomCondition struct {
	Kind      DomConditionKind
	Anchor    AnchorDescriptor
	Attribute string
	Value     *string // expected attribute value; nil means "attribute present"
	Text      string
	Exact     bool
	Count     CountCondition
}

// NetConditionKind tags the NetCondition variant.
type NetConditionKind int

const (
	NetRequestCount NetConditionKind = iota
	NetRequestToURL
	NetResponseStatus
	NetNetworkIdle
)

type NetCondition struct {
	Kind       NetConditionKind
	Count      CountCondition
	URLPattern string
	Occurred   bool
	StatusCode int
	QuietMs    int
}

type urlConditionKind int

const (
	UrlEquals urlConditionKind = iota
	UrlContains
	UrlMatches
	UrlChanged
	UrlUnchanged
)

type UrlCondition struct {
	Kind    urlConditionKind
	Operand string
}

type titleConditionKind int

const (
	TitleEquals titleConditionKind = iota
	TitleContains
	TitleMatches
	TitleChanged
	TitleUnchanged
)

type TitleCondition struct {
	Kind    titleConditionKind
	Operand string
}

type runtimeConditionKind int

const (
	RuntimeHasErrors runtimeConditionKind = iota
	RuntimeNoErrors
	RuntimeMessageMatches
	RuntimeMessageCount
	RuntimeJsEvaluates
)

type RuntimeCondition struct {
	Kind    runtimeConditionKind
	Pattern string
	Count   CountCondition
	Expr    string
}

// ConditionKind tags Condition's variant.
type ConditionKind int

const (
	CondDom ConditionKind = iota
	CondNet
	CondUrl
	CondTitle
	CondRuntime
	CondVis
	CondSem
)

// Condition is the top-level closed union every ExpectSpec clause is built
// from. Vis/Sem are placeholders: validated as always-true until a visual
// or semantic perceiver is wired in (matches the original's own TODOs).
type Condition struct {
	Kind    ConditionKind
	Dom     DomCondition
	Net     NetCondition
	Url     UrlCondition
	Title   TitleCondition
	Runtime RuntimeCondition
}

func DomCond(c DomCondition) Condition       { return Condition{Kind: CondDom, Dom: c} }
func NetCond(c NetCondition) Condition       { return Condition{Kind: CondNet, Net: c} }
func UrlCond(c UrlCondition) Condition       { return Condition{Kind: CondUrl, Url: c} }
func TitleCond(c TitleCondition) Condition   { return Condition{Kind: CondTitle, Title: c} }
func RuntimeCond(c RuntimeCondition) Condition {
	return Condition{Kind: CondRuntime, Runtime: c}
}
func VisCond() Condition { return Condition{Kind: CondVis} }
func SemCond() Condition { return Condition{Kind: CondSem} }

// LocatorHint names keywords that, if found among candidate elements,
// suggest the action either failed (error indicators) or succeeded
// (success indicators) independent of the condition tree.
type LocatorHint struct {
	ErrorIndicators   []string
	SuccessIndicators []string
}

func (h LocatorHint) isEmpty() bool {
	return len(h.ErrorIndicators) == 0 && len(h.SuccessIndicators) == 0
}

// LocatorHintResult is the (currently placeholder) outcome of evaluating a
// LocatorHint against the page.
type LocatorHintResult struct {
	ErrorElements     []string
	SuccessElements   []string
	AppearsSuccessful bool
}

// ExpectSpec is the predicate tree a Gate Validator evaluates: all
// conditions AND together, any OR together (short-circuiting on the first
// pass), deny conditions must each fail.
type ExpectSpec struct {
	All         []Condition
	Any         []Condition
	Deny        []Condition
	TimeoutMs   int
	LocatorHint LocatorHint
}

func NewExpectSpec() ExpectSpec { return ExpectSpec{} }

func (s ExpectSpec) WithTimeout(ms int) ExpectSpec {
	s.TimeoutMs = ms
	return s
}

func (s ExpectSpec) WithAll(c Condition) ExpectSpec {
	s.All = append(s.All, c)
	return s
}

func (s ExpectSpec) WithAny(c Condition) ExpectSpec {
	s.Any = append(s.Any, c)
	return s
}

func (s ExpectSpec) WithDeny(c Condition) ExpectSpec {
	s.Deny = append(s.Deny, c)
	return s
}

func (s ExpectSpec) HasConditions() bool {
	return len(s.All) > 0 || len(s.Any) > 0 || len(s.Deny) > 0
}

func (s ExpectSpec) ConditionCount() int {
	return len(s.All) + len(s.Any) + len(s.Deny)
}

// ValidationContext carries the accumulated page signals a Gate Validator
// checks URL/title/runtime/network conditions against, without itself
// performing any I/O.
type ValidationContext struct {
	CurrentURL      *string
	CurrentTitle    *string
	DomMutations    int
	NetworkRequests int
	ConsoleMessages []string
	CustomSignals   map[string]any
}

func NewValidationContext() ValidationContext {
	return ValidationContext{CustomSignals: make(map[string]any)}
}

func (c *ValidationContext) AddSignal(name string, value any) {
	if c.CustomSignals == nil {
		c.CustomSignals = make(map[string]any)
	}
	c.CustomSignals[name] = value
}

// Evidence is one piece of snapshot data (DOM diff, screenshot reference,
// log excerpt) attached to a GateResult.
type Evidence struct {
	Kind    string
	Summary string
	Detail  string
}

// GateResult is what validating an ExpectSpec produces.
type GateResult struct {
	Passed           bool
	Reasons          []string
	Evidence         []Evidence
	LocatorHintResult *LocatorHintResult
	LatencyMs        uint64
}

func PassResult(reasons []string) GateResult {
	return GateResult{Passed: true, Reasons: reasons}
}

func FailResult(reasons []string) GateResult {
	return GateResult{Passed: false, Reasons: reasons}
}

func (r GateResult) WithEvidence(e Evidence) GateResult {
	r.Evidence = append(r.Evidence, e)
	return r
}

func (r GateResult) WithLocatorHint(h LocatorHintResult) GateResult {
	r.LocatorHintResult = &h
	return r
}

func (r GateResult) WithLatency(ms uint64) GateResult {
	r.LatencyMs = ms
	return r
}
