package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/sourcegraph/conc"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

// EvidenceCollector gathers snapshot data to attach to a GateResult after
// conditions have been evaluated. Implementations must not fail the
// validation itself: a collector error becomes a lower-fidelity Evidence
// entry, never a GateError.
type EvidenceCollector interface {
	CollectAll(ctx context.Context, vctx ValidationContext, route core.ExecRoute) []Evidence
}

// DomSnapshotSource supplies the last known DOM snapshot for a route, used
// to render offline evidence (anchor preview, text diff) without a live
// CDP round-trip. Returns ("", false) when no snapshot is held.
type DomSnapshotSource interface {
	DomSnapshot(route core.ExecRoute) (html string, ok bool)
}

// DefaultEvidenceCollector fans probes for DOM/Network/URL/Title/Runtime
// signals out concurrently, matching the original's "evidence collection
// runs after conditions, across every signal kind" behavior. Each probe is
// panic-isolated via conc so one bad probe never drops the rest.
type DefaultEvidenceCollector struct {
	snapshots DomSnapshotSource

	mu sync.Mutex
	// previousDom, when set, is diffed against the current snapshot to
	// produce a DOM-change evidence entry.
	previousDom map[core.ExecRoute]string
}

func NewDefaultEvidenceCollector(snapshots DomSnapshotSource) *DefaultEvidenceCollector {
	return &DefaultEvidenceCollector{
		snapshots:   snapshots,
		previousDom: make(map[core.ExecRoute]string),
	}
}

func (c *DefaultEvidenceCollector) CollectAll(_ context.Context, vctx ValidationContext, route core.ExecRoute) []Evidence {
	var wg conc.WaitGroup
	results := make([]Evidence, 5)

	wg.Go(func() { results[0] = c.urlEvidence(vctx) })
	wg.Go(func() { results[1] = c.titleEvidence(vctx) })
	wg.Go(func() { results[2] = c.runtimeEvidence(vctx) })
	wg.Go(func() { results[3] = c.networkEvidence(vctx) })
	wg.Go(func() { results[4] = c.domEvidence(route) })
	wg.Wait()

	out := make([]Evidence, 0, len(results))
	for _, e := range results {
		if e.Kind != "" {
			out = append(out, e)
		}
	}
	return out
}

func (c *DefaultEvidenceCollector) urlEvidence(vctx ValidationContext) Evidence {
	if vctx.CurrentURL == nil {
		return Evidence{}
	}
	return Evidence{Kind: "url", Summary: *vctx.CurrentURL}
}

func (c *DefaultEvidenceCollector) titleEvidence(vctx ValidationContext) Evidence {
	if vctx.CurrentTitle == nil {
		return Evidence{}
	}
	return Evidence{Kind: "title", Summary: *vctx.CurrentTitle}
}

func (c *DefaultEvidenceCollector) runtimeEvidence(vctx ValidationContext) Evidence {
	if len(vctx.ConsoleMessages) == 0 {
		return Evidence{}
	}
	return Evidence{
		Kind:    "console",
		Summary: fmt.Sprintf("%d console message(s)", len(vctx.ConsoleMessages)),
		Detail:  strings.Join(vctx.ConsoleMessages, "\n"),
	}
}

func (c *DefaultEvidenceCollector) networkEvidence(vctx ValidationContext) Evidence {
	if vctx.NetworkRequests == 0 {
		return Evidence{}
	}
	return Evidence{Kind: "network", Summary: fmt.Sprintf("%d request(s) observed", vctx.NetworkRequests)}
}

// domEvidence renders an anchor-free preview of the page body (via
// goquery) and, if a previous snapshot for this route exists, a unified
// text diff (via go-diff) summarizing what changed.
func (c *DefaultEvidenceCollector) domEvidence(route core.ExecRoute) Evidence {
	if c.snapshots == nil {
		return Evidence{}
	}
	html, ok := c.snapshots.DomSnapshot(route)
	if !ok {
		return Evidence{}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Evidence{Kind: "dom", Summary: "snapshot unparsable"}
	}
	bodyText := strings.TrimSpace(doc.Find("body").Text())
	summary := bodyText
	if len(summary) > 200 {
		summary = summary[:200] + "..."
	}

	evidence := Evidence{Kind: "dom", Summary: summary}

	c.mu.Lock()
	previous, hadPrevious := c.previousDom[route]
	c.previousDom[route] = bodyText
	c.mu.Unlock()

	if hadPrevious && previous != bodyText {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(previous, bodyText, false)
		diffs = dmp.DiffCleanupSemantic(diffs)
		evidence.Detail = dmp.DiffPrettyText(diffs)
	}
	return evidence
}
