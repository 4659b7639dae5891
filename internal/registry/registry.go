package registry

import (
	"context"
	"sync"
	"time"

	"github.com/soulbrowser/soulbrowser/internal/async"
	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/logging"
	"github.com/soulbrowser/soulbrowser/internal/statecenter"
)

type sessionEntry struct {
	mu  sync.RWMutex
	ctx SessionCtx
}

type pageEntry struct {
	mu  sync.RWMutex
	ctx PageCtx
}

type frameEntry struct {
	mu  sync.RWMutex
	ctx FrameCtx
}

// Registry is the in-memory session/page/frame store and route resolver.
// Lock ordering is always map-structure lock, then a single entry's own
// lock; entries are never locked while a map-structure lock from a
// different map is held, so cross-entity ops (frame_attached touching both
// a frame and its page) take one entry lock at a time.
type Registry struct {
	mapsMu   sync.RWMutex
	sessions map[core.SessionId]*sessionEntry
	pages    map[core.PageId]*pageEntry
	frames   map[core.FrameId]*frameEntry

	policy      *PolicyView
	stateCenter statecenter.StateCenter
	logger      *logging.ComponentLogger
}

// New builds an empty Registry. stateCenter may be statecenter.NoopStateCenter{}.
func New(policy *PolicyView, stateCenter statecenter.StateCenter, logger *logging.ComponentLogger) *Registry {
	if policy == nil {
		policy = NewPolicyView(DefaultPolicy())
	}
	return &Registry{
		sessions:    make(map[core.SessionId]*sessionEntry),
		pages:       make(map[core.PageId]*pageEntry),
		frames:      make(map[core.FrameId]*frameEntry),
		policy:      policy,
		stateCenter: stateCenter,
		logger:      logger,
	}
}

func (r *Registry) emitEvent(action statecenter.RegistryAction, session *core.SessionId, page *core.PageId, frame *core.FrameId, note string) {
	if r.stateCenter == nil {
		return
	}
	event := statecenter.NewRegistryEvent(action, session, page, frame, note)
	async.Go(r.logger, "registry-emit", func() {
		if err := r.stateCenter.Append(context.Background(), statecenter.RegistryStateEvent(event)); err != nil && r.logger != nil {
			r.logger.Warn("registry state center append failed: %v", err)
		}
	})
}

func (r *Registry) lookupSession(id core.SessionId) (*sessionEntry, bool) {
	r.mapsMu.RLock()
	defer r.mapsMu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

func (r *Registry) lookupPage(id core.PageId) (*pageEntry, bool) {
	r.mapsMu.RLock()
	defer r.mapsMu.RUnlock()
	e, ok := r.pages[id]
	return e, ok
}

func (r *Registry) lookupFrame(id core.FrameId) (*frameEntry, bool) {
	r.mapsMu.RLock()
	defer r.mapsMu.RUnlock()
	e, ok := r.frames[id]
	return e, ok
}

func (r *Registry) ensureSession(id core.SessionId) (*sessionEntry, error) {
	e, ok := r.lookupSession(id)
	if !ok {
		return nil, core.NotFound("session " + string(id))
	}
	return e, nil
}

func (r *Registry) ensurePage(id core.PageId) (*pageEntry, error) {
	e, ok := r.lookupPage(id)
	if !ok {
		return nil, core.NotFound("page " + string(id))
	}
	return e, nil
}

func (r *Registry) ensureFrame(id core.FrameId) (*frameEntry, error) {
	e, ok := r.lookupFrame(id)
	if !ok {
		return nil, core.NotFound("frame " + string(id))
	}
	return e, nil
}

// SessionCreate registers a new session with the given profile name.
func (r *Registry) SessionCreate(_ context.Context, profile string) (core.SessionId, error) {
	id := core.NewSessionId()
	now := time.Now()
	entry := &sessionEntry{ctx: SessionCtx{
		ID: id, ProfileName: profile, State: Init,
		CreatedAt: now, LastActiveAt: now,
	}}

	r.mapsMu.Lock()
	r.sessions[id] = entry
	r.mapsMu.Unlock()

	r.emitEvent(statecenter.SessionCreated, &id, nil, nil, profile)
	return id, nil
}

// PageOpen creates a new page (with an auto-created main frame) under
// session, failing with LimitReached if the policy forbids a second page
// on a session that already has one.
func (r *Registry) PageOpen(_ context.Context, session core.SessionId) (core.PageId, error) {
	if _, err := r.ensureSession(session); err != nil {
		return "", err
	}

	if !r.policy.Get().AllowMultiplePages {
		if r.sessionHasPage(session) {
			return "", core.LimitReached("session already has a page")
		}
	}

	pageID := core.NewPageId()
	frameID := core.NewFrameId()
	now := time.Now()

	frameEntryV := &frameEntry{ctx: FrameCtx{ID: frameID, Page: pageID, IsMain: true, State: Ready}}
	pageEntryV := &pageEntry{ctx: PageCtx{
		ID: pageID, Session: session,
		MainFrame: &frameID, FocusedFrame: &frameID,
		State: Ready, LastActiveAt: now,
	}}

	r.mapsMu.Lock()
	r.frames[frameID] = frameEntryV
	r.pages[pageID] = pageEntryV
	r.mapsMu.Unlock()

	if sessionE, ok := r.lookupSession(session); ok {
		sessionE.mu.Lock()
		if sessionE.ctx.FocusedPage == nil {
			pid := pageID
			sessionE.ctx.FocusedPage = &pid
		}
		sessionE.mu.Unlock()
	}

	r.emitEvent(statecenter.PageOpened, &session, &pageID, &frameID, "")
	return pageID, nil
}

func (r *Registry) sessionHasPage(session core.SessionId) bool {
	r.mapsMu.RLock()
	defer r.mapsMu.RUnlock()
	for _, p := range r.pages {
		p.mu.RLock()
		match := p.ctx.Session == session
		p.mu.RUnlock()
		if match {
			return true
		}
	}
	return false
}

// PageClose tears down a page, detaching all its frames and reassigning the
// owning session's focused page to the most recently active remaining page.
func (r *Registry) PageClose(_ context.Context, page core.PageId) error {
	pageE, err := r.ensurePage(page)
	if err != nil {
		return err
	}
	pageE.mu.Lock()
	session := pageE.ctx.Session
	pageE.ctx.State = Closing
	pageE.mu.Unlock()

	var orphaned []core.FrameId
	r.mapsMu.Lock()
	for id, f := range r.frames {
		f.mu.RLock()
		belongs := f.ctx.Page == page
		f.mu.RUnlock()
		if belongs {
			orphaned = append(orphaned, id)
		}
	}
	for _, id := range orphaned {
		delete(r.frames, id)
	}
	delete(r.pages, page)
	r.mapsMu.Unlock()

	if sessionE, ok := r.lookupSession(session); ok {
		sessionE.mu.Lock()
		if sessionE.ctx.FocusedPage != nil && *sessionE.ctx.FocusedPage == page {
			sessionE.ctx.FocusedPage = r.pickRecentPage(session, &page)
		}
		if sessionE.ctx.FocusedPage == nil {
			sessionE.ctx.State = Ready
		}
		sessionE.mu.Unlock()
	}

	r.emitEvent(statecenter.PageClosed, &session, &page, nil, "")
	return nil
}

func (r *Registry) pickRecentPage(session core.SessionId, exclude *core.PageId) *core.PageId {
	r.mapsMu.RLock()
	defer r.mapsMu.RUnlock()

	var selected *core.PageId
	var selectedAt time.Time
	for id, p := range r.pages {
		if exclude != nil && id == *exclude {
			continue
		}
		p.mu.RLock()
		sameSession := p.ctx.Session == session
		lastActive := p.ctx.LastActiveAt
		p.mu.RUnlock()
		if !sameSession {
			continue
		}
		if selected == nil || lastActive.After(selectedAt) {
			pid := id
			selected = &pid
			selectedAt = lastActive
		}
	}
	return selected
}

// PageFocus marks page as the focused page of its session, activating both.
func (r *Registry) PageFocus(_ context.Context, page core.PageId) error {
	pageE, err := r.ensurePage(page)
	if err != nil {
		return err
	}
	pageE.mu.Lock()
	pageE.ctx.State = Active
	pageE.ctx.LastActiveAt = time.Now()
	if pageE.ctx.FocusedFrame == nil {
		pageE.ctx.FocusedFrame = pageE.ctx.MainFrame
	}
	session := pageE.ctx.Session
	pageE.mu.Unlock()

	sessionE, err := r.ensureSession(session)
	if err != nil {
		return err
	}
	sessionE.mu.Lock()
	pid := page
	sessionE.ctx.FocusedPage = &pid
	sessionE.ctx.State = Active
	sessionE.mu.Unlock()

	r.emitEvent(statecenter.PageFocused, &session, &page, nil, "")
	return nil
}

// FrameAttached registers a new frame under page, optionally parented under
// an existing frame of the same page.
func (r *Registry) FrameAttached(_ context.Context, page core.PageId, parent *core.FrameId, isMain bool) (core.FrameId, error) {
	pageE, err := r.ensurePage(page)
	if err != nil {
		return "", err
	}

	if parent != nil {
		parentE, err := r.ensureFrame(*parent)
		if err != nil {
			return "", err
		}
		parentE.mu.RLock()
		parentPage := parentE.ctx.Page
		parentE.mu.RUnlock()
		if parentPage != page {
			return "", core.OwnershipConflict("parent frame not in page")
		}
	}

	frameID := core.NewFrameId()
	entry := &frameEntry{ctx: FrameCtx{ID: frameID, Page: page, Parent: parent, IsMain: isMain, State: Ready}}

	r.mapsMu.Lock()
	r.frames[frameID] = entry
	r.mapsMu.Unlock()

	if parent != nil {
		if parentE, ok := r.lookupFrame(*parent); ok {
			parentE.mu.Lock()
			parentE.ctx.Children = append(parentE.ctx.Children, frameID)
			parentE.mu.Unlock()
		}
	}

	pageE.mu.Lock()
	if isMain {
		fid := frameID
		pageE.ctx.MainFrame = &fid
	}
	if pageE.ctx.FocusedFrame == nil {
		if pageE.ctx.MainFrame != nil {
			pageE.ctx.FocusedFrame = pageE.ctx.MainFrame
		} else {
			fid := frameID
			pageE.ctx.FocusedFrame = &fid
		}
	}
	pageE.ctx.LastActiveAt = time.Now()
	session := pageE.ctx.Session
	pageE.mu.Unlock()

	r.emitEvent(statecenter.FrameAttached, &session, &page, &frameID, "")
	return frameID, nil
}

// FrameDetached removes frame and, recursively, every descendant, unlinking
// it from its parent's children list and fixing up page focus/main-frame
// bookkeeping.
func (r *Registry) FrameDetached(_ context.Context, frame core.FrameId) error {
	frameE, err := r.ensureFrame(frame)
	if err != nil {
		return err
	}
	frameE.mu.RLock()
	page := frameE.ctx.Page
	frameE.mu.RUnlock()

	r.removeFrameRecursive(frame)

	pageE, err := r.ensurePage(page)
	if err != nil {
		return err
	}
	pageE.mu.Lock()
	session := pageE.ctx.Session
	if pageE.ctx.MainFrame != nil && *pageE.ctx.MainFrame == frame {
		pageE.ctx.MainFrame = nil
	}
	if pageE.ctx.FocusedFrame != nil && *pageE.ctx.FocusedFrame == frame {
		pageE.ctx.FocusedFrame = pageE.ctx.MainFrame
		if pageE.ctx.FocusedFrame == nil {
			pageE.ctx.FocusedFrame = r.anyRemainingFrame(page)
		}
	}
	pageE.ctx.LastActiveAt = time.Now()
	pageE.mu.Unlock()

	r.emitEvent(statecenter.FrameDetached, &session, &page, &frame, "")
	return nil
}

func (r *Registry) removeFrameRecursive(frame core.FrameId) {
	r.mapsMu.Lock()
	entry, ok := r.frames[frame]
	if ok {
		delete(r.frames, frame)
	}
	r.mapsMu.Unlock()
	if !ok {
		return
	}

	entry.mu.RLock()
	parent := entry.ctx.Parent
	children := append([]core.FrameId(nil), entry.ctx.Children...)
	entry.mu.RUnlock()

	if parent != nil {
		if parentE, ok := r.lookupFrame(*parent); ok {
			parentE.mu.Lock()
			filtered := parentE.ctx.Children[:0]
			for _, c := range parentE.ctx.Children {
				if c != frame {
					filtered = append(filtered, c)
				}
			}
			parentE.ctx.Children = filtered
			parentE.mu.Unlock()
		}
	}

	for _, child := range children {
		r.removeFrameRecursive(child)
	}
}

func (r *Registry) anyRemainingFrame(page core.PageId) *core.FrameId {
	r.mapsMu.RLock()
	defer r.mapsMu.RUnlock()
	for id, f := range r.frames {
		f.mu.RLock()
		belongs := f.ctx.Page == page
		f.mu.RUnlock()
		if belongs {
			fid := id
			return &fid
		}
	}
	return nil
}

// FrameFocus marks frame as the focused frame of page, requiring it belong
// to that page, and propagates focus up to the session.
func (r *Registry) FrameFocus(_ context.Context, page core.PageId, frame core.FrameId) error {
	frameE, err := r.ensureFrame(frame)
	if err != nil {
		return err
	}
	frameE.mu.RLock()
	belongsTo := frameE.ctx.Page
	frameE.mu.RUnlock()
	if belongsTo != page {
		return core.OwnershipConflict("frame does not belong to page")
	}

	pageE, err := r.ensurePage(page)
	if err != nil {
		return err
	}
	pageE.mu.Lock()
	fid := frame
	pageE.ctx.FocusedFrame = &fid
	pageE.ctx.State = Active
	pageE.ctx.LastActiveAt = time.Now()
	session := pageE.ctx.Session
	pageE.mu.Unlock()

	sessionE, err := r.ensureSession(session)
	if err != nil {
		return err
	}
	sessionE.mu.Lock()
	pid := page
	sessionE.ctx.FocusedPage = &pid
	sessionE.ctx.State = Active
	sessionE.mu.Unlock()

	r.emitEvent(statecenter.FrameFocused, &session, &page, &frame, "")
	return nil
}

// RouteResolve is the sole route resolver: frame hint wins outright; else a
// page is resolved (from hint or session's focused page) and a frame chosen
// by preference; with no hint at all, the first session in iteration order
// is used.
func (r *Registry) RouteResolve(_ context.Context, hint *core.RoutingHint) (core.ExecRoute, error) {
	if hint != nil {
		if hint.Frame != nil {
			return r.routeForFrame(*hint.Frame)
		}
		if hint.Page != nil {
			return r.routeForPage(*hint.Page, hint.Prefer)
		}
		if hint.Session != nil {
			return r.routeForSession(*hint.Session, hint.Prefer)
		}
	}
	return r.routeDefault()
}

func (r *Registry) routeForFrame(frame core.FrameId) (core.ExecRoute, error) {
	frameE, err := r.ensureFrame(frame)
	if err != nil {
		return core.ExecRoute{}, err
	}
	frameE.mu.RLock()
	page := frameE.ctx.Page
	frameE.mu.RUnlock()

	pageE, err := r.ensurePage(page)
	if err != nil {
		return core.ExecRoute{}, err
	}
	pageE.mu.RLock()
	session := pageE.ctx.Session
	pageE.mu.RUnlock()

	return r.buildExecRoute(session, page, frame)
}

func (r *Registry) routeForPage(page core.PageId, prefer core.RoutePrefer) (core.ExecRoute, error) {
	pageE, err := r.ensurePage(page)
	if err != nil {
		return core.ExecRoute{}, err
	}
	pageE.mu.RLock()
	snapshot := pageE.ctx
	pageE.mu.RUnlock()

	frame := chooseFrame(snapshot, prefer)
	if frame == nil {
		return core.ExecRoute{}, core.NotFound("frame for page " + string(page))
	}
	return r.buildExecRoute(snapshot.Session, page, *frame)
}

func (r *Registry) routeForSession(session core.SessionId, prefer core.RoutePrefer) (core.ExecRoute, error) {
	sessionE, err := r.ensureSession(session)
	if err != nil {
		return core.ExecRoute{}, err
	}
	sessionE.mu.RLock()
	focused := sessionE.ctx.FocusedPage
	sessionE.mu.RUnlock()

	if focused != nil {
		return r.routeForPage(*focused, prefer)
	}

	candidate := r.firstPageForSession(session)
	if candidate == nil {
		return core.ExecRoute{}, core.NotFound("no pages for session " + string(session))
	}
	return r.routeForPage(*candidate, prefer)
}

func (r *Registry) firstPageForSession(session core.SessionId) *core.PageId {
	r.mapsMu.RLock()
	defer r.mapsMu.RUnlock()
	for id, p := range r.pages {
		p.mu.RLock()
		match := p.ctx.Session == session
		p.mu.RUnlock()
		if match {
			pid := id
			return &pid
		}
	}
	return nil
}

func (r *Registry) routeDefault() (core.ExecRoute, error) {
	r.mapsMu.RLock()
	var any *core.SessionId
	for id := range r.sessions {
		sid := id
		any = &sid
		break
	}
	r.mapsMu.RUnlock()
	if any == nil {
		return core.ExecRoute{}, core.NotFound("no sessions available")
	}
	return r.routeForSession(*any, core.PreferFocused)
}

func chooseFrame(page PageCtx, prefer core.RoutePrefer) *core.FrameId {
	switch prefer {
	case core.PreferMainFrame:
		if page.MainFrame != nil {
			return page.MainFrame
		}
		return page.FocusedFrame
	default: // PreferFocused, PreferRecentNav, and the zero value all fall back the same way.
		if page.FocusedFrame != nil {
			return page.FocusedFrame
		}
		return page.MainFrame
	}
}

func (r *Registry) buildExecRoute(session core.SessionId, page core.PageId, frame core.FrameId) (core.ExecRoute, error) {
	if _, ok := r.lookupSession(session); !ok {
		return core.ExecRoute{}, core.NotFound("route components missing")
	}
	if _, ok := r.lookupPage(page); !ok {
		return core.ExecRoute{}, core.NotFound("route components missing")
	}
	if _, ok := r.lookupFrame(frame); !ok {
		return core.ExecRoute{}, core.NotFound("route components missing")
	}
	return core.NewExecRoute(session, page, frame), nil
}

// SessionList returns a snapshot of every known session.
func (r *Registry) SessionList(_ context.Context) []SessionCtx {
	r.mapsMu.RLock()
	defer r.mapsMu.RUnlock()
	out := make([]SessionCtx, 0, len(r.sessions))
	for _, e := range r.sessions {
		e.mu.RLock()
		out = append(out, e.ctx)
		e.mu.RUnlock()
	}
	return out
}

// RecordPageActivity updates a page's Health bucket, the supplemented
// counterpart of the original's NetworkSnapshot-driven tracking.
func (r *Registry) RecordPageActivity(_ context.Context, page core.PageId, status HealthStatus) error {
	pageE, err := r.ensurePage(page)
	if err != nil {
		return err
	}
	pageE.mu.Lock()
	pageE.ctx.Health = Health{Status: status, LastUpdatedAt: time.Now()}
	if status != HealthIdle {
		pageE.ctx.LastActiveAt = time.Now()
	}
	session := pageE.ctx.Session
	pageE.mu.Unlock()

	r.emitEvent(statecenter.PageHealthUpdated, &session, &page, nil, status.String())
	return nil
}

// HealthProbeTick emits a housekeeping RegistryEvent independent of any
// mutating op. Callers (an external scheduler, not the registry itself)
// drive the cadence.
func (r *Registry) HealthProbeTick() {
	r.emitEvent(statecenter.HealthProbeTick, nil, nil, nil, "")
}

// UpdatePolicy swaps the live policy, e.g. from a config hot-reload.
func (r *Registry) UpdatePolicy(p Policy) {
	r.policy.Update(p)
}
