package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/statecenter"
)

func newTestRegistry() *Registry {
	return New(NewPolicyView(DefaultPolicy()), statecenter.NoopStateCenter{}, nil)
}

func TestCreatesAndListsSessions(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	id, err := reg.SessionCreate(ctx, "default")
	require.NoError(t, err)

	sessions := reg.SessionList(ctx)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Equal(t, "default", sessions[0].ProfileName)
}

func TestRouteDefaultsToFocusedPage(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	session, err := reg.SessionCreate(ctx, "user")
	require.NoError(t, err)
	_, err = reg.PageOpen(ctx, session)
	require.NoError(t, err)
	pageB, err := reg.PageOpen(ctx, session)
	require.NoError(t, err)

	require.NoError(t, reg.PageFocus(ctx, pageB))

	route, err := reg.RouteResolve(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, session, route.Session)
	assert.Equal(t, pageB, route.Page)
}

func TestFrameFocusUpdatesRoute(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	session, err := reg.SessionCreate(ctx, "user")
	require.NoError(t, err)
	page, err := reg.PageOpen(ctx, session)
	require.NoError(t, err)

	frameID, err := reg.FrameAttached(ctx, page, nil, false)
	require.NoError(t, err)

	require.NoError(t, reg.FrameFocus(ctx, page, frameID))

	route, err := reg.RouteResolve(ctx, &core.RoutingHint{Page: &page})
	require.NoError(t, err)
	assert.Equal(t, frameID, route.Frame)
}

func TestFrameAttachRecordsParentChildAndDetach(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	session, err := reg.SessionCreate(ctx, "user")
	require.NoError(t, err)
	page, err := reg.PageOpen(ctx, session)
	require.NoError(t, err)

	pageE, _ := reg.lookupPage(page)
	pageE.mu.RLock()
	mainFrame := *pageE.ctx.MainFrame
	pageE.mu.RUnlock()

	child, err := reg.FrameAttached(ctx, page, &mainFrame, false)
	require.NoError(t, err)

	mainE, _ := reg.lookupFrame(mainFrame)
	mainE.mu.RLock()
	assert.Equal(t, []core.FrameId{child}, mainE.ctx.Children)
	mainE.mu.RUnlock()

	require.NoError(t, reg.FrameDetached(ctx, child))

	mainE, _ = reg.lookupFrame(mainFrame)
	mainE.mu.RLock()
	assert.Empty(t, mainE.ctx.Children)
	mainE.mu.RUnlock()

	_, ok := reg.lookupFrame(child)
	assert.False(t, ok)
}

func TestPageCloseReassignsFocus(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	session, err := reg.SessionCreate(ctx, "user")
	require.NoError(t, err)
	pageA, err := reg.PageOpen(ctx, session)
	require.NoError(t, err)
	pageB, err := reg.PageOpen(ctx, session)
	require.NoError(t, err)

	require.NoError(t, reg.PageFocus(ctx, pageB))
	require.NoError(t, reg.PageClose(ctx, pageB))

	route, err := reg.RouteResolve(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, pageA, route.Page)

	_, ok := reg.lookupPage(pageB)
	assert.False(t, ok)
}

func TestFrameDetachFallsBackToRemaining(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	session, err := reg.SessionCreate(ctx, "user")
	require.NoError(t, err)
	page, err := reg.PageOpen(ctx, session)
	require.NoError(t, err)

	pageE, _ := reg.lookupPage(page)
	pageE.mu.RLock()
	mainFrame := *pageE.ctx.MainFrame
	pageE.mu.RUnlock()

	child, err := reg.FrameAttached(ctx, page, &mainFrame, false)
	require.NoError(t, err)
	require.NoError(t, reg.FrameFocus(ctx, page, child))

	require.NoError(t, reg.FrameDetached(ctx, child))

	route, err := reg.RouteResolve(ctx, &core.RoutingHint{Page: &page})
	require.NoError(t, err)
	assert.Equal(t, mainFrame, route.Frame)
}

func TestClosingLastPageReturnsNotFoundOnRoute(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	session, err := reg.SessionCreate(ctx, "user")
	require.NoError(t, err)
	page, err := reg.PageOpen(ctx, session)
	require.NoError(t, err)

	require.NoError(t, reg.PageClose(ctx, page))

	_, err = reg.RouteResolve(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestPageOpenRespectsAllowMultiplePagesPolicy(t *testing.T) {
	ctx := context.Background()
	reg := New(NewPolicyView(Policy{AllowMultiplePages: false}), statecenter.NoopStateCenter{}, nil)

	session, err := reg.SessionCreate(ctx, "user")
	require.NoError(t, err)
	_, err = reg.PageOpen(ctx, session)
	require.NoError(t, err)

	_, err = reg.PageOpen(ctx, session)
	require.Error(t, err)
	assert.Equal(t, core.KindLimitReached, core.KindOf(err))
}

func TestFrameAttachedRejectsParentFromOtherPage(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	session, err := reg.SessionCreate(ctx, "user")
	require.NoError(t, err)
	pageA, err := reg.PageOpen(ctx, session)
	require.NoError(t, err)
	pageB, err := reg.PageOpen(ctx, session)
	require.NoError(t, err)

	pageAE, _ := reg.lookupPage(pageA)
	pageAE.mu.RLock()
	mainOfA := *pageAE.ctx.MainFrame
	pageAE.mu.RUnlock()

	_, err = reg.FrameAttached(ctx, pageB, &mainOfA, false)
	require.Error(t, err)
	assert.Equal(t, core.KindOwnershipConflict, core.KindOf(err))
}

func TestRecordPageActivityUpdatesHealth(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	session, err := reg.SessionCreate(ctx, "user")
	require.NoError(t, err)
	page, err := reg.PageOpen(ctx, session)
	require.NoError(t, err)

	require.NoError(t, reg.RecordPageActivity(ctx, page, HealthDegraded))

	pageE, _ := reg.lookupPage(page)
	pageE.mu.RLock()
	defer pageE.mu.RUnlock()
	assert.Equal(t, HealthDegraded, pageE.ctx.Health.Status)
}
