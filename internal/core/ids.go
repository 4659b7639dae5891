// Package core holds the leaf types shared by every other package:
// opaque identifiers, the ExecRoute routing primitive, and the error
// taxonomy used throughout the runtime.
package core

import "github.com/google/uuid"

// SessionId identifies a browser session. Opaque to consumers; equality is
// string equality.
type SessionId string

// PageId identifies a page owned by a session.
type PageId string

// FrameId identifies a frame owned by a page.
type FrameId string

// ActionId identifies one dispatched job in the scheduler.
type ActionId string

// TaskId identifies a top-level agent task that may own many actions.
type TaskId string

// NewSessionId mints a fresh v4 UUID wrapped as a SessionId.
func NewSessionId() SessionId { return SessionId(uuid.NewString()) }

// NewPageId mints a fresh v4 UUID wrapped as a PageId.
func NewPageId() PageId { return PageId(uuid.NewString()) }

// NewFrameId mints a fresh v4 UUID wrapped as a FrameId.
func NewFrameId() FrameId { return FrameId(uuid.NewString()) }

// NewActionId mints a fresh v4 UUID wrapped as an ActionId.
func NewActionId() ActionId { return ActionId(uuid.NewString()) }

// NewTaskId mints a fresh v4 UUID wrapped as a TaskId.
func NewTaskId() TaskId { return TaskId(uuid.NewString()) }
