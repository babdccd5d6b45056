package observe

import (
	"context"
	"sync/atomic"
)

// TimelineCapture receives the timeline of the next call made with its context.
type TimelineCapture struct {
	tl atomic.Pointer[Timeline]
}

// Timeline returns the captured timeline, or nil until the call completes.
func (c *TimelineCapture) Timeline() *Timeline {
	if c == nil {
		return nil
	}
	return c.tl.Load()
}

type timelineCaptureKey struct{}

// RecordTimeline returns a derived context that requests timeline capture,
// plus the holder the finished timeline is published to.
func RecordTimeline(ctx context.Context) (context.Context, *TimelineCapture) {
	if ctx == nil {
		ctx = context.Background()
	}
	capture := &TimelineCapture{}
	return context.WithValue(ctx, timelineCaptureKey{}, capture), capture
}

// TimelineCaptureFromContext returns the capture requested on ctx, if any.
func TimelineCaptureFromContext(ctx context.Context) (*TimelineCapture, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(timelineCaptureKey{}).(*TimelineCapture)
	return c, ok && c != nil
}

// WithoutTimelineCapture hides any capture from ctx so nested calls made by the
// host do not overwrite the outer call's timeline.
func WithoutTimelineCapture(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, timelineCaptureKey{}, (*TimelineCapture)(nil))
}

// StoreTimelineCapture publishes tl into capture.
func StoreTimelineCapture(capture *TimelineCapture, tl *Timeline) {
	if capture == nil || tl == nil {
		return
	}
	capture.tl.Store(tl)
}
