// Package vision keeps the most recent still frame of a room's video.
package vision

import (
	"sync"

	"github.com/knolabs/daela/pkg/frames"
)

// FrameCache locks onto the first video track that delivers a frame and
// holds only its latest frame.
type FrameCache struct {
	mu      sync.RWMutex
	trackID string
	latest  *frames.ImageFrame
}

func NewFrameCache() *FrameCache {
	return &FrameCache{}
}

// Offer stores f if it belongs to the tracked video track. The first
// offered frame picks the track. It returns false for ignored frames.
func (c *FrameCache) Offer(f frames.ImageFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	track := f.TrackID()
	if c.trackID == "" {
		c.trackID = track
	} else if track != c.trackID {
		return false
	}
	c.latest = &f
	return true
}

// Latest returns the frame held at call time.
func (c *FrameCache) Latest() (frames.ImageFrame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return frames.ImageFrame{}, false
	}
	return *c.latest, true
}

// TrackID returns the track the cache is subscribed to, if any.
func (c *FrameCache) TrackID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trackID
}
