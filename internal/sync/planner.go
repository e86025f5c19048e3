package sync

import (
	"context"
	"time"

	"github.com/Martian-dev/mailpoll/internal/cursor"
	"github.com/Martian-dev/mailpoll/internal/mailstore"
)

const (
	// MaxFetchLimit caps the number of items processed per tick
	MaxFetchLimit = 50

	// FirstPollWindow bounds the first poll of an empty cursor
	FirstPollWindow = 10 * time.Minute
)

// ClampMaxFetch applies MaxFetchLimit; non-positive values select it
func ClampMaxFetch(n int) int {
	if n <= 0 || n > MaxFetchLimit {
		return MaxFetchLimit
	}
	return n
}

// Plan is the set of items selected for one tick
type Plan struct {
	Since time.Time
	Items []*mailstore.Item

	// Pending is the first surviving item left out by the fetch limit
	Pending *mailstore.Item

	// Skipped counts messages dropped by the dedup window or repeated
	// within the same query
	Skipped int
}

// Planner selects new items of a folder
type Planner struct {
	Store mailstore.Store
	Now   func() time.Time
}

// Plan queries folder from the cursor watermark and keeps at most maxFetch
// unseen messages, oldest first
func (p *Planner) Plan(ctx context.Context, c *cursor.Cursor, folder string, maxFetch int) (*Plan, error) {
	since := c.LastRunTime
	if since.IsZero() {
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		since = now().Add(-FirstPollWindow)
	}

	limit := ClampMaxFetch(maxFetch)
	plan := &Plan{Since: since}
	selected := make(map[string]struct{})

	for item, err := range p.Store.QueryFolder(ctx, folder, since) {
		if err != nil {
			return nil, err
		}
		if !item.IsMessage() || item.MessageID == "" {
			continue
		}
		if _, dup := selected[item.MessageID]; dup || c.Seen.Contains(item.MessageID) {
			plan.Skipped++
			continue
		}
		if len(plan.Items) == limit {
			plan.Pending = item
			break
		}
		selected[item.MessageID] = struct{}{}
		plan.Items = append(plan.Items, item)
	}

	return plan, nil
}

// Watermark returns the cursor time after processing the plan. It is the
// occurrence of the last processed item, held back to the receipt time of
// the pending item when the fetch limit truncated the batch.
func (p *Plan) Watermark() time.Time {
	if len(p.Items) == 0 {
		return time.Time{}
	}
	w := p.Items[len(p.Items)-1].Created
	if p.Pending != nil && p.Pending.Received.Before(w) {
		w = p.Pending.Received
	}
	return w
}
