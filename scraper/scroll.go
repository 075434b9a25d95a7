package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
)

// scrollPause lets lazy-loaded listings start their requests between steps.
const scrollPause = 250 * time.Millisecond

// scrollViewports scrolls down one viewport height per step.
func scrollViewports(ctx context.Context, p *rod.Page, steps int) error {
	if steps <= 0 {
		return nil
	}

	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("failed to get viewport height: %w", err)
	}
	viewportHeight := res.Value.Int()
	if viewportHeight <= 0 {
		return nil
	}

	for i := 0; i < steps; i++ {
		if err := p.Mouse.Scroll(0, float64(viewportHeight), 0); err != nil {
			return fmt.Errorf("scroll step %d failed: %w", i, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(scrollPause):
		}
	}
	return nil
}
