package deleter

import (
	"math"
	"math/rand"
	"time"
)

func backoff(attempt int) time.Duration {
	base := 500 * time.Millisecond

	capDelay := 10 * time.Second
	// attempt=0 => 500ms
	// attempt=1 => 1s
	// attempt=2 => 2s

	multiple := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(base) * multiple)

	if delay > capDelay {
		delay = capDelay
	}

	// small jitter (0–100ms) to avoid hammering a recovering media host
	delay += time.Duration(rand.Intn(100)) * time.Millisecond
	return delay
}
