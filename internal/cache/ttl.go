package cache

import "time"

// TTL constants for the engine's in-memory stores.
const (
	// Scoring results (changes with every price tick)
	TTLPrediction = 5 * time.Minute // 5 minutes - keyed by item and price in cents

	// Market data
	TTLPriceHistory = time.Hour // 1 hour - last known price history per item
)
