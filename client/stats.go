package client

import "time"

// PerformanceStats is a point-in-time snapshot of request counters. Values
// are read atomically but independently; under concurrent load the fields
// may not sum exactly.
type PerformanceStats struct {
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	CacheHits          int64         `json:"cache_hits"`
	ActiveRequests     int64         `json:"active_requests"`
	CacheSize          int           `json:"cache_size"`
	Uptime             time.Duration `json:"uptime"`
}

// Stats returns a snapshot of the client's performance counters.
func (c *Client) Stats() PerformanceStats {
	return PerformanceStats{
		TotalRequests:      c.totalRequests.Load(),
		SuccessfulRequests: c.successfulRequests.Load(),
		FailedRequests:     c.failedRequests.Load(),
		CacheHits:          c.cacheHits.Load(),
		ActiveRequests:     c.activeRequests.Load(),
		CacheSize:          c.cache.Size(),
		Uptime:             time.Since(c.startTime),
	}
}
