package health

import "time"

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    "unhealthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    "degraded",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate creates a status by aggregating sub-statuses.
// The aggregation rules are:
//   - All sub-statuses healthy: aggregate is healthy
//   - Any sub-status unhealthy: aggregate is unhealthy
//   - Otherwise (some degraded): aggregate is degraded
func Aggregate(component string, subs ...Status) Status {
	agg := Status{
		Component:   component,
		Timestamp:   time.Now(),
		SubStatuses: subs,
	}

	unhealthy := 0
	degraded := 0
	for _, s := range subs {
		switch {
		case s.IsUnhealthy():
			unhealthy++
		case s.IsDegraded():
			degraded++
		}
	}

	switch {
	case unhealthy > 0:
		agg.Status = "unhealthy"
		agg.Message = "one or more components unhealthy"
	case degraded > 0:
		agg.Status = "degraded"
		agg.Message = "one or more components degraded"
	default:
		agg.Status = "healthy"
		agg.Healthy = true
		agg.Message = "all components healthy"
	}

	return agg
}
