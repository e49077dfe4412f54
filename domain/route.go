package domain

// RouteResult records the best-effort outcome of one fan-out.
type RouteResult struct {
	Delivered []string
	Missed    []string
	Persisted bool // true once the persistence task was accepted by the queue
}
