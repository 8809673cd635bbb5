package models

import "time"

// MetricsSnapshot is a lightweight summary of process metrics for the JSON metrics endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	PlacementsAccepted       uint64    `json:"placementsAccepted"`
	PlacementsRejected       uint64    `json:"placementsRejected"`
	CellAnomalies            uint64    `json:"cellAnomalies"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
