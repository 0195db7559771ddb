package db

import "time"

// Database connection constants.
const (
	// ConnectionRetrySleep is the sleep duration between connection retries.
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection.
	maxConnectionRetries = 10

	// sessionTimezone pins every session to the zone naive timestamps
	// are interpreted in.
	sessionTimezone = "Asia/Shanghai"
)

// Database pool default constants.
const (
	defaultMaxConns          int32         = 25
	defaultMinConns          int32         = 5
	defaultMaxConnIdleTime   time.Duration = 30 * time.Minute
	defaultMaxConnLifetime   time.Duration = time.Hour
	defaultHealthCheckPeriod time.Duration = time.Minute
)

// DedupStatsRetention bounds how long dedup run rows are kept.
const DedupStatsRetention = 10 * time.Hour
