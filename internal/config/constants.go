package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Sync sessions that never completed are considered stale after this long.
const SyncSessionMaxAge = 1 * time.Hour

// Pairing attempt limit per peer address per minute.
const PairingAttemptsPerMin = 5

// How often the discovery poller probes known peer addresses.
const DiscoveryPollInterval = 10 * time.Second

// Timeout for a single HTTP call to a peer daemon.
const PeerRequestTimeout = 15 * time.Second
