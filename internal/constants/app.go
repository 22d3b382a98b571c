// Package constants holds the tunables shared across ragdesk packages.
package constants

import (
	"time"
)

// Progress bands
const (
	// TransferBandCeiling - displayed percentage reached when the network transfer
	// of a file completes. Backend ingestion fills the remaining band up to 100.
	TransferBandCeiling = 80

	// MaxPercent - upper bound of every displayed percentage
	MaxPercent = 100
)

// Ingestion polling
const (
	// DefaultPollInterval - period between /progress requests (600ms)
	DefaultPollInterval = 600 * time.Millisecond

	// MinPollInterval / MaxPollInterval bound the configurable interval
	MinPollInterval = 100 * time.Millisecond
	MaxPollInterval = 30 * time.Second

	// DefaultPollMaxDuration - budget after which a poller gives up and the batch fails
	DefaultPollMaxDuration = 10 * time.Minute

	// DefaultSettleDelay - pause between "done" and clearing the batch, so the
	// completed state is visible before the list refresh
	DefaultSettleDelay = 800 * time.Millisecond
)

// Upload retries
const (
	// DefaultUploadRetries - attempts per file transfer (first attempt included)
	DefaultUploadRetries = 3

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	RetryMaxDelay = 15 * time.Second
)

// Upload concurrency
const (
	// MaxBaselineUploads - cap on the CPU-derived default (2 per core)
	MaxBaselineUploads = 8

	// AbsoluteMaxUploads - hard ceiling on parallel transfers, even with a user override
	AbsoluteMaxUploads = 32

	// MinUploads - a batch always makes progress on at least one file
	MinUploads = 1
)

// API client
const (
	// DefaultAPIRetryMax - retries retryablehttp performs on JSON endpoints
	DefaultAPIRetryMax = 3

	// APIRetryWaitMin / APIRetryWaitMax bound retryablehttp backoff
	APIRetryWaitMin = 500 * time.Millisecond
	APIRetryWaitMax = 5 * time.Second

	// DefaultRatePerSec - sustained request rate for JSON endpoints
	DefaultRatePerSec = 20.0

	// DefaultBurst - token bucket capacity for JSON endpoints
	DefaultBurst = 40.0

	// APIContextTimeout - default timeout for a single JSON API call
	APIContextTimeout = 30 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// UI Updates
const (
	// ProgressRefreshRate - mpb redraw period for batch bars
	ProgressRefreshRate = 150 * time.Millisecond
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30 seconds)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for HTTP 100-continue (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - TCP connect timeout
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - TCP keep-alive period
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPResponseHeaderTimeout - how long to wait for response headers once the
	// request body is fully written
	HTTPResponseHeaderTimeout = 5 * time.Minute
)
