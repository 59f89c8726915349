// Package obslog provides a rate-limited wrapper around protocol.Logger,
// grounded on grafana-tempo's util.RateLimitedLogger pattern but keyed per
// message key instead of a single process-wide limiter, so one noisy
// partition's commit errors can't starve another bucket's logs.
package obslog
