// ABOUTME: Package dedupe documentation
// ABOUTME: Event deduplication for chat frontends

// Package dedupe drops events a homeserver delivers more than once.
package dedupe
