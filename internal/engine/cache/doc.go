// Package cache stores flow listings on disk with a TTL.
//
// Listing every FlowDefinition in an org costs several Tooling API round trips,
// and the list command is often run repeatedly while working through a batch.
// Entries are JSON files named by a SHA-256 key derived from the org instance
// URL and the query, written atomically, and removed lazily once expired.
package cache
