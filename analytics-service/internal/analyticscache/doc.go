// Package analyticscache memoises per-user analytics results.
//
// Entries are addressed by (owner, key) where key is derived from the query
// type and a canonical encoding of the query parameters, so equivalent
// parameter sets always share an entry and different owners never do. Entries
// expire at a fixed time; expired entries are never returned and are removed
// lazily on read or by a periodic sweep on backends without native expiry.
//
// The cache is an optimisation only: every backend failure is logged, counted
// and reported to the caller as a miss.
package analyticscache
