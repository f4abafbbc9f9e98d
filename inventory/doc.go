// Package inventory implements the resilient multi-account collection
// engine.
//
// A Collector fans one task per member account out over a bounded
// account-level pool. Each account task assumes a role, drains a
// paginated resource listing, then fans the returned items out over a
// second bounded pool for per-item detail and tag fetches. Every remote
// call goes through a circuit-breaker guard, so a failing control plane
// degrades to fast failures instead of a retry storm.
//
// Failures are isolated by level: a failed detail fetch drops that one
// item, a failed listing or role assumption fails that one account, and
// the collector itself always returns a Result with exactly one entry
// per submitted account. In-flight work is bounded by
// MaxAccountConcurrency x MaxResourceConcurrency regardless of how many
// resources the accounts hold.
package inventory
