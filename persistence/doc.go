// Package persistence provides the conversation turn store consumed by the
// gateway. The gateway invokes it detached (fire-and-forget) after the
// terminal chunk of every request; a failed write is logged by the caller
// and never surfaced to the peer.
//
// Supported backends:
//   - Memory: for development and testing (default)
//   - Redis: for distributed production deployments
//   - SQL: sqlite (pure Go) for single-node, postgres for shared deployments
package persistence
