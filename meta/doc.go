// Package meta implements the routing core of the multi-drive contents
// backend.
//
// The package has three pieces:
//
//   - Registry: the mapping from drive identifiers to live contents
//     managers. The mapping is an immutable snapshot swapped atomically on
//     reconfiguration, so resolution never observes a half-applied
//     configuration. The default manager, bound to the empty identifier, is
//     created once and never evicted.
//
//   - Dispatch strategies: a small closed set of typed call wrappers, one per
//     operation argument shape (single path, path plus payload, two paths,
//     path plus checkpoint token). Each strategy splits the drive prefix off
//     the incoming path, resolves the owning manager, forwards the call with
//     the bare path, and re-prefixes any path fields in the result.
//
//   - Manager: the facade composing the registry and the dispatch strategies
//     behind the full contents-manager capability set. Callers address every
//     operation with drive-prefixed paths and never see individual backends.
package meta
