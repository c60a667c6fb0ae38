// Package interfaces defines the core types and interfaces shared across the
// multi-drive contents backend.
//
// The package contains:
//   - ContentsManager: the full filesystem-style capability set implemented by
//     every concrete backend (local disk, in-memory, S3, IPFS) and by the meta
//     manager facade that routes between them.
//   - ContentModel and Checkpoint: the data model exchanged with callers.
//   - ResourceSpec, Resource and DriveID: resource descriptors, their
//     registered form, and the deterministic drive identifier derived from a
//     backend connection URI.
//   - Sentinel errors used for routing rejections and backend failures.
//
// Keeping these definitions in a separate package avoids circular dependencies
// between the meta routing layer, the concrete backends, and the HTTP surface.
package interfaces
