// Package contents provides the concrete storage backends behind the
// multi-drive facade.
//
// Each backend implements interfaces.ContentsManager against one storage
// resource. Backends are constructed from connection URIs by the Factory; the
// URI scheme selects the implementation:
//
//   - file:// and osfs:// - local filesystem
//   - mem:// - in-memory storage, used mostly in tests
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS mutable files (MFS) over the HTTP API
//
// Backends never see drive identifiers; they operate on paths relative to
// their own root. Routing between backends is the meta package's job.
package contents
