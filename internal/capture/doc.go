// Package capture runs a command with both output streams captured into
// spill buffers and optionally persists them.
//
// Persisted streams are written, optionally gzip or zstd compressed, to a
// temp file beside the destination and then moved into place with
// tempstore's RenameOrCopy, so a destination is either absent or complete.
//
// Options.Digest adds a SHA-256 or BLAKE2b digest of each non-empty stream
// to the report.
//
// The Result must be disposed to release the buffers' spill files.
package capture
