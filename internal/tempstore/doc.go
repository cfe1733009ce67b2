// Package tempstore allocates temporary files and directories and owns their
// deletion.
//
// Every item handed out is registered with a monotonically increasing
// serial. Items are deleted explicitly with CleanUp, in bulk with
// CleanUpAll (creation order), or by the late shutdown hook the service
// registers on construction. Deletion is recursive and keeps going past
// individual failures, which are logged.
//
// CreateTempFile places each file in its own "<prefix>_<ULID>" directory so
// that whole directory is removed on clean up. The ULID makes the directory
// name sortable by creation time, which SweepOrphans uses to find leftovers
// from processes that never reached their shutdown hook.
//
// RenameOrCopy moves finished output to its final location, retrying the
// rename a few times before falling back to copy and delete.
//
// Example Usage:
//
//	store, err := tempstore.New(tempstore.DefaultConfig(), logger, metrics, hooks)
//	path, err := store.CreateTempFile(".log")
//	defer store.CleanUp(path)
package tempstore
