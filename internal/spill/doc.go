// Package spill provides a two-tier write buffer for output of unknown size.
//
// Bytes are kept in memory until the next write would exceed the heap limit
// (8 MiB by default). At that point the buffered bytes are copied into a temp
// file obtained from a FileAllocator and every later write goes to the file.
// The migration happens at most once.
//
// After Close the content can be replayed any number of times through
// Reader. Dispose releases memory and deletes the spill file.
//
// Example Usage:
//
//	buf := spill.New(store, spill.WithHeapLimit(cfg.Spill.HeapLimit))
//	io.Copy(buf, src)
//	buf.Close()
//	r, _ := buf.Reader()
//	defer buf.Dispose()
package spill
