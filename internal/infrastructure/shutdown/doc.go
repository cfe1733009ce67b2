// Package shutdown coordinates process-exit clean up.
//
// Go has no runtime shutdown hooks, so the command's main function owns a
// Manager, cancels its work on SIGINT/SIGTERM and then calls Run. Hooks are
// ordered by Priority: PriorityLate is reserved for consumers such as the
// temp storage service, which must run after everything else had a chance
// to use temp files.
package shutdown
