// Package main is the execcore command.
//
// execcore runs an external command with its stdout and stderr drained into
// spill buffers, which stay in memory until they outgrow the configured heap
// limit and then move to temp files. When the command ends it prints a
// report and, on request, persists either stream to a file.
//
// Configuration:
//   - Environment variables prefixed with EXECCORE_
//   - An optional TOML or YAML file (--config)
//   - CLI flags (override both)
//
// Usage:
//
//	# Capture a build and keep its log compressed
//	execcore run --out build.log.zst --compress zstd -- make all
//
//	# Give up after a minute, YAML report
//	execcore run --timeout 1m --format yaml -- ./long-task
//
//	# Remove temp directories left by crashed runs
//	execcore sweep --max-age 6h
//
// Signals:
//   - SIGINT, SIGTERM: interrupt the running command, then delete every
//     temp item before exiting
package main
