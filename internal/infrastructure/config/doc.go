// Package config provides 12-factor configuration management for execcore.
//
// Configuration is loaded from environment variables with sensible defaults.
// An optional TOML or YAML file can be overlaid with LoadFile; values set in
// the file take precedence over the environment.
//
// Configuration Sections:
//   - Temp: temp root, directory name prefix, rename retry policy, orphan age and sweep rate
//   - Spill: spillover buffer heap limit and initial allocation
//   - Logging: log level and output format
//   - Metrics: Prometheus exposition
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("spilling to disk above %d bytes\n", cfg.Spill.HeapLimit)
//
// Environment Variables:
//   - EXECCORE_TEMP_ROOT, EXECCORE_TEMP_PREFIX
//   - EXECCORE_TEMP_RENAME_ATTEMPTS, EXECCORE_TEMP_RENAME_DELAY, EXECCORE_TEMP_ORPHAN_MAX_AGE
//   - EXECCORE_TEMP_SWEEP_RATE
//   - EXECCORE_SPILL_HEAP_LIMIT, EXECCORE_SPILL_INITIAL_HEAP_SIZE
//   - EXECCORE_LOGGING_LEVEL, EXECCORE_LOGGING_DEV
//   - EXECCORE_METRICS_ENABLED, EXECCORE_METRICS_ADDR
package config
