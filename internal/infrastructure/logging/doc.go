// Package logging provides structured logging using uber/zap.
//
// Two modes are offered:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Logs go to stderr by default so that captured child output written to
// stdout by the execcore command stays clean.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	if err != nil {
//		return err
//	}
//	logger = logger.Named("tempstore")
//	logger.Info("temp item registered", zap.String("path", dir))
//	logger.Error("delete failed", zap.Error(err))
package logging
