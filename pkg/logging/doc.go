// Package logging provides structured logging configuration for the
// control-plane server.
//
// This package wraps log/slog to provide consistent logging across all
// server components. It supports configurable log levels, output formats,
// and an optional log file that receives a JSON copy of every record.
//
// # Usage
//
// Create a logger with desired configuration:
//
//	logger, err := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("server started", "port", 8124)
//	logger.Error("failed to accept connection", "error", err)
//
// # Log Levels
//
// Four log levels are supported:
//   - Debug: Detailed information for debugging
//   - Info: General operational information
//   - Warn: Warning conditions that should be addressed
//   - Error: Error conditions that need attention
//
// # Output Formats
//
//   - Text: Human-readable format for development
//   - JSON: Structured format for log aggregation systems
//
// # Integration
//
// Components accept a *slog.Logger in their constructor or via a setter.
// If no logger is provided, use logging.Nop() for a no-op logger.
package logging
