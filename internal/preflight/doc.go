// Package preflight provides system validation and pre-flight checks
// to ensure corvid can run successfully before starting operations.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Memory availability (minimum 1GB, checked against an estimate of
//     available memory rather than a measured value)
//   - Write permissions in the data directory
//   - File descriptor limits (minimum 1024)
//   - The ollama embedder, its default model, and disk space for a model
//     pull (reported as warnings, never as critical failures)
//
// Configuration is not validated here.
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, "/path/to/data-dir")
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
