// Package observe provides structured logging and OpenTelemetry metrics
// for the collection engine.
package observe
