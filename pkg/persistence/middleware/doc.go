// Package middleware wraps a ports.CheckpointStore with encryption at rest
// and secret redaction.
package middleware
