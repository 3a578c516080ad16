// Package feedback turns raw operator feedback about a finished run into a
// structured experience record and stages it to a remote collector.
package feedback
