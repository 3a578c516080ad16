// Package parse extracts structured fields from generated text.
//
// Generated responses carry loosely formed XML fragments and fenced code
// blocks. ToMap turns a fragment into nested maps, ExtractCode pulls the first
// fenced block, and Repairer asks a generator to fix fragments that do not parse.
package parse
