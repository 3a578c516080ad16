// Package prompt resolves and renders the prompt templates of each state.
//
// A Template is keyed by a hierarchical state path. Stores resolve templates;
// the Renderer interpolates them with text/template, failing on any variable
// the caller did not supply.
package prompt
