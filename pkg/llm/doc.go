// Package llm dispatches text-generation requests.
//
// A Generator produces one completion for a Request. The Dispatcher fans a
// request out to n concurrent completions, applying a shared rate limit and
// retrying transient failures with exponential backoff.
package llm
