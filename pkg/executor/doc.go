/*
Package executor runs generated step code against a persistent execution context.

One Executor belongs to one workflow run. It owns a session directory holding
step files (step_1.lua, step_2.lua, ...) and a single long-lived Lua state, so
globals defined by one step are visible to every later step. Output is teed to a
console writer while also being captured for the caller, and errors raised by
the code are rendered into the stderr text instead of being returned.

Other languages can be enabled through allow-listed Interpreters, which run each
step file as a separate process in the session directory.

Condense folds the pending step files into prior_code.<ext>, annotated with the
task, and deletes them. Close removes the session directory exactly once.
*/
package executor
