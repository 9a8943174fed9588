// Package executor decides how embedding work runs.
//
// Direct embeds synchronously against the repository and is used with the
// embedded SQLite engine. Queued submits a job per request and is used with
// the graph engine, whose worker later runs the same Direct code through the
// handlers installed by RegisterCommands.
package executor
