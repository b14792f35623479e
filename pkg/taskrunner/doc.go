// Package taskrunner is the public entry point for executing taskscript documents. It
// loads the syntax tree and optional project manifest, links the document, and runs a
// component task through the evaluator. The `Executor` interface plus `Factory` and
// `Resolve` let CLI packages build collaborators once and tests swap in fakes.
package taskrunner
