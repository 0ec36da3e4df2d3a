// Package runtime hosts the Slate language runtime: the reader, the
// namespace/var registry, and a small tree-walking interpreter.
//
// The remote evaluation server consumes this package through two
// surfaces: the Evaluator capability (Evaluate a code string against a
// namespace, streaming printed output) and the Env registry, which the
// server's symbol resolution and completion queries read concurrently.
// Env and Namespace are safe for concurrent readers; evaluation
// serializes its own writes through the namespace locks.
package runtime
