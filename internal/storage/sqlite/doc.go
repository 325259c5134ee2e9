// Package sqlite persists tracking and event outputs. It is an adapter,
// not a domain layer: the tracking and event packages never import it,
// and the pipeline talks to it through its sink interface.
package sqlite
