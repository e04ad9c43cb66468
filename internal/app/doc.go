// Package app wires a workflow run together: configuration, logging,
// storage backends, runners and the executor. It is decoupled from any
// specific entrypoint like a CLI or server.
package app
