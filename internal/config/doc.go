// Package config defines the format-agnostic workflow model, along with the
// Loader interface for reading it from a concrete source.
//
// The `config.Model` is the single source of truth for the `dag` and
// `executor` packages. Expressions are kept unevaluated; they are resolved
// at execution time against the outputs of earlier steps and jobs.
package config
