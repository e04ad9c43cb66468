// Package cli turns the mvnflow command line into an app.Config. It merges
// flags, the inputs file, the storage TOML file and MVNFLOW_* environment
// overrides, and reports usage problems as ExitError values with code 2.
package cli
