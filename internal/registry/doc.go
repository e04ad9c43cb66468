// Package registry provides the central "glue" for the module system.
//
// The Registry maps the runner names used in workflow files (the `uses`
// attribute of a step, e.g. "maven" or "cache_restore") to the compiled Go
// functions that implement them, together with the input struct each runner
// decodes its `arguments` block into.
//
// During application startup the registry is populated by every module and
// the loaded workflow is validated against it, so a misspelt runner or
// argument fails before any job starts.
package registry
