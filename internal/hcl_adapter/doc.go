// Package hcl_adapter provides the concrete HCL implementation of the
// configuration Loader and Converter interfaces defined in the `config`
// package. It owns file discovery, HCL-to-model translation, the expression
// functions available to workflows, and cty-to-Go data binding for runner
// arguments.
package hcl_adapter
