package hcl_adapter

import (
	"path/filepath"

	"github.com/vk/mvnflow/internal/fingerprint"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Functions returns the expression functions available to a step running in
// workDir.
func (c *Converter) Functions(workDir string) map[string]function.Function {
	return map[string]function.Function{
		"coalesce":   stdlib.CoalesceFunc,
		"concat":     stdlib.ConcatFunc,
		"format":     stdlib.FormatFunc,
		"join":       stdlib.JoinFunc,
		"length":     stdlib.LengthFunc,
		"lower":      stdlib.LowerFunc,
		"replace":    stdlib.ReplaceFunc,
		"split":      stdlib.SplitFunc,
		"substr":     stdlib.SubstrFunc,
		"trimprefix": stdlib.TrimPrefixFunc,
		"trimsuffix": stdlib.TrimSuffixFunc,
		"trimspace":  stdlib.TrimSpaceFunc,
		"upper":      stdlib.UpperFunc,
		"hash_files": hashFilesFunc(workDir),
		"path_join":  pathJoinFunc,
	}
}

// hashFilesFunc fingerprints the files under workDir matching the given glob
// patterns.
func hashFilesFunc(workDir string) function.Function {
	return function.New(&function.Spec{
		Description: "Returns a content hash of every file matching the given patterns.",
		VarParam: &function.Parameter{
			Name: "patterns",
			Type: cty.String,
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			patterns := make([]string, 0, len(args))
			for _, a := range args {
				patterns = append(patterns, a.AsString())
			}
			sum, err := fingerprint.HashFiles(workDir, patterns...)
			if err != nil {
				return cty.UnknownVal(cty.String), err
			}
			return cty.StringVal(sum), nil
		},
	})
}

var pathJoinFunc = function.New(&function.Spec{
	Description: "Joins path elements with the host separator.",
	VarParam: &function.Parameter{
		Name: "elements",
		Type: cty.String,
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, a.AsString())
		}
		return cty.StringVal(filepath.Join(parts...)), nil
	},
})
