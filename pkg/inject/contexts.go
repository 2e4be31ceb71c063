// Package inject implements the context enumerator (component B) and the
// injection primitives (component C) the detection state machine is built
// on: raw inject, framed render, and the evaluate/execute (+blind) capability
// adapters.
package inject

import (
	"sort"
	"strings"

	"github.com/sstimap/sstimap-go/pkg/channel"
	"github.com/sstimap/sstimap-go/pkg/registry"
)

// Triple is one syntactic escape recipe yielded by context enumeration.
type Triple struct {
	Prefix  string
	Suffix  string
	Wrapper string
}

// Enumerate walks a plugin's declared contexts in order and yields every
// (prefix, suffix, wrapper) triple surviving the user's level (or forced
// level) and the context's closure expansion. Order is deterministic:
// declared context order, then wrapper order, then closure order
// (shortest closure first).
func Enumerate(contexts []registry.ContextDescriptor, args channel.Args) []Triple {
	forcedCtxLevel, ctxForced := args.ForcedContextLevel()
	var out []Triple
	for _, ctx := range contexts {
		if ctxForced {
			if ctx.Level != forcedCtxLevel {
				continue
			}
		} else if ctx.Level > args.Level {
			continue
		}

		prefix := ctx.Prefix
		if prefix == "" {
			prefix = "{closure}"
		}
		wrappers := ctx.Wrappers
		if len(wrappers) == 0 {
			wrappers = []string{"{code}"}
		}

		var closures []string
		if len(ctx.Closures) > 0 {
			closures = expandClosures(ctx.Closures, args)
		} else {
			closures = []string{""}
		}

		for _, wrapper := range wrappers {
			for _, closure := range closures {
				out = append(out, Triple{
					Prefix:  strings.ReplaceAll(prefix, "{closure}", closure),
					Suffix:  ctx.Suffix,
					Wrapper: wrapper,
				})
			}
		}
	}
	return out
}

// expandClosures realizes component B.1: keep only the closure-level
// matrices permitted by the user's level (or forced closure level), take
// the Cartesian product of every kept matrix's rows, join each tuple into a
// candidate string, deduplicate, and sort ascending by length.
func expandClosures(matrix map[int][][]string, args channel.Args) []string {
	forcedClosureLevel, closureForced := args.ForcedClosureLevel()

	levels := make([]int, 0, len(matrix))
	for level := range matrix {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	seen := make(map[string]struct{})
	var closures []string
	for _, level := range levels {
		rows := matrix[level]
		if closureForced {
			if level != forcedClosureLevel {
				continue
			}
		} else if level > args.Level {
			continue
		}
		for _, combo := range product(rows) {
			s := strings.Join(combo, "")
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			closures = append(closures, s)
		}
	}
	sort.SliceStable(closures, func(i, j int) bool {
		return len(closures[i]) < len(closures[j])
	})
	return closures
}

// product computes the Cartesian product of a matrix of alternative string
// lists, e.g. product([["a","b"],["x"]]) == [["a","x"],["b","x"]].
func product(rows [][]string) [][]string {
	if len(rows) == 0 {
		return nil
	}
	result := [][]string{{}}
	for _, row := range rows {
		var next [][]string
		for _, prefix := range result {
			for _, item := range row {
				combo := make([]string, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				combo = append(combo, item)
				next = append(next, combo)
			}
		}
		result = next
	}
	return result
}
