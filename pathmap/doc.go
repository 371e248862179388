// Package pathmap locates files with wildcard path patterns and maps them to
// destination paths.
//
// A pattern is a "/"-separated list of segments. In each segment "%" matches
// any run of characters and the matched text is captured. Parenthesised groups
// are passed through as regular expressions, so a pattern may embed its own
// capture groups:
//
//	p, err := pathmap.Compile("build/app-(\\d+)%.apk")
//	matches, err := pathmap.Locate(p, workingDir)
//	for _, m := range matches {
//	    dst, err := pathmap.Remap(m, "releases/$BUILD/$1$2.apk", map[string]string{"BUILD": "42"})
//	}
//
// Captures accumulate segment by segment, left to right. "$N" in a template
// refers to the N-th capture (1-based) and "$name" or "${name}" to a caller
// supplied parameter.
//
// The package performs no logging and opens no files.
package pathmap
