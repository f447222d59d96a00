// Package title canonicalizes paper titles for exact-match comparison.
// Normalized titles are never displayed.
package title

import "strings"

// folder maps the unicode variants that show up in page-extracted titles to
// their plain ASCII equivalents. Deliberately conservative: anything beyond
// this fixed set risks false positive matches between distinct papers.
var folder = strings.NewReplacer(
	// zero-width characters and BOM
	"\u200B", "", "\u200C", "", "\u200D", "", "\uFEFF", "",
	// dash variants
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "−", "-",
	// single quote variants
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
	// double quote variants
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
)

// Normalize returns the canonical form of a raw title. Two titles refer to
// the same paper iff their normalized forms are byte-equal. Idempotent.
func Normalize(s string) string {
	s = folder.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}
