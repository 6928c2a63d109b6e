package script

import "strings"

// Placeholder tokens the model may use for characters that are awkward to
// transport inside a JSON string argument.
const (
	TokenDoubleQuote = "_esc_dquote_"
	TokenBackslash   = "_esc_backslash_"
	TokenNewline     = "_esc_newline_"
	TokenSingleQuote = "_esc_squote_"
)

var unescaper = strings.NewReplacer(
	TokenDoubleQuote, `"`,
	TokenBackslash, `\`,
	TokenNewline, "\n",
	TokenSingleQuote, "'",
)

// Unescape replaces every placeholder token in a single pass, so a
// replacement is never itself re-expanded.
func Unescape(src string) string {
	return unescaper.Replace(src)
}
