package postgis

import "strings"

// quoteIdent double-quotes a table name so dataset names coming from
// config can be interpolated where parameters are not allowed.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
