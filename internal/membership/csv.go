package membership

import (
	"strings"
)

// FormatRow renders a record as one ledger line terminated by "\n".
//
// Without escaping, fields are joined verbatim; a comma inside a field shifts
// the columns of that row. With escaping, a field containing a comma, a
// double quote or a line break is wrapped in double quotes with inner quotes
// doubled. Every other field is written as it is.
func FormatRow(r MemberRecord, escape bool) (string, error) {
	fields := r.Fields()
	if escape {
		for i, f := range fields {
			fields[i] = quoteField(f)
		}
	}
	return strings.Join(fields, ",") + "\n", nil
}

func quoteField(f string) string {
	if !strings.ContainsAny(f, ",\"\r\n") {
		return f
	}
	return `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
}

// appendRow adds row after content, inserting a line break if the stored
// content does not end with one.
func appendRow(content []byte, row string) []byte {
	out := make([]byte, 0, len(content)+len(row)+1)
	out = append(out, content...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return append(out, row...)
}
