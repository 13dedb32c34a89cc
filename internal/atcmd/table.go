// Package atcmd holds AT command metadata used for diagnostics.
package atcmd

import "strings"

// defaultStringCommands lists commands whose parameter is text.
var defaultStringCommands = []string{"NI", "KY", "NK", "ZU", "ZV", "CC"}

// Table classifies AT commands as string or binary valued. The zero value
// classifies nothing as string valued.
type Table struct {
	stringValued map[string]struct{}
}

// NewTable returns the default table extended with extra string commands.
func NewTable(extra ...string) *Table {
	t := &Table{stringValued: make(map[string]struct{}, len(defaultStringCommands)+len(extra))}
	for _, cmd := range defaultStringCommands {
		t.stringValued[cmd] = struct{}{}
	}
	for _, cmd := range extra {
		cmd = normalize(cmd)
		if cmd == "" {
			continue
		}
		t.stringValued[cmd] = struct{}{}
	}

	return t
}

func (t *Table) IsStringValued(command string) bool {
	if t == nil || t.stringValued == nil {
		return false
	}
	_, ok := t.stringValued[normalize(command)]
	return ok
}

func normalize(command string) string {
	return strings.ToUpper(strings.TrimSpace(command))
}
