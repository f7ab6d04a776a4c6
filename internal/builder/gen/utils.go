package gen

import (
	"maps"
	"slices"
	"strings"
)

func write(sb *strings.Builder, s ...string) {
	for _, str := range s {
		sb.WriteString(str)
	}
}

func writeln(sb *strings.Builder, s ...string) {
	write(sb, s...)
	sb.WriteByte('\n')
}

// sortedUnits returns units ordered by key so generated files are stable
func sortedUnits(units map[string]Unit) []Unit {
	res := make([]Unit, 0, len(units))
	for _, key := range slices.Sorted(maps.Keys(units)) {
		res = append(res, units[key])
	}
	return res
}
