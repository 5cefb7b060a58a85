package endpoint

import (
	"strconv"
	"strings"
)

func itoa(n int) string { return strconv.Itoa(n) }

func trimScheme(eps []string) []string {
	out := make([]string, len(eps))
	for i, e := range eps {
		out[i] = strings.TrimPrefix(e, "tcp://")
	}
	return out
}
