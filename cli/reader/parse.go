package reader

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/justapithecus/tankreplay/types"
)

// ParseIndex parses a timestep argument: a non-negative index, a negative
// offset from the end, or "latest" (-1).
func ParseIndex(arg string) (int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" || strings.EqualFold(arg, "latest") {
		return -1, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid timestep %q: want an index, a negative offset or \"latest\"", arg)
	}
	return n, nil
}

// FormatValue renders an attribute value for table output. Whole floats
// print without a fraction and non-finite placeholders print as "inf",
// "-inf" and "nan".
func FormatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return "-"
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	case string:
		switch n {
		case types.PositiveUnbounded:
			return "inf"
		case types.NegativeUnbounded:
			return "-inf"
		case types.NotANumber:
			return "nan"
		}
		return n
	case bool:
		return strconv.FormatBool(n)
	default:
		return fmt.Sprint(n)
	}
}

// FormatState renders an attribute bag as "k=v" pairs in key order.
func FormatState(s types.ObjectState) string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(FormatValue(s[k]))
	}
	return b.String()
}
