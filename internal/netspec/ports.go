package netspec

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePortList expands a comma-separated port specification like
// "22,80,110-120" into the concrete port sequence. Token order and duplicates
// are preserved; a reversed range ("9-5") expands to nothing, which is a
// boundary behavior rather than an error. A bare "-" token expands to every
// port from 1 through 65535. Any malformed token fails the whole operation.
func ParsePortList(spec string) ([]uint16, error) {
	var out []uint16
	for _, token := range strings.Split(spec, ",") {
		lo, hi, err := parsePortToken(token)
		if err != nil {
			return nil, err
		}
		for p := int(lo); p <= int(hi); p++ {
			out = append(out, uint16(p))
		}
	}
	return out, nil
}

func parsePortToken(token string) (lo, hi uint16, err error) {
	from, to, dashed := strings.Cut(token, "-")
	if !dashed {
		p, err := parsePort(token)
		return p, p, err
	}
	if from == "" && to == "" {
		return 1, 65535, nil
	}
	if lo, err = parsePort(from); err != nil {
		return 0, 0, err
	}
	if hi, err = parsePort(to); err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPortNumber, s)
	}
	return uint16(n), nil
}
