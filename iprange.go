package ratelimiter

import (
	"fmt"
	"net/netip"
	"strings"
)

// IPRange is an inclusive range of addresses of one family.
type IPRange struct {
	from, to netip.Addr
}

// ParseIPRange accepts a single address ("10.0.0.1"), a CIDR block
// ("10.0.0.0/8") or an inclusive range ("10.0.0.1-10.0.0.9").
func ParseIPRange(s string) (IPRange, error) {
	s = strings.TrimSpace(s)

	if from, to, ok := strings.Cut(s, "-"); ok {
		a, err := netip.ParseAddr(strings.TrimSpace(from))
		if err != nil {
			return IPRange{}, err
		}
		b, err := netip.ParseAddr(strings.TrimSpace(to))
		if err != nil {
			return IPRange{}, err
		}
		a, b = a.Unmap(), b.Unmap()
		if a.BitLen() != b.BitLen() {
			return IPRange{}, fmt.Errorf("range %q mixes address families", s)
		}
		if b.Less(a) {
			a, b = b, a
		}
		return IPRange{from: a, to: b}, nil
	}

	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return IPRange{}, err
		}
		p = p.Masked()
		return IPRange{from: p.Addr().Unmap(), to: lastAddr(p).Unmap()}, nil
	}

	a, err := netip.ParseAddr(s)
	if err != nil {
		return IPRange{}, err
	}
	a = a.Unmap()
	return IPRange{from: a, to: a}, nil
}

// Contains reports whether ip is inside the range. Unparseable input is
// never contained.
func (r IPRange) Contains(ip string) bool {
	a, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	a = a.Unmap()
	if a.BitLen() != r.from.BitLen() {
		return false
	}
	return !a.Less(r.from) && !r.to.Less(a)
}

func lastAddr(p netip.Prefix) netip.Addr {
	b := p.Addr().AsSlice()
	bits := p.Bits()
	for i := range b {
		remaining := bits - i*8
		switch {
		case remaining >= 8:
		case remaining <= 0:
			b[i] = 0xff
		default:
			b[i] |= 0xff >> remaining
		}
	}
	a, _ := netip.AddrFromSlice(b)
	return a
}

// IPSet is a list of ranges matched in order.
type IPSet []IPRange

// ParseIPSet parses every entry with ParseIPRange.
func ParseIPSet(entries []string) (IPSet, error) {
	set := make(IPSet, 0, len(entries))
	for _, e := range entries {
		r, err := ParseIPRange(e)
		if err != nil {
			return nil, fmt.Errorf("ip range %q: %w", e, err)
		}
		set = append(set, r)
	}
	return set, nil
}

// Contains reports whether any range contains ip.
func (s IPSet) Contains(ip string) bool {
	for _, r := range s {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}

// ContainsIP reports whether the range expression rangeExpr contains ip.
// A malformed expression contains nothing.
func ContainsIP(rangeExpr, ip string) bool {
	r, err := ParseIPRange(rangeExpr)
	if err != nil {
		return false
	}
	return r.Contains(ip)
}
