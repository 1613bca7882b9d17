package recipe

import (
	"strconv"
	"strings"
)

// FullVersion is "<version>-<revision>".
func (r *Recipe) FullVersion() string { return r.Version + "-" + r.Revision }

// CompareVersions orders two version strings. Dotted parts compare
// numerically when both are numbers and lexically otherwise; missing parts
// count as "0". A "~suffix" sorts before the bare version and a "+suffix"
// after it.
func CompareVersions(a, b string) int {
	aBase, aPre, aPost := splitVersion(a)
	bBase, bPre, bPost := splitVersion(b)
	if c := compareDotted(aBase, bBase); c != 0 {
		return c
	}
	if aPre != bPre {
		switch {
		case aPre == "":
			return 1
		case bPre == "":
			return -1
		}
		if c := compareDotted(aPre, bPre); c != 0 {
			return c
		}
	}
	return compareDotted(aPost, bPost)
}

func splitVersion(v string) (base, pre, post string) {
	base = v
	if i := strings.IndexByte(base, '+'); i >= 0 {
		base, post = base[:i], base[i+1:]
	}
	if i := strings.IndexByte(base, '~'); i >= 0 {
		base, pre = base[:i], base[i+1:]
	}
	return base, pre, post
}

func compareDotted(a, b string) int {
	if a == b {
		return 0
	}
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := max(len(as), len(bs))
	for i := 0; i < n; i++ {
		av, bv := "0", "0"
		if i < len(as) && as[i] != "" {
			av = as[i]
		}
		if i < len(bs) && bs[i] != "" {
			bv = bs[i]
		}

		// Try numeric compare
		ai, aerr := strconv.Atoi(av)
		bi, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if ai < bi {
				return -1
			}
			if ai > bi {
				return 1
			}
			continue
		}
		// Fallback string compare
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// CompareFullVersions compares "<version>-<revision>" strings, splitting at
// the last dash.
func CompareFullVersions(a, b string) int {
	av, ar := splitRevision(a)
	bv, br := splitRevision(b)
	if c := CompareVersions(av, bv); c != 0 {
		return c
	}
	return compareDotted(ar, br)
}

func splitRevision(v string) (string, string) {
	if i := strings.LastIndexByte(v, '-'); i >= 0 {
		return v[:i], v[i+1:]
	}
	return v, "0"
}
