package version

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/coreos/go-semver/semver"
)

// coreRegexp matches the exact grammar this spec accepts: an optional "v"
// prefix, three dot-separated non-negative integers, and an optional
// dash-delimited pre-release suffix.
var coreRegexp = regexp.MustCompile(`^v?(\d+\.\d+\.\d+)(-[A-Za-z0-9.]+)?$`)

// Version is a semantically-comparable package version. The zero value is
// Empty: it renders as "-" and compares strictly less than any parsed
// version. Equality and ordering delegate their numeric and pre-release
// comparison to coreos/go-semver; this type layers on top the Empty
// sentinel, v-prefix retention for display, and the exact normalization
// rules this spec requires (go-semver itself has no notion of any of
// these and is never exposed through this package's public API).
type Version struct {
	empty      bool
	parsed     bool // true once a non-Empty version was successfully parsed
	malformed  bool // true when Empty resulted from unparseable input, not a recognized empty token
	hasVPrefix bool
	sem        semver.Version
}

// Empty is the sentinel "no version" value, produced from "", "unknown", or "-".
var Empty = Version{empty: true}

// Parse converts a string into a Version following §4.2's normalization
// rules: whitespace is trimmed; "", "unknown", "-" normalize to Empty;
// any other input that doesn't match the grammar normalizes to Empty with
// IsValid()==false.
func Parse(s string) Version {
	s = strings.TrimSpace(s)
	if s == "" || s == "unknown" || s == "-" {
		return Empty
	}

	m := coreRegexp.FindStringSubmatch(s)
	if m == nil {
		return Version{empty: true, malformed: true}
	}

	hasV := strings.HasPrefix(s, "v")
	core := m[1] + m[2]
	sem, err := semver.NewVersion(core)
	if err != nil {
		return Version{empty: true, malformed: true}
	}

	return Version{hasVPrefix: hasV, parsed: true, sem: *sem}
}

// ParseTag parses a Git tag's friendly name into a Version. Unlike Parse it
// also tolerates a "ver" prefix (e.g. "ver1.2.3"), which appears in tag
// names but is never round-tripped by String(): a tag parsed this way
// prints as the bare core version.
func ParseTag(tagName string) Version {
	if v := Parse(tagName); v.parsed {
		return v
	}
	if rest, ok := strings.CutPrefix(tagName, "ver"); ok {
		return Parse(rest)
	}
	return Version{empty: true, malformed: true}
}

// IsEmpty reports whether v is the Empty sentinel or failed to parse.
func (v Version) IsEmpty() bool {
	return !v.parsed
}

// IsValid reports whether v was produced from well-formed input: a parsed
// version, or one of the recognized empty tokens ("", "unknown", "-").
// Genuinely malformed input reports false.
func (v Version) IsValid() bool {
	return !v.malformed
}

// Major, Minor, Patch, and PreRelease expose the parsed components. They
// are zero values on Empty.
func (v Version) Major() int64        { return v.sem.Major }
func (v Version) Minor() int64        { return v.sem.Minor }
func (v Version) Patch() int64        { return v.sem.Patch }
func (v Version) PreRelease() string  { return string(v.sem.PreRelease) }
func (v Version) HasVPrefix() bool    { return v.hasVPrefix }

// Compare returns -1, 0, or 1 per §3's ordering: Empty sorts strictly below
// every non-Empty version; otherwise ordering follows (major, minor,
// patch) then pre-release rules, matching go-semver's own Compare.
func (v Version) Compare(other Version) int {
	switch {
	case v.IsEmpty() && other.IsEmpty():
		return 0
	case v.IsEmpty():
		return -1
	case other.IsEmpty():
		return 1
	default:
		return v.sem.Compare(other.sem)
	}
}

// Equal reports semantic equality: "v1.2.3" == "1.2.3".
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// LessThan reports v < other under the §3 ordering.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// GreaterThan reports v > other under the §3 ordering.
func (v Version) GreaterThan(other Version) bool { return v.Compare(other) > 0 }

// String renders "-" for Empty, otherwise the original v-prefix convention
// followed by the core version and any pre-release suffix.
func (v Version) String() string {
	if v.IsEmpty() {
		return "-"
	}
	core := fmt.Sprintf("%d.%d.%d", v.sem.Major, v.sem.Minor, v.sem.Patch)
	if v.sem.PreRelease != "" {
		core += "-" + string(v.sem.PreRelease)
	}
	if v.hasVPrefix {
		return "v" + core
	}
	return core
}

// MarshalJSON renders the version the way DeploymentState's JSON schema
// requires: a bare string, "-" for Empty.
func (v Version) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON parses the version the way DeploymentState's JSON schema
// requires: a bare string, tolerating missing/empty/"-" as Empty.
func (v *Version) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	*v = Parse(s)
	return nil
}

// Max returns the greatest of a non-empty slice of Versions, or Empty if
// the slice is empty.
func Max(versions []Version) Version {
	max := Empty
	for _, v := range versions {
		if v.GreaterThan(max) {
			max = v
		}
	}
	return max
}
