package source

import (
	"fmt"
	"strings"

	"github.com/pkgfetch/pkgfetch/pkg/fetcherr"
)

// RefKind discriminates git reference variants.
type RefKind int

const (
	// RefDefaultBranch selects the repository's head, resolved lazily at
	// fetch time. It is the zero value.
	RefDefaultBranch RefKind = iota
	RefBranch
	RefTag
	RefRevision
)

func (k RefKind) String() string {
	switch k {
	case RefDefaultBranch:
		return "default-branch"
	case RefBranch:
		return "branch"
	case RefTag:
		return "tag"
	case RefRevision:
		return "revision"
	default:
		return "unknown"
	}
}

// GitReference selects a commit in a git repository. The zero value is the
// default branch.
type GitReference struct {
	Kind  RefKind
	Value string
}

// DefaultBranch returns a reference to the repository's head.
func DefaultBranch() GitReference {
	return GitReference{}
}

// Branch returns a reference to the named branch's tip.
func Branch(name string) GitReference {
	return GitReference{Kind: RefBranch, Value: name}
}

// Tag returns a reference to the named tag.
func Tag(name string) GitReference {
	return GitReference{Kind: RefTag, Value: name}
}

// Revision returns a reference to a concrete commit, full or abbreviated
// hex SHA.
func Revision(sha string) GitReference {
	return GitReference{Kind: RefRevision, Value: sha}
}

// ParseRef parses the textual reference forms used in CLI flags and config:
// "branch=name", "tag=name", "rev=sha", a bare commit hash, or "" for the
// default branch. A bare non-hash value is treated as a branch name.
func ParseRef(s string) (GitReference, error) {
	switch {
	case s == "":
		return DefaultBranch(), nil
	case strings.HasPrefix(s, "branch="):
		return Branch(strings.TrimPrefix(s, "branch=")), nil
	case strings.HasPrefix(s, "tag="):
		return Tag(strings.TrimPrefix(s, "tag=")), nil
	case strings.HasPrefix(s, "rev="):
		rev := strings.TrimPrefix(s, "rev=")
		if !IsCommitHash(rev) && !IsShortCommitHash(rev) {
			return GitReference{}, fetcherr.New(fetcherr.CodeInvalidSource, "revision %q is not a hex commit hash", rev)
		}
		return Revision(rev), nil
	case IsCommitHash(s):
		return Revision(s), nil
	default:
		return Branch(s), nil
	}
}

func (r GitReference) String() string {
	switch r.Kind {
	case RefDefaultBranch:
		return "HEAD"
	case RefBranch:
		return "branch=" + r.Value
	case RefTag:
		return "tag=" + r.Value
	case RefRevision:
		return "rev=" + r.Value
	default:
		return fmt.Sprintf("invalid(%d)", r.Kind)
	}
}

// canonical is the fingerprint-stable form. Unlike String it never changes
// shape, since fingerprints must survive process restarts.
func (r GitReference) canonical() string {
	return fmt.Sprintf("%d:%s", r.Kind, r.Value)
}

// IsCommitHash reports whether s is a full 40-character hex SHA-1 hash.
func IsCommitHash(s string) bool {
	return len(s) == 40 && isHexString(s)
}

// IsShortCommitHash reports whether s looks like an abbreviated commit
// hash (7-39 hex chars).
func IsShortCommitHash(s string) bool {
	return len(s) >= 7 && len(s) < 40 && isHexString(s)
}

func isHexString(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
