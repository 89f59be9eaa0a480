// internal/target/target.go
//
// DeployTarget: where a service runs, independent of how it runs.
//
// Context
// -------
// Three address forms are accepted:
//
//	k8s://<cluster-id>/<namespace>     namespace defaults to "default"
//	docker://<host>                    "local" or a registered node name
//	cloud://<provider>/<region>        reserved; no discovery yet
//
// Parse only checks shape.  Whether a cluster id or docker host is actually
// registered is a request-time question answered by internal/platform, so
// the same Target can be re-validated after registrations change.
//
// Notes
// -----
//   - Target is a comparable value type; copies are safe to share.
//   - Ids are restricted to DNS-label-ish characters so a target can be used
//     as a map key, a log field, and a metric label without escaping.
package target

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Scheme enumerates the supported platform families.
type Scheme string

const (
	Docker Scheme = "docker"
	K8s    Scheme = "k8s"
	Cloud  Scheme = "cloud"
)

// DefaultNamespace is used for k8s targets that omit the namespace.
const DefaultNamespace = "default"

// ErrParse is returned for malformed target strings.
var ErrParse = errors.New("target: malformed deploy target")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)

// Target is an immutable, parsed deploy target.
type Target struct {
	scheme Scheme
	id     string // cluster id, docker host, or cloud provider
	path   string // namespace or cloud region; empty for docker
}

// Parse validates and splits s.
func Parse(s string) (Target, error) {
	s = strings.TrimSpace(s)
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return Target{}, fmt.Errorf("%w: %q has no scheme", ErrParse, s)
	}

	id, path, _ := strings.Cut(strings.TrimSuffix(rest, "/"), "/")
	if !idPattern.MatchString(id) {
		return Target{}, fmt.Errorf("%w: %q has an invalid id", ErrParse, s)
	}
	if path != "" && !idPattern.MatchString(path) {
		return Target{}, fmt.Errorf("%w: %q has an invalid path", ErrParse, s)
	}

	switch Scheme(strings.ToLower(scheme)) {
	case K8s:
		if path == "" {
			path = DefaultNamespace
		}
		return Target{scheme: K8s, id: id, path: path}, nil
	case Docker:
		if path != "" {
			return Target{}, fmt.Errorf("%w: docker target %q takes no path", ErrParse, s)
		}
		return Target{scheme: Docker, id: id}, nil
	case Cloud:
		if path == "" {
			return Target{}, fmt.Errorf("%w: cloud target %q needs a region", ErrParse, s)
		}
		return Target{scheme: Cloud, id: id, path: path}, nil
	default:
		return Target{}, fmt.Errorf("%w: unknown scheme %q", ErrParse, scheme)
	}
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Target {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Target) Scheme() Scheme { return t.scheme }

// ID returns the cluster id, docker host, or cloud provider.
func (t Target) ID() string { return t.id }

// Namespace returns the k8s namespace or cloud region.
func (t Target) Namespace() string { return t.path }

// IsZero reports whether t was never parsed.
func (t Target) IsZero() bool { return t.scheme == "" }

// String renders the canonical form.
func (t Target) String() string {
	if t.IsZero() {
		return ""
	}
	if t.path == "" {
		return string(t.scheme) + "://" + t.id
	}
	return string(t.scheme) + "://" + t.id + "/" + t.path
}
