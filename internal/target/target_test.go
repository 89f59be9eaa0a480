package target

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		in        string
		scheme    Scheme
		id        string
		namespace string
		canonical string
	}{
		{"k8s://prod-east/apps", K8s, "prod-east", "apps", "k8s://prod-east/apps"},
		{"k8s://prod-east", K8s, "prod-east", DefaultNamespace, "k8s://prod-east/default"},
		{"k8s://prod-east/", K8s, "prod-east", DefaultNamespace, "k8s://prod-east/default"},
		{"docker://local", Docker, "local", "", "docker://local"},
		{"DOCKER://worker-2.lan", Docker, "worker-2.lan", "", "docker://worker-2.lan"},
		{"cloud://aws/us-east-1", Cloud, "aws", "us-east-1", "cloud://aws/us-east-1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if got.Scheme() != tt.scheme || got.ID() != tt.id || got.Namespace() != tt.namespace {
				t.Fatalf("Parse(%q) = %+v", tt.in, got)
			}
			if got.String() != tt.canonical {
				t.Fatalf("String() = %q, want %q", got.String(), tt.canonical)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"invalid.cluster.test",
		"k8s://",
		"k8s:///apps",
		"ftp://host",
		"docker://local/extra",
		"cloud://aws",
		"k8s://prod/apps/more",
		"k8s://bad id/apps",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			if !errors.Is(err, ErrParse) {
				t.Fatalf("Parse(%q) err = %v, want ErrParse", in, err)
			}
		})
	}
}

func TestTarget_Comparable(t *testing.T) {
	a := MustParse("k8s://c1")
	b := MustParse("k8s://c1/default")
	if a != b {
		t.Fatalf("expected equal targets, got %v and %v", a, b)
	}
	if (Target{}).String() != "" || !(Target{}).IsZero() {
		t.Fatalf("zero target should render empty")
	}
}
