// internal/clusters/clusters_test.go
//
// Unit-tests for the cluster registry and its SQL store using sqlmock.
//
// Run: go test ./internal/clusters -v

package clusters

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"k8s.io/client-go/kubernetes/fake"
)

var columns = []string{"id", "name", "server", "kubeconfig_path", "context", "token", "in_cluster"}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "sqlmock")), mock
}

func TestSQLStore_Cluster(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM k8s_cluster WHERE id = ? AND enabled = TRUE`)).
		WithArgs("prod-east").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("prod-east", "Production East", "https://10.0.0.1:6443", "", "", "vault:secret/k8s/prod#token", false))

	c, ok, err := store.Cluster(context.Background(), "prod-east")
	if err != nil || !ok {
		t.Fatalf("Cluster = %v, %v", ok, err)
	}
	if c.Server != "https://10.0.0.1:6443" || c.Token != "vault:secret/k8s/prod#token" {
		t.Fatalf("unexpected row: %#v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQLStore_ClusterMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM k8s_cluster WHERE id = ?`)).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows(columns))

	_, ok, err := store.Cluster(context.Background(), "gone")
	if err != nil || ok {
		t.Fatalf("Cluster(gone) = %v, %v; want false, nil", ok, err)
	}
}

func TestRegistry_StaticWinsAndStoreIsConsultedPerRequest(t *testing.T) {
	store, mock := newMockStore(t)
	reg, err := New(
		[]Cluster{{ID: "local", Server: "https://127.0.0.1:6443"}},
		[]DockerHost{{Name: "local", Host: "unix:///var/run/docker.sock"}},
		store, nil,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Static id: no query.
	if _, err := reg.Cluster(context.Background(), "local"); err != nil {
		t.Fatalf("static lookup: %v", err)
	}

	// Unknown on first call, registered on the second.
	mock.ExpectQuery(regexp.QuoteMeta(`FROM k8s_cluster WHERE id = ?`)).
		WithArgs("edge").
		WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM k8s_cluster WHERE id = ?`)).
		WithArgs("edge").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("edge", "Edge", "https://edge:6443", "", "", "", false))

	if _, err := reg.Cluster(context.Background(), "edge"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("first lookup err = %v, want ErrNotRegistered", err)
	}
	if _, err := reg.Cluster(context.Background(), "edge"); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestRegistry_Clusters_MergedAndSorted(t *testing.T) {
	store, mock := newMockStore(t)
	reg, _ := New([]Cluster{{ID: "b", Server: "https://b"}}, nil, store, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM k8s_cluster WHERE enabled = TRUE ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("a", "", "https://a", "", "", "", false).
			AddRow("b", "shadowed", "https://other", "", "", "", false))

	got, err := reg.Clusters(context.Background())
	if err != nil {
		t.Fatalf("Clusters: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" || got[1].Server != "https://b" {
		t.Fatalf("unexpected clusters: %#v", got)
	}
}

func TestRegistry_DockerHosts(t *testing.T) {
	reg, err := New(nil, []DockerHost{
		{Name: "worker-2", Host: "tcp://worker-2:2375"},
		{Name: "local", Host: "unix:///var/run/docker.sock"},
	}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := reg.DockerHost("worker-9"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("err = %v, want ErrNotRegistered", err)
	}
	hosts := reg.DockerHosts()
	if len(hosts) != 2 || hosts[0].Name != "local" {
		t.Fatalf("unexpected hosts: %#v", hosts)
	}
}

func TestRegistry_RejectsInvalidStatic(t *testing.T) {
	if _, err := New([]Cluster{{Name: "no id"}}, nil, nil, nil); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := New(nil, []DockerHost{{Name: "x"}}, nil, nil); err == nil {
		t.Fatalf("expected validation error for docker host without address")
	}
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetKV(_ context.Context, path, key string, _ time.Duration) (string, error) {
	if v, ok := f[path+"#"+key]; ok {
		return v, nil
	}
	return "", errors.New("missing")
}

func TestRegistry_RestConfigResolvesVaultToken(t *testing.T) {
	reg, _ := New(nil, nil, nil, fakeSecrets{"secret/k8s/prod#token": "abc123"})
	cfg, err := reg.restConfig(context.Background(), Cluster{
		ID: "prod", Server: "https://prod:6443", Token: "vault:secret/k8s/prod#token", QPS: 20, Burst: 40,
	})
	if err != nil {
		t.Fatalf("restConfig: %v", err)
	}
	if cfg.Host != "https://prod:6443" || cfg.BearerToken != "abc123" || cfg.QPS != 20 || cfg.Burst != 40 {
		t.Fatalf("unexpected rest config: host=%s token=%s qps=%v burst=%d", cfg.Host, cfg.BearerToken, cfg.QPS, cfg.Burst)
	}

	if _, err := reg.restConfig(context.Background(), Cluster{ID: "empty"}); err == nil {
		t.Fatalf("expected error for cluster without connection info")
	}
}

func TestRegistry_SetClientset(t *testing.T) {
	reg, _ := New([]Cluster{{ID: "kind", Server: "https://127.0.0.1:6443"}}, nil, nil, nil)
	fc := fake.NewSimpleClientset()
	reg.SetClientset("kind", fc)

	cs, err := reg.Clientset(context.Background(), "kind")
	if err != nil {
		t.Fatalf("Clientset: %v", err)
	}
	if cs != fc {
		t.Fatalf("expected injected clientset")
	}
}
