// internal/clusters/store.go
//
// SQL-backed cluster source.
//
// Context
// -------
// Operators that manage many clusters register them in one table instead
// of process configuration:
//
//	k8s_cluster (id PK, name, server, kubeconfig_path, context, token,
//	             in_cluster, enabled)
//
// Disabled rows are invisible.  Every lookup hits the database; the
// registry does not cache rows, so disabling a cluster takes effect on the
// next request.
//
// Notes
// -----
// • Queries use sqlx with `db` struct tags on Cluster.
// • Oxford commas, two spaces after periods.
package clusters

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// SQLStore reads clusters from the k8s_cluster table.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps db.
func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

const clusterColumns = `id, name, server, kubeconfig_path, context, token, in_cluster`

// Cluster returns one enabled row.  A missing row is (zero, false, nil).
func (s *SQLStore) Cluster(ctx context.Context, id string) (Cluster, bool, error) {
	const q = `SELECT ` + clusterColumns + `
                 FROM k8s_cluster
                WHERE id = ? AND enabled = TRUE`

	var c Cluster
	err := s.db.GetContext(ctx, &c, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Cluster{}, false, nil
	}
	if err != nil {
		return Cluster{}, false, err
	}
	return c, true, nil
}

// Clusters lists every enabled row ordered by id.
func (s *SQLStore) Clusters(ctx context.Context) ([]Cluster, error) {
	const q = `SELECT ` + clusterColumns + `
                 FROM k8s_cluster
                WHERE enabled = TRUE
             ORDER BY id`

	var out []Cluster
	if err := s.db.SelectContext(ctx, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}
