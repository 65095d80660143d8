package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", errors.New("dial tcp: connection refused"), true},
		{"bad password", &pq.Error{Code: "28P01"}, false},
		{"missing database", fmt.Errorf("ping: %w", &pq.Error{Code: "3D000"}), false},
		{"too many connections", &pq.Error{Code: "53300"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestPoolCollectorReportsLimits(t *testing.T) {
	db, err := sql.Open("postgres", "host=127.0.0.1 port=1 dbname=builds sslmode=disable")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(7)

	c := poolCollector(db, "builds")
	assert.Equal(t, 1, testutil.CollectAndCount(c, "go_sql_max_open_connections"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "go_sql_open_connections"))
}
