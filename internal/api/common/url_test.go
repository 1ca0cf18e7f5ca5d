package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveParam routes path through a chi pattern and returns what fn extracted
func serveParam[T any](t *testing.T, pattern, path string, fn func(*http.Request) (T, error)) (T, error) {
	t.Helper()

	var (
		got T
		err error
	)
	r := chi.NewRouter()
	r.Get(pattern, func(_ http.ResponseWriter, req *http.Request) {
		got, err = fn(req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	return got, err
}

func TestGetAndValidateURLParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr string
	}{
		{name: "plain", path: "/configs/nightly-rp", want: "nightly-rp"},
		{name: "encoded slash", path: "/configs/a%2Fb", want: "a/b"},
		{name: "encoded space", path: "/configs/a%20b", wantErr: "cannot contain whitespace"},
		{name: "only whitespace", path: "/configs/%20", wantErr: "cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := serveParam(t, "/configs/{id}", tt.path, func(r *http.Request) (string, error) {
				return GetAndValidateURLParam(r, "id")
			})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetUUIDParam(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	got, err := serveParam(t, "/executions/{id}", "/executions/"+id.String(), func(r *http.Request) (uuid.UUID, error) {
		return GetUUIDParam(r, "id")
	})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = serveParam(t, "/executions/{id}", "/executions/not-a-uuid", func(r *http.Request) (uuid.UUID, error) {
		return GetUUIDParam(r, "id")
	})
	require.EqualError(t, err, "id must be a UUID")
}

func TestGetIntQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{query: "", want: 50},
		{query: "?limit=10", want: 10},
		{query: "?limit=0", want: 0},
		{query: "?limit=-1", wantErr: true},
		{query: "?limit=ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()

			n, err := GetIntQuery(httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil), "limit", 50)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}
