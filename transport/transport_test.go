package transport

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sparqlgate/errors"
)

const resultJSON = `{
  "head": {"vars": ["item", "itemLabel"]},
  "results": {"bindings": [
    {"item": {"type": "uri", "value": "http://www.wikidata.org/entity/Q42"},
     "itemLabel": {"type": "literal", "value": "Douglas Adams", "xml:lang": "en"}}
  ]}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c, srv
}

func TestExecute_FirstShapeSucceeds(t *testing.T) {
	var gotMethod, gotFormat, gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		require.NoError(t, r.ParseForm())
		gotFormat = r.Form.Get("format")
		gotQuery = r.Form.Get("query")
		w.Header().Set("Content-Type", "application/sparql-results+json")
		_, _ = w.Write([]byte(resultJSON))
	})

	resp, err := c.Execute(context.Background(), "SELECT ?item WHERE { ?item a <T> } LIMIT 1", 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Empty(t, gotFormat)
	assert.Contains(t, gotQuery, "SELECT ?item")
	assert.Equal(t, []string{"item", "itemLabel"}, resp.Vars)
	require.Equal(t, 1, resp.RowCount())
	assert.Equal(t, "Douglas Adams", resp.Rows[0]["itemLabel"].Value)
	assert.Equal(t, "en", resp.Rows[0]["itemLabel"].XMLLang)
}

func TestExecute_FallsBackToFormatShape(t *testing.T) {
	var attempts []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		format := r.Form.Get("format")
		attempts = append(attempts, r.Method+"/"+format)
		if r.Method == http.MethodPost && format == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(resultJSON))
	})

	resp, err := c.Execute(context.Background(), "SELECT * WHERE { ?s ?p ?o } LIMIT 1", 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, []string{"POST/", "POST/json"}, attempts)
	assert.Equal(t, Shape{Method: http.MethodPost, FormatJSON: true}, resp.Shape)
}

func TestExecute_FallsBackToGet(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		assert.NotEmpty(t, r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(resultJSON))
	})

	resp, err := c.Execute(context.Background(), "SELECT * WHERE { ?s ?p ?o } LIMIT 1", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, resp.Shape.Method)
}

func TestExecute_AllShapesFail(t *testing.T) {
	var attempts int
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "server exploded", http.StatusBadGateway)
	})

	_, err := c.Execute(context.Background(), "SELECT * WHERE { ?s ?p ?o } LIMIT 1", 5*time.Second)
	require.Error(t, err)
	assert.Equal(t, 4, attempts)

	var se *StatusError
	require.True(t, stderrors.As(err, &se))
	assert.Equal(t, StatusAllShapesFailed, se.Status)
	assert.Equal(t, http.StatusBadGateway, se.LastStatus)
	assert.Contains(t, se.LastBody, "server exploded")
	assert.True(t, stderrors.Is(err, errors.ErrEndpointError))
}

func TestExecute_RateLimitStaysObservable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	})

	_, err := c.Execute(context.Background(), "SELECT * WHERE { ?s ?p ?o } LIMIT 1", 5*time.Second)
	require.Error(t, err)

	var se *StatusError
	require.True(t, stderrors.As(err, &se))
	assert.True(t, se.RateLimited())
	assert.True(t, stderrors.Is(err, errors.ErrRateLimited))
	assert.True(t, errors.IsTransient(err))
}

func TestExecute_ErrorBodyTruncated(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 5000)))
	})

	_, err := c.Execute(context.Background(), "SELECT * WHERE { ?s ?p ?o } LIMIT 1", 5*time.Second)
	require.Error(t, err)

	var se *StatusError
	require.True(t, stderrors.As(err, &se))
	assert.Len(t, se.LastBody, bodyTruncate)
}

func TestExecute_Timeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(resultJSON))
	})

	_, err := c.Execute(context.Background(), "SELECT * WHERE { ?s ?p ?o } LIMIT 1", 20*time.Millisecond)
	require.Error(t, err)

	var se *StatusError
	require.True(t, stderrors.As(err, &se))
	assert.True(t, se.Timeout)
	assert.True(t, stderrors.Is(err, errors.ErrQueryTimeout))
}

func TestExecute_UnparseableBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	})

	_, err := c.Execute(context.Background(), "SELECT * WHERE { ?s ?p ?o } LIMIT 1", 5*time.Second)
	require.Error(t, err)

	var se *StatusError
	require.True(t, stderrors.As(err, &se))
	assert.Contains(t, se.LastBody, "unparseable response body")
}

func TestExecute_EmptyQuery(t *testing.T) {
	c, err := New("http://example.org/sparql")
	require.NoError(t, err)

	_, err = c.Execute(context.Background(), "   ", time.Second)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrQueryEmpty))
}

func TestExecute_AskBoolean(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"head": {}, "boolean": true}`))
	})

	resp, err := c.Execute(context.Background(), "ASK { ?s ?p ?o }", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp.Boolean)
	assert.True(t, *resp.Boolean)
	assert.Zero(t, resp.RowCount())
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestShapeName(t *testing.T) {
	assert.Equal(t, "post", Shape{Method: http.MethodPost}.Name())
	assert.Equal(t, "get+format", Shape{Method: http.MethodGet, FormatJSON: true}.Name())
}
