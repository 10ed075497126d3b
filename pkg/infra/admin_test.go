package infra

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestAdminHandler(t *testing.T) {
	m := NewMetricInstance()
	m.AddValid("yo")
	m.AddAbort("yo")
	srv := httptest.NewServer(NewAdminHandler(5, m))
	defer srv.Close()

	code, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, srv.URL+"/progress")
	assert.Equal(t, http.StatusOK, code)
	var p Progress
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	assert.Equal(t, Progress{Total: 5, Finalized: 1, Aborted: 1, Pending: 3}, p)

	code, body = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `partiture_flows_total{flow="yo",result="finalized"} 1`)

	code, _ = get(t, srv.URL+"/unknown")
	assert.Equal(t, http.StatusNotFound, code)
}
