package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "x,y,habitat\n")
	}))
	defer srv.Close()

	c := NewStandardClient(nil)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "x,y,habitat\n", string(body))
}

func TestMockHTTPClient_Queue(t *testing.T) {
	boom := errors.New("connection reset")
	m := NewMockHTTPClient().
		AddResponse(http.StatusNotFound, "missing").
		AddErrorResponse(boom)

	req := httptest.NewRequest(http.MethodGet, "http://example.test/data.csv", nil)

	resp, err := m.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "missing", string(body))

	_, err = m.Do(req)
	assert.ErrorIs(t, err, boom)

	resp, err = m.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 3, m.RequestCount())
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	m := NewMockHTTPClient()
	m.DoFunc = func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("custom")
	}
	_, err := m.Do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.EqualError(t, err, "custom")
}
