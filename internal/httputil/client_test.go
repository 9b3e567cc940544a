package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockHTTPClientReplaysInOrder(t *testing.T) {
	t.Parallel()
	mock := NewMockHTTPClient().
		AddResponse(http.StatusCreated, `{"referenceId":"pro"}`).
		AddErrorResponse(errors.New("connection refused"))

	resp, err := mock.Post("http://trick.local/api/references", "application/json", strings.NewReader(`{"videoId":"v1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"referenceId":"pro"}`, string(body))

	_, err = mock.Get("http://trick.local/api/config")
	assert.EqualError(t, err, "connection refused")

	resp, err = mock.Get("http://trick.local/api/config")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "empty queue answers 200")

	reqs := mock.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, RecordedRequest{
		Method:      http.MethodPost,
		URL:         "http://trick.local/api/references",
		ContentType: "application/json",
		Body:        []byte(`{"videoId":"v1"}`),
	}, reqs[0])
	assert.Equal(t, http.MethodGet, reqs[1].Method)
	assert.Nil(t, reqs[1].Body)
}

func TestStandardClient(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(r.Method + " " + r.Header.Get("Content-Type") + " " + string(body)))
	}))
	defer server.Close()

	custom := &http.Client{}
	client := NewStandardClient(custom)
	assert.Same(t, custom, client.Client)
	assert.Same(t, http.DefaultClient, NewStandardClient(nil).Client)

	resp, err := client.Post(server.URL, "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "POST application/json {}", string(body))

	resp, err = client.Get(server.URL)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "GET  ", string(body))
}
