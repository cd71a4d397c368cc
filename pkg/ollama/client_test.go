package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/document-verifier/pkg/types"
)

var testRequest = types.AnalysisRequest{
	Instructions: "classify",
	Image:        types.ImagePayload{MediaType: types.MediaTypePNG, Data: "aGVsbG8="},
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(Config{URL: "not a url"})
	assert.Error(t, err)
}

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req map[string]interface{}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "vision-model", req["model"])
		assert.Equal(t, "json", req["format"])
		assert.Equal(t, false, req["stream"])

		messages := req["messages"].([]interface{})
		msg := messages[0].(map[string]interface{})
		assert.Equal(t, "classify", msg["content"])
		assert.Equal(t, []interface{}{"aGVsbG8="}, msg["images"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"vision-model","message":{"role":"assistant","content":"{\"document_type\":\"unsupported\"}"},"done":true}` + "\n"))
	}))
	defer server.Close()

	c, err := NewClient(Config{URL: server.URL + "/api/chat", Model: "vision-model"})
	require.NoError(t, err)
	assert.Equal(t, Name, c.Name())

	text, err := c.Complete(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, `{"document_type":"unsupported"}`, text)
}

func TestComplete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("{}\n"))
	}))
	defer server.Close()

	c, err := NewClient(Config{URL: server.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), testRequest)
	var svcErr *types.ServiceError
	assert.True(t, errors.As(err, &svcErr), "expected ServiceError, got %T: %v", err, err)
}

func TestComplete_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c, err := NewClient(Config{URL: url})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), testRequest)
	var svcErr *types.ServiceError
	assert.True(t, errors.As(err, &svcErr))
}
