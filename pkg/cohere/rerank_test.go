package cohere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorePairs_MapsScoresByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is the scope?", req.Query)
		assert.Len(t, req.Documents, 3)

		// Ranked response: document 2 most relevant.
		_, _ = w.Write([]byte(`{"results":[
			{"index":2,"relevance_score":0.9},
			{"index":0,"relevance_score":0.4},
			{"index":1,"relevance_score":0.1}
		]}`))
	}))
	defer srv.Close()

	c := New("key", WithBaseURL(srv.URL))
	scores, err := c.ScorePairs(context.Background(), "what is the scope?", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.4, 0.1, 0.9}, scores)
}

func TestScorePairs_EmptyDocuments(t *testing.T) {
	c := New("key", WithBaseURL("http://unreachable.invalid"))
	scores, err := c.ScorePairs(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Nil(t, scores)
}

func TestScorePairs_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"invalid api token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("bad", WithBaseURL(srv.URL))
	_, err := c.ScorePairs(context.Background(), "q", []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
