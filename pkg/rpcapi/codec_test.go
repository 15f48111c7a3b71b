package rpcapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	req := QueryRequest{RepoRequest: RepoRequest{RepoPath: "/repo"}, Text: "hello", Limit: 10}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	var out QueryRequest
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, req, out)
	assert.Equal(t, "json", c.Name())
}

func TestServiceDescListsAllMethods(t *testing.T) {
	names := map[string]bool{}
	for _, m := range ServiceDesc.Methods {
		names[m.MethodName] = true
	}
	for _, want := range []string{"Query", "QueryFTS", "QueryHybrid", "WatchStop", "WatchStatus", "Clean", "CleanData", "Status", "GetStatus", "ClearCache", "Shutdown"} {
		assert.True(t, names[want], "missing method %s", want)
	}

	streamNames := map[string]bool{}
	for _, s := range ServiceDesc.Streams {
		streamNames[s.StreamName] = true
	}
	assert.True(t, streamNames["Index"])
	assert.True(t, streamNames["WatchStart"])
}
