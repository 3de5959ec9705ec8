package procpool

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeChild_EchoesResults(t *testing.T) {
	var in bytes.Buffer
	var out bytes.Buffer

	enc := json.NewEncoder(&in)
	require.NoError(t, enc.Encode(request{Token: "AT-0", Input: `{"a":1}`}))
	require.NoError(t, enc.Encode(request{Token: "AT-1", Input: `{"b":2}`}))

	err := ServeChild(&in, &out, func(token, input string) Result {
		return Result{Token: token, Status: "task_success"}
	})
	require.NoError(t, err)

	dec := json.NewDecoder(&out)
	var first, second Result
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))

	assert.Equal(t, Result{Token: "AT-0", Status: "task_success"}, first)
	assert.Equal(t, Result{Token: "AT-1", Status: "task_success"}, second)
}

func TestServeChild_ReturnsNilOnEOF(t *testing.T) {
	err := ServeChild(strings.NewReader(""), &bytes.Buffer{}, func(token, input string) Result {
		t.Fatal("run must not be called without a request")
		return Result{}
	})
	assert.NoError(t, err)
}

func TestServeChild_MalformedRequest(t *testing.T) {
	err := ServeChild(strings.NewReader("not json"), &bytes.Buffer{}, func(token, input string) Result {
		return Result{}
	})
	assert.Error(t, err)
}
