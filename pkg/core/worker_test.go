package core

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testworker/pkg/jsvm"
	"testworker/pkg/protocol"
	"testworker/pkg/runner"
	"testworker/pkg/stdioframe"
	"testworker/pkg/workspace"
)

func TestWorkerRunProcessesRequestsInOrderThenExitsOnEOF(t *testing.T) {
	dir := t.TempDir()

	reqA := protocol.Request{
		ID: "a",
		Files: []protocol.RequestFile{{
			Path: dir + "/a.test.js",
			Code: `var it = require("mocha").it; it("passes", function () {});`,
		}},
	}
	reqB := protocol.Request{
		ID: "b",
		Files: []protocol.RequestFile{{
			Path: dir + "/b.test.js",
			Code: `var it = require("mocha").it; it("fails", function () { throw new Error("boom"); });`,
		}},
	}

	bodyA, err := json.Marshal(reqA)
	require.NoError(t, err)
	bodyB, err := json.Marshal(reqB)
	require.NoError(t, err)

	input := strings.NewReader(string(bodyA) + "\n" + string(bodyB) + "\n")
	var output strings.Builder

	framer := stdioframe.New(input, &output)
	manager := workspace.NewManager("howthtest-coretest")
	executor := runner.New(jsvm.New(), runner.Deadlines{NormalMS: 2000, ForceMS: 200})
	w := New(framer, manager, executor)

	require.NoError(t, w.Run())

	scanner := bufio.NewScanner(strings.NewReader(output.String()))
	var results []protocol.Result
	for scanner.Scan() {
		var res protocol.Result
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &res))
		results = append(results, res)
	}
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].ID)
	assert.True(t, results[0].OK)
	assert.Equal(t, 1, results[0].Passed)

	assert.Equal(t, "b", results[1].ID)
	assert.False(t, results[1].OK)
	assert.Equal(t, 1, results[1].Failed)
}

func TestWorkerRunEmitsEmptyResultOnPreparationFailure(t *testing.T) {
	reqBadPath := protocol.Request{
		ID: "bad",
		Files: []protocol.RequestFile{{
			Path: "/nonexistent-dir-for-this-test/x.test.js",
			Code: "",
		}},
	}
	body, err := json.Marshal(reqBadPath)
	require.NoError(t, err)

	input := strings.NewReader(string(body) + "\n")
	var output strings.Builder

	framer := stdioframe.New(input, &output)
	manager := workspace.NewManager("howthtest-coretest2")
	executor := runner.New(jsvm.New(), runner.Deadlines{NormalMS: 2000, ForceMS: 200})
	w := New(framer, manager, executor)

	require.NoError(t, w.Run())

	var res protocol.Result
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(output.String())), &res))
	assert.Equal(t, "bad", res.ID)
	assert.False(t, res.OK)
	assert.Contains(t, res.Diagnostics, "preparation error")
}

func TestWorkerRunSkipsMalformedLineAndContinues(t *testing.T) {
	good := protocol.Request{ID: "ok", Files: []protocol.RequestFile{}}
	body, err := json.Marshal(good)
	require.NoError(t, err)

	input := strings.NewReader("{not valid json\n" + string(body) + "\n")
	var output strings.Builder

	framer := stdioframe.New(input, &output)
	manager := workspace.NewManager("howthtest-coretest3")
	executor := runner.New(jsvm.New(), runner.Deadlines{NormalMS: 2000, ForceMS: 200})
	w := New(framer, manager, executor)

	require.NoError(t, w.Run())

	var res protocol.Result
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(output.String())), &res))
	assert.Equal(t, "ok", res.ID)
	assert.Equal(t, 0, res.Total)
}
