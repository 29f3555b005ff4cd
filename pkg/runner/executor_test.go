package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testworker/pkg/jsvm"
	"testworker/pkg/protocol"
	"testworker/pkg/workspace"
)

// prepareSource writes source directly into a temp directory and returns
// PreparedFile values pointing at it, bypassing the Workspace Manager
// since these tests exercise the executor in isolation.
func prepareSource(t *testing.T, body string) []workspace.PreparedFile {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "case.mjs")
	code := `var mocha = require("mocha");
var describe = mocha.describe;
var it = mocha.it;
var before = mocha.before;
var after = mocha.after;
var beforeEach = mocha.beforeEach;
var afterEach = mocha.afterEach;
` + body
	require.NoError(t, os.WriteFile(path, []byte(code), 0o644))
	return []workspace.PreparedFile{{Path: path, OriginalPath: "/src/case.test.js"}}
}

func TestExecutorRunAllPassing(t *testing.T) {
	rt := jsvm.New()
	e := New(rt, Deadlines{NormalMS: 2000, ForceMS: 200})

	files := prepareSource(t, `
		describe("math", function () {
			it("adds", function () {});
			it("subtracts", function () {});
		});
	`)

	res := e.Run("req-1", files, false)
	require.NotNil(t, res)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, 0, res.Failed)
}

func TestExecutorRunReportsFailureWithExpectedActual(t *testing.T) {
	rt := jsvm.New()
	e := New(rt, Deadlines{NormalMS: 2000, ForceMS: 200})

	files := prepareSource(t, `
		it("compares values", function () {
			var e = new Error("values should match");
			e.expected = 1;
			e.actual = 2;
			throw e;
		});
	`)

	res := e.Run("req-2", files, false)
	require.False(t, res.OK)
	require.Len(t, res.Tests, 1)
	assert.Equal(t, protocol.StatusFail, res.Tests[0].Status)
	assert.Contains(t, res.Tests[0].Error, "expected: 1")
	assert.Contains(t, res.Tests[0].Error, "actual:   2")
}

func TestExecutorRunMixedBatch(t *testing.T) {
	rt := jsvm.New()
	e := New(rt, Deadlines{NormalMS: 2000, ForceMS: 200})

	files := prepareSource(t, `
		it("one", function () {});
		it("two", function () {});
		it("skipped one", function () { this.skip(); });
		it("fails", function () { throw new Error("nope"); });
	`)

	res := e.Run("req-3", files, false)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.OK)
}

func TestExecutorDescribeOnlyScopesToNestedTests(t *testing.T) {
	rt := jsvm.New()
	e := New(rt, Deadlines{NormalMS: 2000, ForceMS: 200})

	files := prepareSource(t, `
		describe("suite a", function () {
			it("a1", function () {});
		});
		describe.only("suite b", function () {
			it("b1", function () {});
			it("b2", function () {});
		});
		describe("suite c", function () {
			it("c1", function () {});
		});
	`)

	res := e.Run("req-only", files, false)
	require.NotNil(t, res)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Passed)
	names := []string{res.Tests[0].Name, res.Tests[1].Name}
	assert.ElementsMatch(t, []string{"b1", "b2"}, names)
}

func TestExecutorBeforeEachAndAfterEachRunAroundEveryTest(t *testing.T) {
	rt := jsvm.New()
	e := New(rt, Deadlines{NormalMS: 2000, ForceMS: 200})

	files := prepareSource(t, `
		var log = [];
		describe("fixtures", function () {
			beforeEach(function () { log.push("before"); });
			afterEach(function () { log.push("after"); });
			it("first", function () { log.push("test1"); });
			it("second", function () { log.push("test2"); });
		});
		it("check", function () {
			var expected = ["before", "test1", "after", "before", "test2", "after"].join(",");
			var actual = log.join(",");
			if (actual !== expected) {
				var e = new Error("hooks did not run as expected");
				e.expected = expected;
				e.actual = actual;
				throw e;
			}
		});
	`)

	res := e.Run("req-hooks-each", files, false)
	require.NotNil(t, res)
	assert.True(t, res.OK)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Passed)
}

func TestExecutorBeforeAndAfterRunOncePerSuite(t *testing.T) {
	rt := jsvm.New()
	e := New(rt, Deadlines{NormalMS: 2000, ForceMS: 200})

	files := prepareSource(t, `
		var log = [];
		describe("suite", function () {
			before(function () { log.push("before-all"); });
			after(function () { log.push("after-all"); });
			it("t1", function () { log.push("t1"); });
			it("t2", function () { log.push("t2"); });
		});
		it("check", function () {
			var expected = ["before-all", "t1", "t2", "after-all"].join(",");
			var actual = log.join(",");
			if (actual !== expected) {
				var e = new Error("suite-level hooks did not run exactly once");
				e.expected = expected;
				e.actual = actual;
				throw e;
			}
		});
	`)

	res := e.Run("req-hooks-all", files, false)
	require.NotNil(t, res)
	assert.True(t, res.OK)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Passed)
}

func TestExecutorForceExitStopsLeakedInterval(t *testing.T) {
	rt := jsvm.New()
	e := New(rt, Deadlines{NormalMS: 2000, ForceMS: 100})

	files := prepareSource(t, `
		it("leaks a timer", function () {
			setInterval(function () {}, 10);
		});
	`)

	res := e.Run("req-4", files, true)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Passed)
}
