package cli

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devcrew/devcrew/internal/agent"
	"github.com/devcrew/devcrew/internal/config"
	"github.com/devcrew/devcrew/internal/daemon"
	"github.com/devcrew/devcrew/internal/llm/mock"
	"github.com/devcrew/devcrew/internal/pipeline"
	pipelinerpc "github.com/devcrew/devcrew/internal/rpc/pipeline"
)

func exampleConfigPath(t *testing.T) string {
	t.Helper()
	configPath, err := filepath.Abs(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)
	require.FileExists(t, configPath)
	return configPath
}

func execute(t *testing.T, opts *Options, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(opts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, &Options{}, "", "version")
	require.NoError(t, err)
	require.Contains(t, out, "devcrew")
}

func TestDoctorWithExampleConfig(t *testing.T) {
	out, err := execute(t, &Options{}, "", "doctor", "--config", exampleConfigPath(t))
	require.NoError(t, err)
	require.Contains(t, out, "Config OK")
	require.Contains(t, out, "Pipeline OK: planner -> developer -> reviewer")
}

func TestRunInProcessWithGoalArgument(t *testing.T) {
	engine := &mock.EchoEngine{}
	target := filepath.Join(t.TempDir(), "out", "result.py")

	out, err := execute(t, &Options{engine: engine}, "",
		"run", "a todo app", "--config", exampleConfigPath(t), "--output", target)
	require.NoError(t, err)

	require.Contains(t, out, "## devcrew ##")
	require.Contains(t, out, "Product Manager is thinking...")
	require.Contains(t, out, "Python Dev is thinking...")
	require.Contains(t, out, "QA Engineer is thinking...")
	require.Less(t, strings.Index(out, "Python Dev is thinking..."), strings.Index(out, "developer (Python Dev)"))
	require.Contains(t, out, "planner (Product Manager)")
	require.Contains(t, out, "reviewer (QA Engineer)")
	require.Contains(t, out, "Saved to "+target)
	require.NotContains(t, out, "Enter idea: ")
	require.Equal(t, 3, engine.Calls())

	saved, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(saved), "a todo app")
}

func TestRunReadsGoalFromStdin(t *testing.T) {
	engine := &mock.EchoEngine{}
	target := filepath.Join(t.TempDir(), "result.py")

	out, err := execute(t, &Options{engine: engine}, "a calculator\nignored\n",
		"run", "--config", exampleConfigPath(t), "--output", target)
	require.NoError(t, err)
	require.Contains(t, out, "Enter idea: ")

	reqs := engine.Requests()
	require.Len(t, reqs, 3)
	require.Contains(t, reqs[0].Messages[1].Content, "'a calculator'")
	require.NotContains(t, reqs[0].Messages[1].Content, "ignored")
}

func TestRunRejectsEmptyGoal(t *testing.T) {
	engine := &mock.EchoEngine{}

	_, err := execute(t, &Options{engine: engine}, "\n", "run", "--config", exampleConfigPath(t))
	require.ErrorContains(t, err, "goal cannot be empty")
	require.Zero(t, engine.Calls())
}

func TestRunStageFailureWritesNothing(t *testing.T) {
	engine := &mock.EchoEngine{FailOn: 3}
	target := filepath.Join(t.TempDir(), "result.py")

	_, err := execute(t, &Options{engine: engine}, "",
		"run", "x", "--config", exampleConfigPath(t), "--output", target)
	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, "reviewer", stageErr.Stage)
	require.NoFileExists(t, target)
}

func startDaemon(t *testing.T, transport string) string {
	t.Helper()
	runner := &pipelinerpc.PipelineRunner{
		Definition: pipeline.DefaultDefinition(),
		Engine:     &mock.EchoEngine{},
		Params:     func(string) agent.Params { return agent.Params{} },
	}
	cfg := &config.Config{Server: config.ServerConfig{Transport: transport}}
	srv := httptest.NewServer(daemon.NewServerWithRunner(cfg, nil, runner, nil).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRunRemote(t *testing.T) {
	for _, transport := range []string{"connect", "ndjson"} {
		t.Run(transport, func(t *testing.T) {
			addr := startDaemon(t, transport)
			target := filepath.Join(t.TempDir(), "result.py")

			cfgPath := filepath.Join(t.TempDir(), "config.yaml")
			example, err := os.ReadFile(exampleConfigPath(t))
			require.NoError(t, err)
			patched := strings.Replace(string(example), "transport: connect", "transport: "+transport, 1)
			require.NoError(t, os.WriteFile(cfgPath, []byte(patched), 0o644))

			out, err := execute(t, &Options{}, "",
				"run", "a todo app", "--config", cfgPath, "--remote", "--addr", addr, "--output", target)
			require.NoError(t, err)
			require.Contains(t, out, "developer (Python Dev)")
			require.Contains(t, out, "Saved to "+target)

			saved, err := os.ReadFile(target)
			require.NoError(t, err)
			require.Contains(t, string(saved), "a todo app")
		})
	}
}

func TestDaemonURL(t *testing.T) {
	require.Equal(t, "http://localhost:8080", daemonURL(":8080"))
	require.Equal(t, "http://host:1", daemonURL("host:1"))
	require.Equal(t, "https://x", daemonURL("https://x"))
}
