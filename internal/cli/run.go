package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/devcrew/devcrew/internal/agent"
	"github.com/devcrew/devcrew/internal/config"
	"github.com/devcrew/devcrew/internal/llm"
	"github.com/devcrew/devcrew/internal/llm/configbuilder"
	"github.com/devcrew/devcrew/internal/logging"
	"github.com/devcrew/devcrew/internal/output"
	"github.com/devcrew/devcrew/internal/pipeline"
	"github.com/devcrew/devcrew/internal/rpc"
	"github.com/devcrew/devcrew/internal/rpc/connectjson"
	pipelinerpc "github.com/devcrew/devcrew/internal/rpc/pipeline"
)

var (
	bannerColor = color.New(color.FgGreen, color.Bold)
	stageColor  = color.New(color.FgCyan, color.Bold)
	savedColor  = color.New(color.FgYellow)

	thinkingColor = color.New(color.Faint)
)

// NewRunCmd runs the crew on one goal and saves the final artifact.
func NewRunCmd(opts *Options) *cobra.Command {
	var outputPath string
	var definitionPath string
	var remote bool
	var addr string

	cmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Run the crew on a goal and save the final artifact",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if outputPath == "" {
				outputPath = cfg.Output.Path
			}
			if definitionPath != "" {
				cfg.Pipeline.Definition = definitionPath
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			out := cmd.OutOrStdout()
			bannerColor.Fprintln(out, "## devcrew ##")

			var goal string
			if len(args) == 1 {
				goal = args[0]
			} else {
				goal, err = readGoal(cmd.InOrStdin(), out)
				if err != nil {
					return err
				}
			}
			if strings.TrimSpace(goal) == "" {
				return fmt.Errorf("goal cannot be empty")
			}

			var artifact string
			if remote {
				artifact, err = runRemote(cmd.Context(), out, cfg.Server.Transport, daemonURL(addr), goal)
			} else {
				artifact, err = runLocal(cmd.Context(), out, cfg, opts.engine, goal)
			}
			if err != nil {
				return err
			}

			if err := output.WriteArtifact(outputPath, artifact); err != nil {
				return err
			}
			savedColor.Fprintf(out, "Saved to %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Artifact file path (default: output.path from config)")
	cmd.Flags().StringVar(&definitionPath, "definition", "", "Pipeline definition YAML (default: pipeline.definition from config)")
	cmd.Flags().BoolVar(&remote, "remote", false, "Submit the run to a devcrewd daemon")
	cmd.Flags().StringVar(&addr, "addr", "", "Daemon address for --remote (default: server.addr from config)")
	return cmd
}

// readGoal prompts once and reads a single line.
func readGoal(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter idea: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read goal: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLocal(ctx context.Context, out io.Writer, cfg *config.Config, engine llm.Engine, goal string) (string, error) {
	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return "", err
	}
	defer logger.Sync() //nolint:errcheck // best-effort

	def, err := pipeline.LoadDefinitionFile(cfg.Pipeline.Definition)
	if err != nil {
		return "", err
	}

	params := func(string) agent.Params {
		return agent.Params{MaxTokens: cfg.Engine.MaxTokens, Temperature: cfg.Engine.Temperature}
	}
	if engine == nil {
		gate, registry, err := configbuilder.BuildEngine(cfg, nil, logger)
		if err != nil {
			return "", fmt.Errorf("build engine: %w", err)
		}
		strategy := agent.NewStrategyEngine(registry, cfg.Strategy)
		engine = gate
		params = func(stage string) agent.Params {
			return strategy.ParamsFor(stage, cfg.Engine)
		}
	}

	p, err := def.Build(engine, params,
		pipeline.WithLogger(logger),
		pipeline.WithObserver(pipeline.ObserverFunc(func(ev pipeline.Event) {
			switch ev.Type {
			case pipeline.StageStarted:
				logger.Debug("stage started", zap.String("stage", ev.Stage))
				thinkingColor.Fprintf(out, "%s is thinking...\n", ev.Agent)
			case pipeline.StageCompleted:
				printStage(out, ev.Index, ev.Total, ev.Stage, ev.Agent, ev.Output)
			}
		})),
	)
	if err != nil {
		return "", err
	}
	return p.Run(ctx, goal)
}

func printStage(out io.Writer, index, total int, stage, agentName, text string) {
	stageColor.Fprintf(out, "\n## [%d/%d] %s (%s) ##\n", index+1, total, stage, agentName)
	fmt.Fprintln(out, text)
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func runRemote(ctx context.Context, out io.Writer, transport, baseURL, goal string) (string, error) {
	req := rpc.RunPipelineRequest{Goal: goal}
	if strings.ToLower(strings.TrimSpace(transport)) == "ndjson" {
		return runNDJSON(ctx, out, baseURL+"/pipeline/run", req)
	}
	return runConnect(ctx, out, baseURL+pipelinerpc.ConnectRunProcedure, req)
}

func runNDJSON(ctx context.Context, out io.Writer, url string, reqBody rpc.RunPipelineRequest) (string, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var sink eventSink
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var evt rpc.PipelineEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return "", fmt.Errorf("decode event: %w", err)
		}
		if err := sink.handle(out, evt); err != nil {
			return "", err
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return sink.result()
}

func runConnect(ctx context.Context, out io.Writer, url string, reqBody rpc.RunPipelineRequest) (string, error) {
	client := connect.NewClient[rpc.RunPipelineRequest, rpc.PipelineEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream, err := client.CallServerStream(ctx, connect.NewRequest(&reqBody))
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sink eventSink
	for stream.Receive() {
		if err := sink.handle(out, *stream.Msg()); err != nil {
			return "", err
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return sink.result()
}

// eventSink renders daemon events and keeps the final artifact.
type eventSink struct {
	artifact string
	done     bool
}

func (s *eventSink) handle(out io.Writer, evt rpc.PipelineEvent) error {
	switch evt.Type {
	case rpc.EventStage:
		printStage(out, evt.StageIndex, evt.StageTotal, evt.Stage, evt.Agent, evt.Output)
	case rpc.EventDone:
		s.artifact = evt.Artifact
		s.done = true
	case rpc.EventError:
		return fmt.Errorf("daemon error: %s", evt.Error)
	}
	return nil
}

func (s *eventSink) result() (string, error) {
	if !s.done {
		return "", fmt.Errorf("daemon closed the stream before the run finished")
	}
	return s.artifact, nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
