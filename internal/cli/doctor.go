package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devcrew/devcrew/internal/agent"
	"github.com/devcrew/devcrew/internal/llm/configbuilder"
	"github.com/devcrew/devcrew/internal/pipeline"
)

// NewDoctorCmd returns a health-check command validating config, model
// routes and the pipeline definition without calling any provider.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and pipeline definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			registry, err := configbuilder.BuildRegistryFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build registry: %w", err)
			}
			def, err := pipeline.LoadDefinitionFile(cfg.Pipeline.Definition)
			if err != nil {
				return err
			}
			if def, err = def.Normalized(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d (default %s)\n",
				len(cfg.Providers), len(cfg.Models), registry.DefaultModel())
			fmt.Fprintf(out, "Transport: %s, metrics: %v, output: %s\n",
				cfg.Server.Transport, cfg.Server.MetricsEnabled, cfg.Output.Path)

			strategy := agent.NewStrategyEngine(registry, cfg.Strategy)
			names := make([]string, 0, len(def.Stages))
			for _, s := range def.Stages {
				names = append(names, s.Name)
				model := strategy.ModelFor(s.Name)
				if model == "" {
					model = registry.DefaultModel()
				}
				fmt.Fprintf(out, "  %s (%s) -> %s\n", s.Name, s.Role.Name, model)
			}
			fmt.Fprintf(out, "Pipeline OK: %s\n", strings.Join(names, " -> "))
			return nil
		},
	}
}
