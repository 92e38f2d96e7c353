package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeplane/forgeplane/pkg/config"
	"github.com/forgeplane/forgeplane/pkg/telemetry"
	"github.com/forgeplane/forgeplane/pkg/templates"
)

func newTemplatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the available template manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			level := "warn"
			if verbose {
				level = "debug"
			}
			logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: level, Format: "console"})
			if err != nil {
				return err
			}

			registry, err := templates.NewRegistry(cfg.ProgramsRoot, logger)
			if err != nil {
				return fmt.Errorf("loading template registry: %w", err)
			}

			manifests := registry.List()
			if len(manifests) == 0 {
				fmt.Println("no templates found")
				return nil
			}
			for _, manifest := range manifests {
				fmt.Printf("%-20s %s\n", manifest.Name, manifest.Description)
				for _, param := range manifest.Parameters {
					required := ""
					if param.Required {
						required = " (required)"
					}
					fmt.Printf("    %-16s %s%s\n", param.Name, param.Description, required)
				}
			}
			return nil
		},
	}
}
