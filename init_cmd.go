package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fossengine/docsync-go/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long:  "Create a default config file with every option written out, at the resolved config path, or --config if given. Refuses to overwrite an existing file.",
		Annotations: map[string]string{
			skipConfigAnnotation: "true",
		},
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if path == "" {
		return newConfigError(fmt.Errorf("could not determine a default config path; pass --config explicitly"))
	}

	if err := config.WriteDefault(path); err != nil {
		return newConfigError(err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)

	return nil
}
