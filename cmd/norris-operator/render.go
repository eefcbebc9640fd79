package main

import (
	"fmt"

	"github.com/cuemby/charmed-norris/pkg/config"
	"github.com/cuemby/charmed-norris/pkg/plan"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the layer the current config would apply",
	Long: `Render resolves the charm config values against the option schema and
prints the resulting service layer as YAML. Nothing is applied.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := settings.Schema()
		if err != nil {
			return err
		}
		values, err := config.LoadValues(settings.ValuesFile)
		if err != nil {
			return err
		}
		resolved, err := schema.Resolve(values)
		if err != nil {
			return err
		}

		data, err := plan.Marshal(plan.BuildDesired(resolved))
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}
