package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/courier/schema"
)

func init() {
	rootCmd.AddCommand(modelIDCmd)
}

var modelIDCmd = &cobra.Command{
	Use:   "model-id descriptor.yaml",
	Short: "Print the id derived from a model descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		var d schema.Descriptor
		if err := yaml.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("parsing descriptor: %w", err)
		}
		m, err := schema.FromDescriptor(d)
		if err != nil {
			return err
		}
		id, err := schema.DeriveModelID(d)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s v%d: %#016x\n", m.Name(), m.Version(), id)

		return nil
	},
}
