package cli

import (
	"github.com/spf13/cobra"

	"github.com/lacquerai/emo/internal/provider"
	"github.com/lacquerai/emo/internal/style"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema model replies must match",
		Long: `Print the JSON schema sent to model-backed classifiers. Replies are
expected to be a single object with one score between 0 and 1 per label.`,
		Example: `
  emo schema
  emo schema --labels joy,anger,trust`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			labels := provider.Labels(classifierOptions())
			if err := provider.CheckLabels(labels); err != nil {
				return err
			}

			style.PrintJSON(cmd.OutOrStdout(), provider.ReplySchema(labels))
			return nil
		},
	}
}
