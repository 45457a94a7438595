package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lacquerai/emo/internal/emotion"
	"github.com/lacquerai/emo/internal/provider"
	"github.com/lacquerai/emo/internal/style"
)

// ClassifierInfo describes a registered classifier
type ClassifierInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Remote      bool     `json:"remote" yaml:"remote"`
	Selected    bool     `json:"selected" yaml:"selected"`
	Labels      []string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

func newClassifiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classifiers",
		Short: "List the available classifiers",
		Long: `List the classifiers that can be selected with --classifier, with the
emotion labels each one scores.`,
		Example: `
  emo classifiers
  emo classifiers --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := listClassifiers()

			switch viper.GetString("output") {
			case "json":
				style.PrintJSON(cmd.OutOrStdout(), infos)
			case "yaml":
				style.PrintYAML(cmd.OutOrStdout(), infos)
			default:
				rows := make([][]string, 0, len(infos))
				for _, info := range infos {
					name := info.Name
					if info.Selected {
						name += " *"
					}
					kind := "local"
					if info.Remote {
						kind = "remote"
					}
					rows = append(rows, []string{name, kind, strings.Join(info.Labels, ","), info.Description})
				}
				printTable(cmd.OutOrStdout(), []string{"NAME", "KIND", "LABELS", "DESCRIPTION"}, rows)
			}

			return nil
		},
	}
}

func listClassifiers() []ClassifierInfo {
	selected := viper.GetString("classifier")
	opts := classifierOptions()

	entries := registry.List()
	infos := make([]ClassifierInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, ClassifierInfo{
			Name:        entry.Name,
			Description: entry.Description,
			Remote:      entry.Remote,
			Selected:    entry.Name == selected,
			Labels:      classifierLabels(entry, opts),
		})
	}
	return infos
}

// classifierLabels reports the labels a classifier scores. Remote classifiers
// are not constructed since that would require credentials.
func classifierLabels(entry emotion.Entry, opts emotion.Options) []string {
	if entry.Remote {
		return provider.Labels(opts)
	}

	classifier, err := entry.Factory(opts)
	if err != nil {
		return nil
	}
	if labeler, ok := classifier.(emotion.Labeler); ok {
		return labeler.Labels()
	}
	return nil
}
