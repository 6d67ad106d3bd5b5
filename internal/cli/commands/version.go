package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querygraph/internal/cli/output"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display querygraph version and build information.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := NewCommandContextWithoutEngine(cmd).Renderer
			info := output.VersionOutput{Version: version, Commit: commit, Date: date}
			if ok, err := r.Structured(info); ok {
				return err
			}
			r.Printf("querygraph v%s\n", version)
			r.Println(r.Muted("commit " + commit + ", built " + date))
			return nil
		},
	}
}
