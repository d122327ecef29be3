package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	outputFormat string
	version      string
)

// newRootCmd creates the root command with all subcommands attached
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jenkins-notifier",
		Short: "Notify Jenkins about Bitbucket Server pushes and pull requests",
		Long: `jenkins-notifier receives Bitbucket Server webhooks and tells Jenkins to poll
the affected repository through its /git/notifyCommit endpoint.

It can run in two ways:
  - Service mode: receive webhooks and serve the REST resource ('serve')
  - One-shot mode: test, trigger or inspect a single repository`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.config/jenkins-notifier/config.yaml)")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "json", "Output format: json or text")
	cmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	viper.BindPFlag("logging.verbose", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTestCmd())
	cmd.AddCommand(newTriggerCmd())
	cmd.AddCommand(newCloneURLsCmd())

	return cmd
}

// Execute runs the jenkins-notifier command line
func Execute(ver string) error {
	version = ver
	return newRootCmd().Execute()
}

// repoFlags are the flags naming a repository on the host
type repoFlags struct {
	project string
	slug    string
}

func (f *repoFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.project, "project", "", "Project key (required)")
	cmd.Flags().StringVar(&f.slug, "repo", "", "Repository slug (required)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("repo")
}
