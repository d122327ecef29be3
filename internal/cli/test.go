package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scmhooks/jenkins-notifier/internal/notifier"
)

// notifyOutput renders a NotificationResult for the command line
type notifyOutput struct {
	notifier.NotificationResult
}

func (o notifyOutput) Text() string {
	status := "NOT SCHEDULED"
	if o.Successful() {
		status = "SCHEDULED"
	}
	url := o.URL()
	if url == "" {
		url = "-"
	}
	return fmt.Sprintf("Status:  %s\nURL:     %s\nMessage: %s", status, url, o.Message())
}

type testOptions struct {
	repo             repoFlags
	jenkinsBase      string
	cloneType        string
	gitRepoURL       string
	ignoreCerts      bool
	omitHashCode     bool
	omitBranchName   bool
	omitTargetBranch bool
}

func newTestCmd() *cobra.Command {
	opts := &testOptions{}
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test a Jenkins configuration against a repository's default branch",
		Long: `Notify Jenkins once for the default branch of a repository and print the result.

Without --jenkins-base the stored settings of the repository are used; with it
the flags describe the configuration to try, nothing is saved.

Examples:
  # Test stored settings
  jenkins-notifier test --project PROJ --repo widgets

  # Try a configuration before saving it
  jenkins-notifier test --project PROJ --repo widgets \
    --jenkins-base https://jenkins.example.com --clone-type ssh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, opts)
		},
	}

	opts.repo.register(cmd)
	cmd.Flags().StringVar(&opts.jenkinsBase, "jenkins-base", "", "Jenkins base URL")
	cmd.Flags().StringVar(&opts.cloneType, "clone-type", notifier.CloneTypeHTTP, "Clone type: http, ssh or custom")
	cmd.Flags().StringVar(&opts.gitRepoURL, "git-repo-url", "", "Clone URL for the custom clone type")
	cmd.Flags().BoolVar(&opts.ignoreCerts, "ignore-certs", false, "Accept any Jenkins certificate")
	cmd.Flags().BoolVar(&opts.omitHashCode, "omit-hash-code", false, "Do not send the commit hash")
	cmd.Flags().BoolVar(&opts.omitBranchName, "omit-branch-name", false, "Do not send the branch name")
	cmd.Flags().BoolVar(&opts.omitTargetBranch, "omit-target-branch", false, "Do not send the target branch")
	return cmd
}

func runTest(cmd *cobra.Command, opts *testOptions) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	return ExecuteCommand(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputFormat, "test", func() (any, error) {
		ctx, repo, err := a.repository(cmd.Context(), opts.repo.project, opts.repo.slug)
		if err != nil {
			return nil, err
		}

		branch, err := a.host.DefaultBranch(ctx, repo)
		if err != nil {
			return nil, err
		}

		req := notifier.Request{
			Repository:       repo,
			JenkinsBase:      opts.jenkinsBase,
			IgnoreCerts:      opts.ignoreCerts,
			CloneType:        opts.cloneType,
			CloneURL:         opts.gitRepoURL,
			OmitHashCode:     opts.omitHashCode,
			OmitBranchName:   opts.omitBranchName,
			OmitTargetBranch: opts.omitTargetBranch,
		}
		if opts.jenkinsBase == "" {
			s, err := a.store.GetSettings(ctx, repo)
			if err != nil {
				return nil, err
			}
			if s == nil {
				return nil, fmt.Errorf("no settings stored for %s", repo.Key())
			}
			req = notifier.RequestFromSettings(repo, s, "", "", "")
		}
		req.Ref, req.SHA1, req.TargetBranch = branch.DisplayID, branch.LatestCommit, branch.DisplayID

		return notifyOutput{a.notifier.NotifyWith(ctx, req)}, nil
	})
}
