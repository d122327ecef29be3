package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var errHookDisabled = errors.New("hook is not enabled or not configured for this repository")

type triggerOptions struct {
	repo         repoFlags
	branch       string
	sha1         string
	targetBranch string
	background   bool
}

func newTriggerCmd() *cobra.Command {
	opts := &triggerOptions{}
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Notify Jenkins for a repository using its stored settings",
		Long: `Notify Jenkins for a branch of a repository using the stored settings,
the same way the trigger button does.

Examples:
  jenkins-notifier trigger --project PROJ --repo widgets --branch main
  jenkins-notifier trigger --project PROJ --repo widgets --branch feature/x --sha1 4f2a9c1 --target-branch main`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrigger(cmd, opts)
		},
	}

	opts.repo.register(cmd)
	cmd.Flags().StringVar(&opts.branch, "branch", "", "Branch to build")
	cmd.Flags().StringVar(&opts.sha1, "sha1", "", "Commit to build")
	cmd.Flags().StringVar(&opts.targetBranch, "target-branch", "", "Pull request target branch")
	cmd.Flags().BoolVar(&opts.background, "background", false, "Dispatch through the worker pool and wait for it")
	return cmd
}

func runTrigger(cmd *cobra.Command, opts *triggerOptions) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	return ExecuteCommand(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputFormat, "trigger", func() (any, error) {
		ctx, repo, err := a.repository(cmd.Context(), opts.repo.project, opts.repo.slug)
		if err != nil {
			return nil, err
		}

		if opts.background {
			future, err := a.notifier.NotifyBackground(ctx, repo, opts.branch, opts.sha1, opts.targetBranch)
			if err != nil {
				return nil, err
			}
			result, err := future.Wait(ctx)
			if err != nil {
				return nil, err
			}
			if result == nil {
				return nil, errHookDisabled
			}
			return notifyOutput{*result}, nil
		}

		result := a.notifier.Notify(ctx, repo, opts.branch, opts.sha1, opts.targetBranch)
		if result == nil {
			return nil, errHookDisabled
		}
		return notifyOutput{*result}, nil
	})
}
