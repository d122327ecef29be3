package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scmhooks/jenkins-notifier/internal/bitbucket"
	"github.com/scmhooks/jenkins-notifier/internal/events"
)

// cloneURLs are the default clone URLs of a repository; SSH is empty when disabled
type cloneURLs struct {
	HTTP string `json:"http"`
	SSH  string `json:"ssh"`
}

func (c cloneURLs) Text() string {
	ssh := c.SSH
	if ssh == "" {
		ssh = "(disabled)"
	}
	return fmt.Sprintf("http: %s\nssh:  %s", c.HTTP, ssh)
}

func newCloneURLsCmd() *cobra.Command {
	var repo repoFlags
	cmd := &cobra.Command{
		Use:   "clone-urls",
		Short: "Print the default clone URLs of a repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			return ExecuteCommand(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputFormat, "clone-urls", func() (any, error) {
				ctx, r, err := a.repository(cmd.Context(), repo.project, repo.slug)
				if err != nil {
					return nil, err
				}
				return resolveCloneURLs(ctx, a.host, r)
			})
		},
	}
	repo.register(cmd)
	return cmd
}

func resolveCloneURLs(ctx context.Context, host *bitbucket.Client, repo events.Repository) (cloneURLs, error) {
	httpURL, err := host.HTTPCloneURL(ctx, repo)
	if err != nil {
		return cloneURLs{}, err
	}
	sshURL, err := host.SSHCloneURL(ctx, repo)
	if err != nil && !errors.Is(err, bitbucket.ErrSSHDisabled) {
		return cloneURLs{}, err
	}
	return cloneURLs{HTTP: httpURL, SSH: sshURL}, nil
}
