package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scmhooks/jenkins-notifier/internal/bitbucket"
	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/notifier"
	"github.com/scmhooks/jenkins-notifier/internal/permission"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
)

const repositoryKey = "repository"

// withRepository resolves :project/:slug on the host and stores the repository
// in the gin context. REST callers act as repository administrators.
func (srv *Server) withRepository(c *gin.Context) {
	ctx := permission.With(c.Request.Context(), permission.RepoAdmin, "rest resource")
	c.Request = c.Request.WithContext(ctx)

	info, err := srv.host.Repository(ctx, c.Param("project"), c.Param("slug"))
	if err != nil {
		if errors.Is(err, bitbucket.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		srv.log.Error("Failed to resolve repository %s/%s: %v", c.Param("project"), c.Param("slug"), err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.Set(repositoryKey, info.ToRepository())
	c.Next()
}

func repositoryFrom(c *gin.Context) events.Repository {
	return c.MustGet(repositoryKey).(events.Repository)
}

// testConfiguration notifies Jenkins with unsaved form settings against the
// default branch of the repository
func (srv *Server) testConfiguration(c *gin.Context) {
	ctx := c.Request.Context()
	repo := repositoryFrom(c)

	jenkinsBase, hasBase := c.GetPostForm(settings.JenkinsBase)
	cloneType, hasType := c.GetPostForm(settings.CloneType)
	cloneURL, hasURL := c.GetPostForm(settings.GitRepoURL)
	if !hasBase || !hasType || (cloneType == notifier.CloneTypeCustom && !hasURL) {
		c.JSON(http.StatusOK, gin.H{"successful": false, "message": "Settings must be configured"})
		return
	}

	if err := permission.Require(ctx, permission.RepoAdmin); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	srv.log.Debug("Triggering jenkins notification for repository %s", repo.Key())

	branch, err := srv.host.DefaultBranch(ctx, repo)
	if err != nil {
		srv.log.Error("Failed to get default branch of %s: %v", repo.Key(), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	result := srv.notifier.NotifyWith(ctx, notifier.Request{
		Repository:       repo,
		JenkinsBase:      jenkinsBase,
		IgnoreCerts:      formBool(c, settings.IgnoreCerts),
		CloneType:        cloneType,
		CloneURL:         cloneURL,
		Ref:              branch.DisplayID,
		SHA1:             branch.LatestCommit,
		TargetBranch:     branch.DisplayID,
		OmitHashCode:     formBool(c, settings.OmitHashCode),
		OmitBranchName:   formBool(c, settings.OmitBranchName),
		OmitTargetBranch: formBool(c, settings.OmitTargetBranch),
	})
	srv.log.Debug("Got response from jenkins: %s", result.Message())

	c.JSON(http.StatusOK, result)
}

// triggerJenkins notifies Jenkins with the stored settings. 204 means Jenkins
// did not schedule anything or the hook is off.
func (srv *Server) triggerJenkins(c *gin.Context) {
	repo := repositoryFrom(c)

	result := srv.notifier.Notify(c.Request.Context(), repo,
		c.Query("branches"), c.Query("sha1"), c.Query("targetBranch"))
	switch {
	case result == nil:
		c.Status(http.StatusNoContent)
	case result.Successful():
		c.Status(http.StatusOK)
	case result.URL() == "":
		c.String(http.StatusInternalServerError, result.Message())
	default:
		c.Status(http.StatusNoContent)
	}
}

// cloneConfig returns the default clone URLs of the repository
func (srv *Server) cloneConfig(c *gin.Context) {
	ctx := c.Request.Context()
	repo := repositoryFrom(c)

	httpURL, err := srv.host.HTTPCloneURL(ctx, repo)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	sshURL := ""
	if srv.host.SSHEnabled() {
		sshURL, err = srv.host.SSHCloneURL(ctx, repo)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"http": httpURL, "ssh": sshURL})
}

// conditions reports whether the hook is active and whether the manual
// trigger button should be shown
func (srv *Server) conditions(c *gin.Context) {
	ctx := c.Request.Context()
	repo := repositoryFrom(c)

	hook, err := srv.settings.GetRepositoryHook(ctx, repo)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s, err := srv.settings.GetSettings(ctx, repo)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"webhookEnabled":       hook != nil && hook.Enabled && s != nil,
		"triggerButtonEnabled": s == nil || !s.GetBool(settings.OmitTriggerBuildButton, false),
	})
}

func formBool(c *gin.Context, name string) bool {
	v := c.PostForm(name)
	if v == "on" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}
