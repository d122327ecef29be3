package bitbucket

import "github.com/scmhooks/jenkins-notifier/internal/events"

// Link is a named hyperlink in a REST resource
type Link struct {
	Href string `json:"href"`
	Name string `json:"name,omitempty"`
}

// RepositoryInfo represents a repository resource
type RepositoryInfo struct {
	ID      int    `json:"id"`
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Project struct {
		Key string `json:"key"`
	} `json:"project"`
	Links struct {
		Clone []Link `json:"clone"`
		Self  []Link `json:"self"`
	} `json:"links"`
}

// CloneURL returns the clone link with the given name ("http" or "ssh"), or "" if absent
func (r *RepositoryInfo) CloneURL(name string) string {
	for _, l := range r.Links.Clone {
		if l.Name == name {
			return l.Href
		}
	}
	return ""
}

// ToRepository converts the resource into the repository identity used by events
func (r *RepositoryInfo) ToRepository() events.Repository {
	return events.Repository{
		ID:           r.ID,
		Slug:         r.Slug,
		Name:         r.Name,
		ProjectKey:   r.Project.Key,
		HTTPCloneURL: r.CloneURL("http"),
		SSHCloneURL:  r.CloneURL("ssh"),
	}
}

// Branch represents a branch resource
type Branch struct {
	ID           string `json:"id"`
	DisplayID    string `json:"displayId"`
	LatestCommit string `json:"latestCommit"`
	IsDefault    bool   `json:"isDefault"`
}

// BranchPage is a page of branch resources
type BranchPage struct {
	Values     []Branch `json:"values"`
	IsLastPage bool     `json:"isLastPage"`
}

// MergeInfo is the answer of the pull request merge endpoint
type MergeInfo struct {
	CanMerge   bool   `json:"canMerge"`
	Conflicted bool   `json:"conflicted"`
	Outcome    string `json:"outcome,omitempty"`
	Vetoes     []struct {
		SummaryMessage  string `json:"summaryMessage"`
		DetailedMessage string `json:"detailedMessage"`
	} `json:"vetoes"`
}
