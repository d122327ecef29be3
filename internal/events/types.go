package events

import "strings"

// Kind identifies the host event that triggered a notification.
// Filters switch on Kind and pass through kinds they do not handle.
type Kind int

const (
	KindUnknown Kind = iota
	KindPush
	KindBranchCreated // branch created without new commits, derived from a push
	KindPullRequestOpened
	KindPullRequestReopened
	KindPullRequestRescoped
	KindPullRequestMerged
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindPush:                "push",
	KindBranchCreated:       "branch-created",
	KindPullRequestOpened:   "pr-opened",
	KindPullRequestReopened: "pr-reopened",
	KindPullRequestRescoped: "pr-rescoped",
	KindPullRequestMerged:   "pr-merged",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// IsPullRequest reports whether the kind carries a pull request payload
func (k Kind) IsPullRequest() bool {
	switch k {
	case KindPullRequestOpened, KindPullRequestReopened, KindPullRequestRescoped, KindPullRequestMerged:
		return true
	default:
		return false
	}
}

// ChangeType is the kind of update applied to a ref
type ChangeType string

const (
	ChangeAdd    ChangeType = "ADD"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// RefsHeads is the prefix of branch refs
const RefsHeads = "refs/heads/"

// RefChange describes a single ref update within a push
type RefChange struct {
	RefID     string     `json:"refId"`
	DisplayID string     `json:"displayId"`
	FromHash  string     `json:"fromHash,omitempty"`
	ToHash    string     `json:"toHash"`
	Type      ChangeType `json:"type"`
}

// BranchRef returns the ref id with the first refs/heads/ removed.
// Tags and other refs come back unchanged.
func (r RefChange) BranchRef() string {
	return strings.Replace(r.RefID, RefsHeads, "", 1)
}

// Repository identifies a repository on the host together with its clone metadata
type Repository struct {
	ID           int    `json:"id"`
	Slug         string `json:"slug"`
	Name         string `json:"name,omitempty"`
	ProjectKey   string `json:"projectKey"`
	HTTPCloneURL string `json:"httpCloneUrl,omitempty"`
	SSHCloneURL  string `json:"sshCloneUrl,omitempty"`
}

// Key returns the PROJECT/slug identifier used for settings lookups
func (r Repository) Key() string {
	return r.ProjectKey + "/" + r.Slug
}

// PullRequestRef is one side (from or to) of a pull request
type PullRequestRef struct {
	ID           string     `json:"id"`
	DisplayID    string     `json:"displayId"`
	LatestCommit string     `json:"latestCommit"`
	Repository   Repository `json:"repository"`
}

// PullRequestState mirrors the host's pull request states
type PullRequestState string

const (
	StateOpen     PullRequestState = "OPEN"
	StateMerged   PullRequestState = "MERGED"
	StateDeclined PullRequestState = "DECLINED"
)

// PullRequest is the pull request payload of PR events
type PullRequest struct {
	ID      int64            `json:"id"`
	Title   string           `json:"title,omitempty"`
	State   PullRequestState `json:"state"`
	FromRef PullRequestRef   `json:"fromRef"`
	ToRef   PullRequestRef   `json:"toRef"`
}

// Event is the raw triggering event. Which fields are set depends on Kind:
// RefChanges for push and branch-created, PullRequest for the pull request kinds,
// PreviousFromHash for rescopes and MergeCommit for merges.
type Event struct {
	Kind             Kind
	Repository       Repository
	Actor            string
	RefChanges       []RefChange
	PullRequest      *PullRequest
	PreviousFromHash string
	MergeCommit      string
}

// IsBranchCreation reports whether ev is a push that only adds branches
func (ev Event) IsBranchCreation() bool {
	if ev.Kind != KindPush || len(ev.RefChanges) == 0 {
		return false
	}
	for _, c := range ev.RefChanges {
		if c.Type != ChangeAdd || !strings.HasPrefix(c.RefID, RefsHeads) {
			return false
		}
	}
	return true
}

// Context unites the event, the affected repository and the acting user.
// It is built once per event by the adapters and is read-only afterwards.
type Context struct {
	source     Event
	repository Repository
	username   string
}

// NewContext creates a new event context
func NewContext(source Event, repository Repository, username string) *Context {
	return &Context{
		source:     source,
		repository: repository,
		username:   username,
	}
}

// Event returns the wrapped event
func (c *Context) Event() Event {
	return c.source
}

// Repository returns the repository affected by the event
func (c *Context) Repository() Repository {
	return c.repository
}

// Username returns the user that initiated the event; empty when unknown
func (c *Context) Username() string {
	return c.username
}
