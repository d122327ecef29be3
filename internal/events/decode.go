package events

import (
	"encoding/json"
	"fmt"
)

// Webhook event keys sent by the host in the X-Event-Key header
const (
	KeyRefsChanged      = "repo:refs_changed"
	KeyPROpened         = "pr:opened"
	KeyPRReopened       = "pr:reopened"
	KeyPRFromRefUpdated = "pr:from_ref_updated"
	KeyPRMerged         = "pr:merged"
)

var kindByKey = map[string]Kind{
	KeyRefsChanged:      KindPush,
	KeyPROpened:         KindPullRequestOpened,
	KeyPRReopened:       KindPullRequestReopened,
	KeyPRFromRefUpdated: KindPullRequestRescoped,
	KeyPRMerged:         KindPullRequestMerged,
}

// KindForKey maps a webhook event key to its Kind
func KindForKey(key string) Kind {
	if kind, ok := kindByKey[key]; ok {
		return kind
	}
	return KindUnknown
}

type payload struct {
	EventKey         string          `json:"eventKey"`
	Actor            *actorPayload   `json:"actor,omitempty"`
	Repository       *repoPayload    `json:"repository,omitempty"`
	Changes          []changePayload `json:"changes,omitempty"`
	PullRequest      *prPayload      `json:"pullRequest,omitempty"`
	PreviousFromHash string          `json:"previousFromHash,omitempty"`
}

type actorPayload struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

type linkPayload struct {
	Href string `json:"href"`
	Name string `json:"name"`
}

type repoPayload struct {
	ID      int    `json:"id"`
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Project struct {
		Key string `json:"key"`
	} `json:"project"`
	Links struct {
		Clone []linkPayload `json:"clone"`
	} `json:"links"`
}

type changePayload struct {
	Ref struct {
		ID        string `json:"id"`
		DisplayID string `json:"displayId"`
	} `json:"ref"`
	RefID    string `json:"refId"`
	FromHash string `json:"fromHash"`
	ToHash   string `json:"toHash"`
	Type     string `json:"type"`
}

type prRefPayload struct {
	ID           string      `json:"id"`
	DisplayID    string      `json:"displayId"`
	LatestCommit string      `json:"latestCommit"`
	Repository   repoPayload `json:"repository"`
}

type prPayload struct {
	ID         int64        `json:"id"`
	Title      string       `json:"title"`
	State      string       `json:"state"`
	FromRef    prRefPayload `json:"fromRef"`
	ToRef      prRefPayload `json:"toRef"`
	Properties struct {
		MergeCommit *struct {
			ID string `json:"id"`
		} `json:"mergeCommit,omitempty"`
	} `json:"properties"`
}

// Decode parses a webhook body into an Event. The key argument overrides the
// eventKey field of the body when non-empty. Branch creations arrive as
// repo:refs_changed and decode as KindPush; see Event.IsBranchCreation. Unknown keys produce KindUnknown
// rather than an error so callers can acknowledge and ignore them.
func Decode(key string, body []byte) (Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	if key == "" {
		key = p.EventKey
	}

	event := Event{Kind: KindForKey(key)}
	if p.Actor != nil {
		event.Actor = p.Actor.Name
	}

	switch {
	case event.Kind == KindUnknown:
		return event, nil
	case event.Kind.IsPullRequest():
		if p.PullRequest == nil {
			return Event{}, fmt.Errorf("event %s has no pullRequest", key)
		}
		pr := p.PullRequest.toPullRequest()
		event.PullRequest = &pr
		event.Repository = pr.ToRef.Repository
		event.PreviousFromHash = p.PreviousFromHash
		if mc := p.PullRequest.Properties.MergeCommit; mc != nil {
			event.MergeCommit = mc.ID
		}
	default:
		if p.Repository == nil {
			return Event{}, fmt.Errorf("event %s has no repository", key)
		}
		event.Repository = p.Repository.toRepository()
		for _, c := range p.Changes {
			event.RefChanges = append(event.RefChanges, c.toRefChange())
		}
	}

	return event, nil
}

func (r repoPayload) toRepository() Repository {
	repo := Repository{
		ID:         r.ID,
		Slug:       r.Slug,
		Name:       r.Name,
		ProjectKey: r.Project.Key,
	}
	for _, link := range r.Links.Clone {
		switch link.Name {
		case "http", "https":
			repo.HTTPCloneURL = link.Href
		case "ssh":
			repo.SSHCloneURL = link.Href
		}
	}
	return repo
}

func (c changePayload) toRefChange() RefChange {
	refID := c.RefID
	if refID == "" {
		refID = c.Ref.ID
	}
	return RefChange{
		RefID:     refID,
		DisplayID: c.Ref.DisplayID,
		FromHash:  c.FromHash,
		ToHash:    c.ToHash,
		Type:      ChangeType(c.Type),
	}
}

func (r prRefPayload) toRef() PullRequestRef {
	return PullRequestRef{
		ID:           r.ID,
		DisplayID:    r.DisplayID,
		LatestCommit: r.LatestCommit,
		Repository:   r.Repository.toRepository(),
	}
}

func (p prPayload) toPullRequest() PullRequest {
	return PullRequest{
		ID:      p.ID,
		Title:   p.Title,
		State:   PullRequestState(p.State),
		FromRef: p.FromRef.toRef(),
		ToRef:   p.ToRef.toRef(),
	}
}
