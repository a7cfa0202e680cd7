package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/go-github/v73/github"
)

// Platform identifies the version-control platform that sent a webhook.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
)

// EventKind is the closed set of webhook event variants the service acts on.
// Decoding happens once at the HTTP boundary; everything downstream works
// with a RepoEvent and never re-inspects raw payloads.
type EventKind string

const (
	EventKindPush         EventKind = "push"
	EventKindTagPush      EventKind = "tag_push"
	EventKindMergeRequest EventKind = "merge_request"
	EventKindNote         EventKind = "note"
)

// ErrUnsupportedEvent marks webhook payloads the service deliberately ignores.
var ErrUnsupportedEvent = errors.New("unsupported webhook event")

// RepoEvent is the internal view of one logical webhook event. It acts as an
// anti-corruption layer: the platform-specific payload is validated and
// reduced to exactly the fields the dedup gate and the queue need.
type RepoEvent struct {
	Platform Platform
	Kind     EventKind
	// ProjectID is the platform's identifier for the project or repository.
	ProjectID string
	// RepositoryURL is the clone URL of the repository to embed.
	RepositoryURL string
	// Subject identifies the object the event is about (repo full name,
	// merge request iid, note id).
	Subject string
	// Fingerprint changes whenever the subject transitions to a materially
	// new state (target commit sha, note id plus edit timestamp). Empty when
	// the payload carries nothing stronger than its delivery id.
	Fingerprint string
	// DeliveryID is the platform's per-delivery unique id, used as the
	// fingerprint of last resort.
	DeliveryID string
}

// WebhookKey derives the deterministic deduplication key for this event.
// Two deliveries describing the same logical state collapse to one key;
// when no change fingerprint exists the delivery id keeps distinct events
// from conflating.
func (e *RepoEvent) WebhookKey() string {
	fp := e.Fingerprint
	if fp == "" {
		fp = e.DeliveryID
	}
	return fmt.Sprintf("%s:%s:%s:%s", e.Platform, e.Kind, e.Subject, fp)
}

// EventType returns the recorded event type for the processing record.
func (e *RepoEvent) EventType() string {
	return fmt.Sprintf("%s:%s", e.Platform, e.Kind)
}

// DecodeGitHubEvent parses a GitHub webhook payload into a RepoEvent.
// eventType is the value of the X-GitHub-Event header.
func DecodeGitHubEvent(eventType string, payload []byte, deliveryID string) (*RepoEvent, error) {
	ev, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("could not parse github webhook: %w", err)
	}

	switch e := ev.(type) {
	case *github.PushEvent:
		return eventFromGitHubPush(e, deliveryID)
	default:
		return nil, ErrUnsupportedEvent
	}
}

func eventFromGitHubPush(e *github.PushEvent, deliveryID string) (*RepoEvent, error) {
	repo := e.GetRepo()
	if repo == nil || repo.GetFullName() == "" {
		return nil, fmt.Errorf("repository information is missing from the push event")
	}
	if repo.GetCloneURL() == "" {
		return nil, fmt.Errorf("clone URL is missing from the push event")
	}

	return &RepoEvent{
		Platform:      PlatformGitHub,
		Kind:          EventKindPush,
		ProjectID:     strconv.FormatInt(repo.GetID(), 10),
		RepositoryURL: repo.GetCloneURL(),
		Subject:       repo.GetFullName(),
		Fingerprint:   e.GetAfter(),
		DeliveryID:    deliveryID,
	}, nil
}

// gitLabPayload covers the subset of GitLab webhook bodies the service reads.
type gitLabPayload struct {
	ObjectKind  string `json:"object_kind"`
	After       string `json:"after"`
	CheckoutSHA string `json:"checkout_sha"`
	Project     struct {
		ID                int64  `json:"id"`
		PathWithNamespace string `json:"path_with_namespace"`
		GitHTTPURL        string `json:"git_http_url"`
	} `json:"project"`
	ObjectAttributes struct {
		ID         int64  `json:"id"`
		IID        int64  `json:"iid"`
		Action     string `json:"action"`
		UpdatedAt  string `json:"updated_at"`
		LastCommit struct {
			ID string `json:"id"`
		} `json:"last_commit"`
	} `json:"object_attributes"`
}

// DecodeGitLabEvent parses a GitLab webhook payload into a RepoEvent.
// GitLab has no typed client in our stack, so the body shape is decoded
// directly; object_kind selects the variant.
func DecodeGitLabEvent(payload []byte, deliveryID string) (*RepoEvent, error) {
	var body gitLabPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("could not parse gitlab webhook: %w", err)
	}
	if body.Project.PathWithNamespace == "" {
		return nil, fmt.Errorf("project information is missing from the gitlab event")
	}

	ev := &RepoEvent{
		Platform:      PlatformGitLab,
		ProjectID:     strconv.FormatInt(body.Project.ID, 10),
		RepositoryURL: body.Project.GitHTTPURL,
		Subject:       body.Project.PathWithNamespace,
		DeliveryID:    deliveryID,
	}

	switch body.ObjectKind {
	case "push":
		ev.Kind = EventKindPush
		ev.Fingerprint = pushFingerprint(body)
	case "tag_push":
		ev.Kind = EventKindTagPush
		ev.Fingerprint = pushFingerprint(body)
	case "merge_request":
		ev.Kind = EventKindMergeRequest
		ev.Subject = fmt.Sprintf("%s!%d", body.Project.PathWithNamespace, body.ObjectAttributes.IID)
		ev.Fingerprint = mergeRequestFingerprint(body)
	case "note":
		ev.Kind = EventKindNote
		ev.Subject = fmt.Sprintf("%s#note-%d", body.Project.PathWithNamespace, body.ObjectAttributes.ID)
		// A note id alone conflates an edited note with its original; the
		// update timestamp keeps the two apart.
		if body.ObjectAttributes.UpdatedAt != "" {
			ev.Fingerprint = fmt.Sprintf("%d@%s", body.ObjectAttributes.ID, body.ObjectAttributes.UpdatedAt)
		}
	default:
		return nil, ErrUnsupportedEvent
	}

	return ev, nil
}

func pushFingerprint(body gitLabPayload) string {
	if body.After != "" {
		return body.After
	}
	return body.CheckoutSHA
}

func mergeRequestFingerprint(body gitLabPayload) string {
	sha := body.ObjectAttributes.LastCommit.ID
	if sha == "" {
		return ""
	}
	if body.ObjectAttributes.Action != "" {
		return fmt.Sprintf("%s:%s", sha, body.ObjectAttributes.Action)
	}
	return sha
}
