package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoEvent_WebhookKey(t *testing.T) {
	tests := []struct {
		name  string
		event RepoEvent
		want  string
	}{
		{
			name: "fingerprint is part of the key",
			event: RepoEvent{
				Platform:    PlatformGitHub,
				Kind:        EventKindPush,
				Subject:     "acme/repo",
				Fingerprint: "abc123",
				DeliveryID:  "d-1",
			},
			want: "github:push:acme/repo:abc123",
		},
		{
			name: "delivery id is the fallback fingerprint",
			event: RepoEvent{
				Platform:   PlatformGitLab,
				Kind:       EventKindMergeRequest,
				Subject:    "acme/repo!7",
				DeliveryID: "d-2",
			},
			want: "gitlab:merge_request:acme/repo!7:d-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.WebhookKey())
		})
	}
}

func TestRepoEvent_WebhookKey_Collisions(t *testing.T) {
	base := RepoEvent{
		Platform:    PlatformGitHub,
		Kind:        EventKindPush,
		Subject:     "acme/repo",
		Fingerprint: "abc123",
	}

	redelivery := base
	redelivery.DeliveryID = "different-delivery"
	assert.Equal(t, base.WebhookKey(), redelivery.WebhookKey(),
		"redelivery of the same commit collapses to one key")

	newCommit := base
	newCommit.Fingerprint = "def456"
	assert.NotEqual(t, base.WebhookKey(), newCommit.WebhookKey())

	otherRepo := base
	otherRepo.Subject = "acme/other"
	assert.NotEqual(t, base.WebhookKey(), otherRepo.WebhookKey())
}

func TestDecodeGitHubEvent_Push(t *testing.T) {
	payload := []byte(`{
		"after": "abc123",
		"repository": {
			"id": 42,
			"full_name": "acme/repo",
			"clone_url": "https://github.com/acme/repo.git",
			"html_url": "https://github.com/acme/repo"
		}
	}`)

	event, err := DecodeGitHubEvent("push", payload, "delivery-1")
	require.NoError(t, err)

	assert.Equal(t, PlatformGitHub, event.Platform)
	assert.Equal(t, EventKindPush, event.Kind)
	assert.Equal(t, "42", event.ProjectID)
	assert.Equal(t, "https://github.com/acme/repo.git", event.RepositoryURL)
	assert.Equal(t, "acme/repo", event.Subject)
	assert.Equal(t, "abc123", event.Fingerprint)
	assert.Equal(t, "delivery-1", event.DeliveryID)
}

func TestDecodeGitHubEvent_Unsupported(t *testing.T) {
	_, err := DecodeGitHubEvent("star", []byte(`{}`), "delivery-1")
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestDecodeGitHubEvent_MissingRepository(t *testing.T) {
	_, err := DecodeGitHubEvent("push", []byte(`{"after": "abc123"}`), "delivery-1")
	assert.Error(t, err)
}

func TestDecodeGitLabEvent(t *testing.T) {
	tests := []struct {
		name            string
		payload         string
		wantKind        EventKind
		wantSubject     string
		wantFingerprint string
	}{
		{
			name: "push uses the after sha",
			payload: `{
				"object_kind": "push",
				"after": "abc123",
				"project": {"id": 7, "path_with_namespace": "acme/repo", "git_http_url": "https://gitlab.com/acme/repo.git"}
			}`,
			wantKind:        EventKindPush,
			wantSubject:     "acme/repo",
			wantFingerprint: "abc123",
		},
		{
			name: "tag push falls back to checkout sha",
			payload: `{
				"object_kind": "tag_push",
				"checkout_sha": "tag-sha",
				"project": {"id": 7, "path_with_namespace": "acme/repo", "git_http_url": "https://gitlab.com/acme/repo.git"}
			}`,
			wantKind:        EventKindTagPush,
			wantSubject:     "acme/repo",
			wantFingerprint: "tag-sha",
		},
		{
			name: "merge request keyed by iid, commit and action",
			payload: `{
				"object_kind": "merge_request",
				"project": {"id": 7, "path_with_namespace": "acme/repo", "git_http_url": "https://gitlab.com/acme/repo.git"},
				"object_attributes": {"iid": 3, "action": "update", "last_commit": {"id": "mr-sha"}}
			}`,
			wantKind:        EventKindMergeRequest,
			wantSubject:     "acme/repo!3",
			wantFingerprint: "mr-sha:update",
		},
		{
			name: "note keyed by id and edit timestamp",
			payload: `{
				"object_kind": "note",
				"project": {"id": 7, "path_with_namespace": "acme/repo", "git_http_url": "https://gitlab.com/acme/repo.git"},
				"object_attributes": {"id": 99, "updated_at": "2025-03-10 12:00:00 UTC"}
			}`,
			wantKind:        EventKindNote,
			wantSubject:     "acme/repo#note-99",
			wantFingerprint: "99@2025-03-10 12:00:00 UTC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DecodeGitLabEvent([]byte(tt.payload), "delivery-1")
			require.NoError(t, err)

			assert.Equal(t, PlatformGitLab, event.Platform)
			assert.Equal(t, tt.wantKind, event.Kind)
			assert.Equal(t, "7", event.ProjectID)
			assert.Equal(t, tt.wantSubject, event.Subject)
			assert.Equal(t, tt.wantFingerprint, event.Fingerprint)
		})
	}
}

func TestDecodeGitLabEvent_Unsupported(t *testing.T) {
	payload := `{
		"object_kind": "pipeline",
		"project": {"id": 7, "path_with_namespace": "acme/repo"}
	}`
	_, err := DecodeGitLabEvent([]byte(payload), "delivery-1")
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestDecodeGitLabEvent_MissingProject(t *testing.T) {
	_, err := DecodeGitLabEvent([]byte(`{"object_kind": "push"}`), "delivery-1")
	assert.Error(t, err)
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, ParsePriority("high"))
	assert.Equal(t, PriorityNormal, ParsePriority("normal"))
	assert.Equal(t, PriorityLow, ParsePriority("low"))
	assert.Equal(t, PriorityNormal, ParsePriority(""))
	assert.Equal(t, PriorityNormal, ParsePriority("nonsense"))
}
