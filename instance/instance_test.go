package instance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/contribgraph/instance"
)

func TestCredential_label_prefers_name(t *testing.T) {
	t.Parallel()

	cred := instance.Credential{
		Name: "corp",
		URL:  "https://gitlab.corp.example.com",
	}

	assert.Equal(t, "corp", cred.Label())
}

func TestCredential_label_falls_back_to_host(t *testing.T) {
	t.Parallel()

	cred := instance.Credential{
		URL: "https://gitlab.corp.example.com",
	}

	assert.Equal(
		t, "gitlab.corp.example.com", cred.Label(),
	)
}

func TestCredential_label_keeps_unparseable_url(t *testing.T) {
	t.Parallel()

	cred := instance.Credential{URL: "not a url"}

	assert.Equal(t, "not a url", cred.Label())
}

func TestCredential_validate_ok(t *testing.T) {
	t.Parallel()

	cred := instance.Credential{
		URL:    "https://gitlab.com",
		Token:  "tok",
		Family: instance.FamilyGitLab,
	}

	require.NoError(t, cred.Validate())
}

func TestCredential_validate_empty_family_ok(t *testing.T) {
	t.Parallel()

	cred := instance.Credential{
		URL:   "https://gitlab.com",
		Token: "tok",
	}

	require.NoError(t, cred.Validate())
}

func TestCredential_validate_missing_url(t *testing.T) {
	t.Parallel()

	cred := instance.Credential{Token: "tok"}

	assert.ErrorContains(
		t, cred.Validate(), "url must be set",
	)
}

func TestCredential_validate_missing_token(t *testing.T) {
	t.Parallel()

	cred := instance.Credential{
		URL: "https://gitlab.com",
	}

	assert.ErrorContains(
		t, cred.Validate(), "token must be set",
	)
}

func TestCredential_validate_unknown_family(t *testing.T) {
	t.Parallel()

	cred := instance.Credential{
		URL:    "https://forge.example.com",
		Token:  "tok",
		Family: "gitea",
	}

	assert.ErrorContains(
		t, cred.Validate(), "unknown family",
	)
}

func TestValidAction(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		action string
		want   bool
	}{
		{name: "created", action: "created", want: true},
		{name: "opened", action: "opened", want: true},
		{name: "accepted", action: "accepted", want: true},
		{name: "merged", action: "merged", want: true},
		{name: "pushed", action: "pushed", want: true},
		{name: "pushed to", action: "pushed to", want: true},
		{name: "pushed new", action: "pushed new", want: true},
		{name: "mixed case", action: "Pushed", want: true},
		{name: "joined", action: "joined", want: false},
		{name: "commented", action: "commented on", want: false},
		{name: "deleted", action: "deleted", want: false},
		{name: "empty", action: "", want: false},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(
				t, tc.want,
				instance.ValidAction(tc.action),
			)
		})
	}
}
