package vocab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexorial/memlink/pkg/types"
)

func TestDefaultVocabulary(t *testing.T) {
	v := Default()

	assert.Contains(t, v.Terms, "delivery")
	assert.Contains(t, v.Terms, "payment")
	assert.Contains(t, v.Terms, "customer service")

	require.NotEmpty(t, v.Triggers[types.PredicatePrefers])
	require.NotEmpty(t, v.Triggers[types.PredicateRequires])
	require.NotEmpty(t, v.Triggers[types.PredicateHasPolicy])
	require.NotEmpty(t, v.Triggers[types.PredicateHasCommitment])
}

func TestDefaultTriggersMatch(t *testing.T) {
	v := Default()

	cases := []struct {
		predicate string
		text      string
		object    string
	}{
		{types.PredicatePrefers, "Gai Media prefers Friday deliveries", "Friday deliveries"},
		{types.PredicateRequires, "they need a PO number on every invoice", "a PO number on every invoice"},
		{types.PredicateHasPolicy, "their policy is net-30 terms", "is net-30 terms"},
		{types.PredicateHasCommitment, "we promise delivery by March", "delivery by March"},
	}

	for _, tc := range cases {
		t.Run(tc.predicate, func(t *testing.T) {
			matched := false
			for _, re := range v.Triggers[tc.predicate] {
				if m := re.FindStringSubmatch(tc.text); m != nil {
					matched = true
					assert.Equal(t, tc.object, m[1])
					break
				}
			}
			assert.True(t, matched, "no trigger matched %q", tc.text)
		})
	}
}

func TestLoadOverridesTerms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
terms:
  - warranty
  - installation
`), 0o600))

	v, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"warranty", "installation"}, v.Terms)
	// Triggers fall back to defaults when the file omits them.
	assert.NotEmpty(t, v.Triggers[types.PredicatePrefers])
}

func TestLoadRejectsUnknownPredicate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
triggers:
  owns:
    - 'owns\s+(.+)'
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown predicate")
}

func TestLoadRejectsBadPattern(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
triggers:
  prefers:
    - '(unclosed'
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
