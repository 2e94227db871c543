package artifact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleArtifact() *Artifact {
	return &Artifact{
		Name:    "hello",
		Aliases: []string{"main"},
		Target:  SystemX8664Linux,
		Sources: []Source{
			{Name: "src", Path: ".", Digest: "abc123"},
		},
		Steps: []Step{
			{Script: "echo hi > $VORPAL_OUTPUT/out.txt"},
		},
	}
}

func TestDigestIsDeterministic(t *testing.T) {
	a := sampleArtifact()
	b := sampleArtifact()

	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)
	require.Equal(t, da, db)
}

func TestDigestChangesWithContent(t *testing.T) {
	a := sampleArtifact()
	b := sampleArtifact()
	b.Name = "different"

	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)
	require.NotEqual(t, da, db)
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	a := sampleArtifact()
	canon, err := a.CanonicalJSON()
	require.NoError(t, err)
	require.Contains(t, string(canon), `"aliases"`)
	// "aliases" sorts before "name" alphabetically in the canonical form.
	require.True(t, indexOf(string(canon), `"aliases"`) < indexOf(string(canon), `"name"`))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestParseSystem(t *testing.T) {
	require.Equal(t, SystemX8664Linux, ParseSystem("X8664Linux"))
	require.Equal(t, SystemUnknown, ParseSystem("garbage"))
}

func TestValidateRejectsMissingFields(t *testing.T) {
	a := &Artifact{}
	err := a.Validate("")
	require.Error(t, err)

	a = sampleArtifact()
	require.NoError(t, a.Validate(SystemX8664Linux))
	require.Error(t, a.Validate(SystemAarch64Macos))
}
