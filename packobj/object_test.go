package packobj_test

import (
	"crypto/sha1" //nolint:gosec
	"fmt"
	"testing"

	"github.com/coldpath/gitalarm/packobj"
	"github.com/stretchr/testify/require"
)

func TestIdentityMatchesGitHashing(t *testing.T) {
	payload := []byte("tree abc123\n")
	id, err := packobj.Identity(packobj.TypeCommit, payload)
	require.NoError(t, err)

	h := sha1.New() //nolint:gosec
	fmt.Fprintf(h, "commit %d\x00", len(payload))
	h.Write(payload)
	want := fmt.Sprintf("%x", h.Sum(nil))

	require.Equal(t, want, string(id))
	require.Len(t, string(id), 40)
}

func TestIdentityRejectsDeltaTypes(t *testing.T) {
	_, err := packobj.Identity(packobj.TypeOfsDelta, []byte("x"))
	require.Error(t, err)
}

func TestTypeRetainedAndDelta(t *testing.T) {
	require.True(t, packobj.TypeCommit.Retained())
	require.True(t, packobj.TypeTree.Retained())
	require.False(t, packobj.TypeBlob.Retained())
	require.False(t, packobj.TypeTag.Retained())
	require.True(t, packobj.TypeOfsDelta.IsDelta())
	require.True(t, packobj.TypeRefDelta.IsDelta())
	require.False(t, packobj.TypeCommit.IsDelta())
}
