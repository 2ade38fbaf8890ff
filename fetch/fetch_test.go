package fetch_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coldpath/gitalarm/fetch"
	"github.com/coldpath/gitalarm/pktline"
	"github.com/stretchr/testify/require"
)

// fakeRef is the advertised ref this fake server always reports.
const fakeRef = "1111111111111111111111111111111111111111"

// fakeServer is a minimal net/http/httptest-based stand-in for a
// smart-HTTP v1 git server, replacing the dropped submodule the
// teacher used for its own (protocol-v2) integration tests.
func fakeServer(t *testing.T, packBody []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/owner/repo.git/info/refs", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "git-upload-pack", r.URL.Query().Get("service"))
		var buf bytes.Buffer
		require.NoError(t, pktline.WriteString(&buf, "# service=git-upload-pack\n"))
		require.NoError(t, pktline.WriteFlush(&buf))
		require.NoError(t, pktline.WriteString(&buf, fakeRef+" HEAD\x00multi_ack_detailed\n"))
		require.NoError(t, pktline.WriteFlush(&buf))
		w.Write(buf.Bytes())
	})

	mux.HandleFunc("/owner/repo.git/git-upload-pack", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "want "+fakeRef)

		var buf bytes.Buffer
		require.NoError(t, pktline.WriteString(&buf, "NAK\n"))
		buf.Write(packBody)
		w.Write(buf.Bytes())
	})

	return httptest.NewServer(mux)
}

func TestAdvertisementParsesFirstRef(t *testing.T) {
	srv := fakeServer(t, nil)
	defer srv.Close()

	c, err := fetch.New(srv.URL + "/owner/repo")
	require.NoError(t, err)

	refs, err := c.Advertisement(t.Context())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, fakeRef, refs[0].ID)
	require.Equal(t, "HEAD", refs[0].Name)
}

func TestPackStripsAckAndSideBand(t *testing.T) {
	packBody := append([]byte{}, hexFrame(1, "PACKDATA")...)
	packBody = append(packBody, "0000"...)

	srv := fakeServer(t, packBody)
	defer srv.Close()

	c, err := fetch.New(srv.URL + "/owner/repo")
	require.NoError(t, err)

	rc, err := c.Pack(t.Context(), fakeRef, nil)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "PACKDATA", string(got))
}

func TestAdvertisementRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := fetch.New(srv.URL + "/owner/repo")
	require.NoError(t, err)

	_, err = c.Advertisement(t.Context())
	require.ErrorIs(t, err, fetch.ErrNotFound)
}

// hexFrame builds a single side-band pkt-line frame: band byte
// followed by payload, length-prefixed the way pktline.Write does.
func hexFrame(band byte, payload string) []byte {
	var buf bytes.Buffer
	_ = pktline.Write(&buf, append([]byte{band}, payload...))
	return buf.Bytes()
}
