package alpine

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/queer/atsi/pkg/errs"
	"github.com/queer/atsi/pkg/paths"
)

func newTestProvisioner(t *testing.T, mux *http.ServeMux) (*Provisioner, *httptest.Server) {
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	layout := &paths.Layout{CacheDir: t.TempDir(), DataDir: t.TempDir()}
	p := &Provisioner{Layout: layout, Client: srv.Client()}
	return p, srv
}

func TestSelectManifestEntryPicksMinirootfsFlavor(t *testing.T) {
	type scenario struct {
		name     string
		manifest string
		wantErr  errs.Kind
		wantFile string
	}

	scenarios := []scenario{
		{
			name: "picks minirootfs",
			manifest: `
- flavor: standard
  file: alpine-standard-3.20.0-x86_64.tar.gz
- flavor: minirootfs
  file: alpine-minirootfs-3.20.0-x86_64.tar.gz
`,
			wantFile: "alpine-minirootfs-3.20.0-x86_64.tar.gz",
		},
		{
			name: "picks alpine-minirootfs flavor",
			manifest: `
- flavor: alpine-minirootfs
  file: alpine-minirootfs-3.20.0-x86_64.tar.gz
`,
			wantFile: "alpine-minirootfs-3.20.0-x86_64.tar.gz",
		},
		{
			name:     "not a list",
			manifest: `flavor: minirootfs`,
			wantErr:  errs.KindAlpineManifestInvalid,
		},
		{
			name: "no minirootfs entry",
			manifest: `
- flavor: standard
  file: x.tar.gz
`,
			wantErr: errs.KindAlpineManifestMissing,
		},
		{
			name: "missing file field",
			manifest: `
- flavor: minirootfs
`,
			wantErr: errs.KindAlpineManifestFileMissing,
		},
	}

	for _, s := range scenarios {
		t.Run(s.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/v3.20/releases/x86_64/latest-releases.yaml", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(s.manifest))
			})
			p, srv := newTestProvisioner(t, mux)
			p.Mirror = srv.URL

			entry, err := p.selectManifestEntry("3.20", "x86_64")
			if s.wantErr != errs.KindUnknown {
				assert.Error(t, err)
				assert.Equal(t, s.wantErr, errs.GetKind(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, s.wantFile, entry.File)
		})
	}
}

func TestEnsureCachedIsNoopWhenAlreadyPresent(t *testing.T) {
	layout := &paths.Layout{CacheDir: t.TempDir(), DataDir: t.TempDir()}
	p := &Provisioner{Layout: layout, Client: http.DefaultClient}

	tarballPath := layout.AlpineTarballPath("3.20", "x86_64")
	assert.NoError(t, os.MkdirAll(filepath.Dir(tarballPath), 0o755))
	assert.NoError(t, os.WriteFile(tarballPath, []byte("already here"), 0o644))

	assert.NoError(t, p.EnsureCached("3.20", "x86_64"))

	content, err := os.ReadFile(tarballPath)
	assert.NoError(t, err)
	assert.Equal(t, "already here", string(content))
}

func TestDownloadExclusiveTreatsEEXISTAsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/file.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	})
	p, srv := newTestProvisioner(t, mux)

	destPath := filepath.Join(t.TempDir(), "dest.tar.gz")
	assert.NoError(t, os.WriteFile(destPath, []byte("winner"), 0o644))

	assert.NoError(t, p.downloadExclusive(srv.URL+"/file.tar.gz", destPath))

	content, err := os.ReadFile(destPath)
	assert.NoError(t, err)
	assert.Equal(t, "winner", string(content), "an existing file must not be clobbered")
}
