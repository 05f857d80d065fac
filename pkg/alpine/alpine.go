// Package alpine provisions the Alpine Linux minirootfs: it ensures the
// release tarball for a given version/arch is cached, then extracts
// and post-populates a target rootfs directory.
package alpine

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-errors/errors"
	yaml "github.com/jesseduffield/yaml"

	"github.com/queer/atsi/pkg/errs"
	"github.com/queer/atsi/pkg/paths"
)

const (
	mirror    = "https://cz.alpinelinux.org/alpine"
	userAgent = "atsi (https://github.com/queer/atsi)"
)

// releaseEntry is one row of the release manifest.
type releaseEntry struct {
	Flavor string `yaml:"flavor"`
	File   string `yaml:"file"`
}

// Provisioner ensures and extracts the Alpine minirootfs for a layout.
type Provisioner struct {
	Layout *paths.Layout
	Client *http.Client
	// Mirror is the Alpine release mirror base URL. Defaults to the
	// upstream mirror; overridable in tests.
	Mirror string
}

// New returns a Provisioner using http.DefaultClient against the
// upstream Alpine mirror.
func New(layout *paths.Layout) *Provisioner {
	return &Provisioner{Layout: layout, Client: http.DefaultClient, Mirror: mirror}
}

// EnsureCached makes sure the minirootfs tarball for version/arch is
// present in the cache, downloading it if necessary. It is a no-op if
// the tarball already exists.
func (p *Provisioner) EnsureCached(version, arch string) error {
	tarballPath := p.Layout.AlpineTarballPath(version, arch)

	if _, err := os.Stat(tarballPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, 0)
	}

	entry, err := p.selectManifestEntry(version, arch)
	if err != nil {
		return err
	}

	tarballURL := fmt.Sprintf("%s/v%s/releases/%s/%s", p.mirror(), version, arch, entry.File)

	if err := os.MkdirAll(p.Layout.AlpineDir(), 0o755); err != nil {
		return errors.Wrap(err, 0)
	}

	return p.downloadExclusive(tarballURL, tarballPath)
}

func (p *Provisioner) mirror() string {
	if p.Mirror != "" {
		return p.Mirror
	}
	return mirror
}

func (p *Provisioner) selectManifestEntry(version, arch string) (*releaseEntry, error) {
	manifestURL := fmt.Sprintf("%s/v%s/releases/%s/latest-releases.yaml", p.mirror(), version, arch)

	req, err := http.NewRequest(http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	var entries []releaseEntry
	if err := yaml.Unmarshal(body, &entries); err != nil {
		return nil, errs.Wrap(err, errs.KindAlpineManifestInvalid, "release manifest is not a YAML list")
	}

	for i := range entries {
		if entries[i].Flavor == "minirootfs" || entries[i].Flavor == "alpine-minirootfs" {
			if entries[i].File == "" {
				return nil, errs.New(errs.KindAlpineManifestFileMissing, "selected release entry has no file field")
			}
			return &entries[i], nil
		}
	}

	return nil, errs.New(errs.KindAlpineManifestMissing, "no minirootfs flavor present in release manifest")
}

// downloadExclusive fetches url and writes it to destPath using
// exclusive-create, so concurrent callers never observe a half-written
// file. EEXIST is treated as success (another caller won the race).
func (p *Provisioner) downloadExclusive(url, destPath string) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	defer resp.Body.Close()

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return errors.Wrap(err, 0)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return errors.Wrap(err, 0)
	}

	return nil
}

// ExtractTo gzip-decompresses and untars the cached tarball for
// version/arch into targetDir, preserving permissions, then
// post-populates the device stubs, mount-point directories, and
// /etc/resolv.conf the guest expects.
func (p *Provisioner) ExtractTo(version, arch, targetDir string) error {
	tarballPath := p.Layout.AlpineTarballPath(version, arch)

	f, err := os.Open(tarballPath)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, 0)
		}

		target := filepath.Join(targetDir, hdr.Name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return errors.Wrap(err, 0)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errors.Wrap(err, 0)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return errors.Wrap(err, 0)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return errors.Wrap(err, 0)
			}
			out.Close()
		case tar.TypeSymlink:
			_ = os.Symlink(hdr.Linkname, target)
		}
	}

	return postPopulate(targetDir)
}

func postPopulate(targetDir string) error {
	for _, name := range []string{"null", "zero", "random", "urandom", "console"} {
		if err := touch(filepath.Join(targetDir, "dev", name)); err != nil {
			return err
		}
	}

	for _, dir := range []string{
		filepath.Join(targetDir, "dev", "shm"),
		filepath.Join(targetDir, "dev", "pts"),
		filepath.Join(targetDir, "proc"),
		filepath.Join(targetDir, "sys"),
		filepath.Join(targetDir, "app"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, 0)
		}
	}

	resolvConf := filepath.Join(targetDir, "etc", "resolv.conf")
	if err := os.MkdirAll(filepath.Dir(resolvConf), 0o755); err != nil {
		return errors.Wrap(err, 0)
	}
	if err := os.WriteFile(resolvConf, []byte("nameserver 10.0.2.3\n"), 0o644); err != nil {
		return errors.Wrap(err, 0)
	}

	return nil
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, 0)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	return f.Close()
}
