// Package prebuilt resolves named prebuilt indexes: known names map to a
// downloadable tar.gz archive that is fetched once, checksum-verified, and
// extracted into the local index cache. Later runs reuse the extracted copy.
package prebuilt

import (
	"archive/tar"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"
)

// Common resolution errors.
var (
	// ErrUnknownIndex is returned when a name has no catalog entry.
	ErrUnknownIndex = errors.New("unknown prebuilt index")

	// ErrChecksumMismatch is returned when a downloaded archive fails
	// verification; nothing is extracted in that case.
	ErrChecksumMismatch = errors.New("archive checksum mismatch")
)

// Entry describes one downloadable index archive.
type Entry struct {
	// URL is the tar.gz archive location.
	URL string `yaml:"url"`

	// MD5 is the expected archive digest, in hex. Empty skips verification.
	MD5 string `yaml:"md5"`
}

// Catalog maps prebuilt index names to archive entries.
type Catalog struct {
	entries map[string]Entry
	client  *http.Client
}

// NewCatalog returns an empty catalog using the default HTTP client.
func NewCatalog() *Catalog {
	return &Catalog{
		entries: make(map[string]Entry),
		client:  http.DefaultClient,
	}
}

// LoadCatalog reads a name → entry yaml file on top of an empty catalog. A
// missing file yields an empty catalog; a malformed one is an error.
func LoadCatalog(path string) (*Catalog, error) {
	c := NewCatalog()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading prebuilt catalog %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("parsing prebuilt catalog %s: %w", path, err)
	}
	return c, nil
}

// Register adds or replaces a catalog entry.
func (c *Catalog) Register(name string, e Entry) {
	c.entries[name] = e
}

// Names returns the sorted known index names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the local directory of the named index, downloading and
// extracting its archive into indexDir on first use.
func (c *Catalog) Resolve(ctx context.Context, name, indexDir string) (string, error) {
	dest := filepath.Join(indexDir, name)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	entry, ok := c.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %q (known: %v)", ErrUnknownIndex, name, c.Names())
	}

	archive, err := c.download(ctx, entry)
	if err != nil {
		return "", fmt.Errorf("downloading prebuilt index %s: %w", name, err)
	}
	defer os.Remove(archive)

	// Extract into a staging dir first so a failed extraction never leaves
	// a half-populated index behind.
	staging, err := os.MkdirTemp(indexDir, name+".extract-*")
	if err != nil {
		return "", fmt.Errorf("creating staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := extractTarGz(archive, staging); err != nil {
		return "", fmt.Errorf("extracting prebuilt index %s: %w", name, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		return "", fmt.Errorf("installing prebuilt index %s: %w", name, err)
	}
	return dest, nil
}

// download fetches the archive to a temp file, verifying the digest while
// streaming.
func (c *Catalog) download(ctx context.Context, entry Entry) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s from %s", resp.Status, entry.URL)
	}

	tmp, err := os.CreateTemp("", "pyserini-index-*.tar.gz")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	digest := md5.New()
	if _, err := io.Copy(io.MultiWriter(tmp, digest), resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	if entry.MD5 != "" {
		got := fmt.Sprintf("%x", digest.Sum(nil))
		if !strings.EqualFold(got, entry.MD5) {
			os.Remove(tmp.Name())
			return "", fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, entry.MD5)
		}
	}
	return tmp.Name(), nil
}

// extractTarGz unpacks a tar.gz archive into dest, rejecting entries that
// would escape it.
func extractTarGz(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := sanitizePath(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		default:
			// Symlinks and special files are not part of index archives.
		}
	}
}

// sanitizePath joins name under dest and rejects traversal outside it.
func sanitizePath(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.Clean("/"+name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) && target != filepath.Clean(dest) {
		return "", fmt.Errorf("archive entry %q escapes extraction dir", name)
	}
	return target, nil
}
