// Package update checks GitHub releases for newer vecimport builds and
// swaps the running binary in place, keeping one previous build around for
// rollback.
package update

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
)

// GitHubRepo is the repository releases are published to.
const GitHubRepo = "openvectors/vecimport"

// Release is the subset of a GitHub release the updater needs.
type Release struct {
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name"`
	Draft      bool    `json:"draft"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
	HTMLURL    string  `json:"html_url"`
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// Client performs release lookups and binary downloads.
type Client struct {
	CurrentVersion string

	apiBase      string
	downloadBase string
	httpClient   *http.Client
}

// NewClient creates an update client for the given running version.
func NewClient(currentVersion string) *Client {
	return &Client{
		CurrentVersion: currentVersion,
		apiBase:        "https://api.github.com",
		downloadBase:   "https://github.com",
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

// CheckForUpdate returns the latest release when it is newer than the
// running version, nil when already up to date.
func (c *Client) CheckForUpdate() (*Release, error) {
	release, err := c.fetchLatestRelease()
	if err != nil {
		return nil, err
	}

	newer, err := c.isNewerVersion(release.TagName)
	if err != nil {
		return nil, err
	}
	if !newer {
		return nil, nil
	}
	return release, nil
}

// DownloadAndVerify downloads the platform archive, checks it against the
// release's checksums.txt and extracts the binary to destPath.
func (c *Client) DownloadAndVerify(release *Release, destPath string) error {
	if err := EnsureUpdateDir(); err != nil {
		return fmt.Errorf("failed to create update directory: %w", err)
	}

	archivePath := destPath + ".archive"
	resp, err := c.httpClient.Get(c.downloadURL(release))
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	outFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	_, err = io.Copy(outFile, resp.Body)
	outFile.Close()
	if err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := c.verifyArchiveChecksum(archivePath, release); err != nil {
		os.Remove(archivePath)
		return err
	}

	if err := extractBinary(archivePath, destPath); err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("failed to extract binary: %w", err)
	}
	os.Remove(archivePath)

	if runtime.GOOS != "windows" {
		if err := os.Chmod(destPath, 0755); err != nil {
			return fmt.Errorf("failed to set permissions: %w", err)
		}
	}
	return nil
}

func (c *Client) fetchLatestRelease() (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.apiBase, GitHubRepo)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "vecimport")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status: %s", resp.Status)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}
	return &release, nil
}

// isNewerVersion reports whether newVersion is strictly newer than the
// running version. Dev builds always update.
func (c *Client) isNewerVersion(newVersion string) (bool, error) {
	currentStr := strings.TrimPrefix(c.CurrentVersion, "v")
	newStr := strings.TrimPrefix(newVersion, "v")

	if currentStr == "dev" || currentStr == "" {
		return true, nil
	}

	current, err := version.NewVersion(currentStr)
	if err != nil {
		return false, fmt.Errorf("invalid current version %s: %w", c.CurrentVersion, err)
	}
	latest, err := version.NewVersion(newStr)
	if err != nil {
		return false, fmt.Errorf("invalid new version %s: %w", newVersion, err)
	}
	return latest.GreaterThan(current), nil
}

func (c *Client) downloadURL(release *Release) string {
	return fmt.Sprintf("%s/%s/releases/download/%s/%s",
		c.downloadBase, GitHubRepo, release.TagName, archiveName(release.TagName))
}

func (c *Client) checksumURL(release *Release) string {
	return fmt.Sprintf("%s/%s/releases/download/%s/checksums.txt",
		c.downloadBase, GitHubRepo, release.TagName)
}

// archiveName returns the release archive filename for this platform.
func archiveName(tag string) string {
	ext := ".tar.gz"
	if runtime.GOOS == "windows" {
		ext = ".zip"
	}
	return fmt.Sprintf("vecimport_%s_%s_%s%s", tag, runtime.GOOS, runtime.GOARCH, ext)
}

func (c *Client) verifyArchiveChecksum(archivePath string, release *Release) error {
	resp, err := c.httpClient.Get(c.checksumURL(release))
	if err != nil {
		return fmt.Errorf("failed to fetch checksums: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("checksum fetch failed with status: %s", resp.Status)
	}

	checksumData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read checksums: %w", err)
	}

	expected := findChecksum(string(checksumData), archiveName(release.TagName))
	if expected == "" {
		return fmt.Errorf("checksum not found for %s", archiveName(release.TagName))
	}

	actual, err := sha256File(archivePath)
	if err != nil {
		return fmt.Errorf("failed to calculate checksum: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

// findChecksum scans checksums.txt content for the named file's hash.
func findChecksum(data, name string) string {
	for _, line := range strings.Split(data, "\n") {
		if !strings.Contains(line, name) {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 1 {
			return parts[0]
		}
	}
	return ""
}

func extractBinary(archivePath, destPath string) error {
	if runtime.GOOS == "windows" {
		return extractZip(archivePath, destPath, "vecimport.exe")
	}
	return extractTarGz(archivePath, destPath, "vecimport")
}

func extractTarGz(archivePath, destPath, binaryName string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if header.Typeflag == tar.TypeReg && filepath.Base(header.Name) == binaryName {
			outFile, err := os.Create(destPath)
			if err != nil {
				return err
			}
			if _, err := io.Copy(outFile, tr); err != nil {
				outFile.Close()
				return err
			}
			return outFile.Close()
		}
	}
	return fmt.Errorf("%s binary not found in archive", binaryName)
}

func extractZip(archivePath, destPath, binaryName string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if filepath.Base(f.Name) != binaryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		outFile, err := os.Create(destPath)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(outFile, rc)
		rc.Close()
		if cerr := outFile.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return fmt.Errorf("%s not found in archive", binaryName)
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
