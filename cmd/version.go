// Package cmd holds build metadata shared by the binaries under cmd/.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-version"
)

// AppVersion is set at build time with -ldflags "-X github.com/nulzo/omni-router/cmd.AppVersion=v1.2.3".
var AppVersion = "v0.0.0"

// ReleasesURL is the GitHub endpoint describing the latest release.
var ReleasesURL = "https://api.github.com/repos/nulzo/omni-router/releases/latest"

type GitHubRelease struct {
	TagName string `json:"tag_name"`
}

// CheckForUpdates returns the latest release tag when it is newer than
// AppVersion, or "" when up to date.
func CheckForUpdates(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ReleasesURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release check: unexpected status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}

	current, err := version.NewVersion(AppVersion)
	if err != nil {
		return "", err
	}
	latest, err := version.NewVersion(release.TagName)
	if err != nil {
		return "", err
	}

	if current.LessThan(latest) {
		return release.TagName, nil
	}
	return "", nil
}
