// SPDX-License-Identifier: AGPL-3.0-or-later

// Package repometa fetches basic repository metadata (name, description,
// latest release) for tools that point at a GitHub URL. It is best-effort
// throughout: lookup failures degrade to defaults and never abort a job.
package repometa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

// BasicInfo is the subset of repository metadata the pipeline cares about.
type BasicInfo struct {
	Owner         string
	Name          string
	Description   string
	URL           string
	LatestVersion string
	HasReleases   bool
}

// Client queries the GitHub REST API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a lookup client. An empty token means unauthenticated
// requests with their much lower rate limit.
func NewClient(token string, log zerolog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: "https://api.github.com",
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`github\.com[/:]([^/]+)/([^/.]+)`),
	regexp.MustCompile(`github\.com/([^/]+)/([^/]+)\.git`),
}

// ParseURL extracts owner and repo from a GitHub URL.
func ParseURL(url string) (owner, repo string, err error) {
	for _, p := range urlPatterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return m[1], m[2], nil
		}
	}
	return "", "", fmt.Errorf("invalid GitHub URL: %s", url)
}

// BasicInfo returns repository metadata. Partial failures fill defaults:
// a missing description becomes "owner/repo", missing releases become
// "latest".
func (c *Client) BasicInfo(ctx context.Context, url string) (BasicInfo, error) {
	owner, repo, err := ParseURL(url)
	if err != nil {
		return BasicInfo{}, err
	}
	info := BasicInfo{Owner: owner, Name: repo, URL: url, LatestVersion: "latest"}

	var repoData struct {
		Description string `json:"description"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo), &repoData); err != nil {
		c.log.Warn().Str("repo", owner+"/"+repo).Err(err).Msg("repo metadata lookup failed")
		info.Description = fmt.Sprintf("Repository %s/%s", owner, repo)
	} else {
		info.Description = repoData.Description
	}

	var releases []struct {
		TagName string `json:"tag_name"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/repos/%s/%s/releases", c.baseURL, owner, repo), &releases); err != nil {
		c.log.Debug().Str("repo", owner+"/"+repo).Err(err).Msg("release lookup failed")
	} else if len(releases) > 0 {
		info.HasReleases = true
		if releases[0].TagName != "" {
			info.LatestVersion = releases[0].TagName
		}
	}
	return info, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s", url)
	case http.StatusForbidden:
		return fmt.Errorf("rate limited; set a GitHub token to raise the limit")
	default:
		return fmt.Errorf("github api status %d", resp.StatusCode)
	}
}
