package github

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v28/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const defaultHost = "api.github.com"

// Client is a GitHub API client whose requests go through a per-host
// rate limiter.
type Client struct {
	api      *gh.Client
	limiters *RateLimiters
	host     string
}

// NewClient makes a client authenticating with token, if one is given.
// An empty baseURL means the public GitHub API; otherwise it names a
// GitHub Enterprise (or test) API root.
func NewClient(ctx context.Context, token, baseURL string, limiters *RateLimiters) (*Client, error) {
	var endpoint *url.URL
	host := defaultHost
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing GitHub API URL %q", baseURL)
		}
		endpoint, host = u, u.Host
	}

	httpClient := &http.Client{Transport: http.DefaultTransport}
	if limiters != nil {
		httpClient.Transport = limiters.RoundTripper(http.DefaultTransport, host)
	}
	if token != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}

	api := gh.NewClient(httpClient)
	if endpoint != nil {
		api.BaseURL = endpoint
		api.UploadURL = endpoint
	}
	return &Client{api: api, limiters: limiters, host: host}, nil
}

// do sends req, decoding a successful response into v. A 202 Accepted
// is a success.
func (c *Client) do(ctx context.Context, req *http.Request, v interface{}) (*gh.Response, error) {
	resp, err := c.api.Do(ctx, req, v)
	if _, accepted := err.(*gh.AcceptedError); accepted {
		err = nil
	}
	if err == nil && c.limiters != nil {
		c.limiters.Recover(c.host)
	}
	return resp, err
}
