package github

import (
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v28/github"

	cierrors "github.com/cicoord/cicoord/pkg/errors"
)

var (
	helpUnauthorized = `GitHub rejected the credentials

Check that GITHUB_TOKEN (or --github-token) is set to a token that can
read and cancel Actions runs in the repository.
`
	helpNotFound = `GitHub cannot find the repository, workflow or run

Check the spelling of the repository (as owner/name) and the run ID.
A token without access to a private repository also sees it as missing.
`
	helpRateLimited = `The GitHub API rate limit is exhausted

Runs waiting for a slot share the token's hourly request budget. Lower
--requests-per-hour to match the number of runs that wait at once, or
use a token with a larger allowance.
`
)

func parseError(resp *gh.Response, err error) error {
	if _, ok := err.(*gh.RateLimitError); ok {
		return &cierrors.Error{Type: cierrors.Server, Err: err, Help: helpRateLimited}
	}
	if resp == nil {
		return &cierrors.Error{Type: cierrors.Server, Err: err, Help: fmt.Sprintf("Unable to reach the GitHub API.\n\n%s\n", err)}
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &cierrors.Error{Type: cierrors.User, Err: err, Help: helpUnauthorized}
	case http.StatusNotFound:
		return &cierrors.Error{Type: cierrors.Missing, Err: err, Help: helpNotFound}
	default:
		return &cierrors.Error{
			Type: cierrors.Server,
			Err:  err,
			Help: fmt.Sprintf("Unable to perform GitHub action (%s).\n\n%s\n", resp.Status, err),
		}
	}
}
