// Package github implements runs.Registry over the GitHub Actions API:
// a job is a workflow, and a run is one of its workflow runs.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	giturls "github.com/whilp/git-urls"

	"github.com/cicoord/cicoord/pkg/runs"
)

const perPage = 100

// workflowRun holds the fields of a GitHub workflow run used here.
type workflowRun struct {
	ID         int64  `json:"id"`
	RunNumber  int    `json:"run_number"`
	WorkflowID int64  `json:"workflow_id"`
	HeadBranch string `json:"head_branch"`
	Event      string `json:"event"`
	Status     string `json:"status"`
}

func (w workflowRun) run() runs.Run {
	return runs.Run{
		ID:     w.ID,
		Number: w.RunNumber,
		JobID:  w.WorkflowID,
		Branch: w.HeadBranch,
		Event:  w.Event,
		Status: runs.Status(w.Status),
	}
}

type workflowRuns struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []workflowRun `json:"workflow_runs"`
}

// Registry answers for the workflow runs of one repository.
type Registry struct {
	client *Client
	owner  string
	repo   string
	logger log.Logger
}

// NewRegistry returns a registry for repo, given as "owner/name" or as
// a clone URL such as https://github.com/owner/name.git or
// git@github.com:owner/name.
func NewRegistry(client *Client, repo string, logger log.Logger) (*Registry, error) {
	owner, name, err := parseRepo(repo)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	r := &Registry{
		client: client,
		owner:  owner,
		repo:   name,
	}
	r.logger = log.With(logger, "repo", r.String())
	return r, nil
}

func parseRepo(repo string) (owner, name string, err error) {
	path := repo
	if strings.Contains(repo, ":") {
		u, err := giturls.Parse(repo)
		if err != nil {
			return "", "", errors.Wrapf(err, "parsing repository URL %q", repo)
		}
		path = strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository must be given as owner/name, got %q", repo)
	}
	return parts[0], parts[1], nil
}

func (r *Registry) String() string {
	return r.owner + "/" + r.repo
}

func (r *Registry) GetRun(ctx context.Context, id int64) (runs.Run, error) {
	u := fmt.Sprintf("repos/%s/%s/actions/runs/%d", r.owner, r.repo, id)
	req, err := r.client.api.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return runs.Run{}, err
	}
	var w workflowRun
	resp, err := r.client.do(ctx, req, &w)
	if err != nil {
		return runs.Run{}, parseError(resp, err)
	}
	return w.run(), nil
}

// ListRuns fetches every page of the workflow's runs matching filter.
func (r *Registry) ListRuns(ctx context.Context, jobID int64, filter runs.Filter) ([]runs.Run, error) {
	u := fmt.Sprintf("repos/%s/%s/actions/workflows/%d/runs", r.owner, r.repo, jobID)
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(perPage))
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.Branch != "" {
		query.Set("branch", filter.Branch)
	}

	var result []runs.Run
	for page := 1; page != 0; {
		query.Set("page", strconv.Itoa(page))
		req, err := r.client.api.NewRequest(http.MethodGet, u+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var body workflowRuns
		resp, err := r.client.do(ctx, req, &body)
		if err != nil {
			return nil, parseError(resp, err)
		}
		for _, w := range body.WorkflowRuns {
			if run := w.run(); filter.Matches(run) {
				result = append(result, run)
			}
		}
		page = resp.NextPage
	}
	return result, nil
}

// CancelRun asks GitHub to cancel a run. GitHub answers 202 when it
// accepts, and 409 when the run has already finished.
func (r *Registry) CancelRun(ctx context.Context, id int64) (runs.CancelResult, error) {
	u := fmt.Sprintf("repos/%s/%s/actions/runs/%d/cancel", r.owner, r.repo, id)
	req, err := r.client.api.NewRequest(http.MethodPost, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := r.client.do(ctx, req, nil)
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusAccepted:
			return runs.Cancelled, nil
		case http.StatusConflict:
			r.logger.Log("info", "run already stopped", "run_id", id)
			return runs.AlreadyTerminal, nil
		}
	}
	if err != nil {
		return 0, parseError(resp, err)
	}
	return runs.Cancelled, nil
}
