// Package host creates releases on the source-control hosting service
// (GitHub) and exposes release and tag deletion as explicit rollback
// primitives.
package host

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v73/github"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/log"
	"github.com/felixgeelhaar/releasekit/internal/version"
)

// DefaultTimeout bounds every API call.
const DefaultTimeout = 30 * time.Second

// Config configures the publisher.
type Config struct {
	Owner string
	Repo  string
	Token string

	// BaseURL and UploadURL override the public API endpoints, for
	// GitHub Enterprise. Both are used verbatim.
	BaseURL   string
	UploadURL string

	Timeout     time.Duration
	Retry       Retry
	Concurrency int
}

// ReleaseRequest describes the release to create.
type ReleaseRequest struct {
	TagName         string
	Title           string
	Body            string
	Draft           bool
	Prerelease      bool
	TargetCommitish string
	Artifacts       []string
}

// ReleaseResult reports CreateRelease. Artifact failures are warnings and
// never flip Success.
type ReleaseResult struct {
	Success   bool
	ID        int64
	URL       string
	Artifacts []ArtifactResult
	Warnings  []*errors.Error
	Errors    []*errors.Error
}

// Result reports a delete call.
type Result struct {
	Success bool
	Errors  []*errors.Error
}

// Publisher talks to the GitHub REST API.
type Publisher struct {
	client *github.Client
	cfg    Config
	logger *log.Logger

	authOnce sync.Once
	login    string
	authErr  error
}

// New creates a publisher for cfg.Owner/cfg.Repo.
func New(cfg Config, logger *log.Logger) (*Publisher, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New(errors.CodeConfigInvalid, "host publisher needs owner and repo")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetry
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	client := github.NewClient(&http.Client{Timeout: cfg.Timeout})
	client.UserAgent = version.UserAgent()
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		u, err := parseEndpoint(cfg.BaseURL)
		if err != nil {
			return nil, errors.Wrap(errors.CodeConfigInvalid, "invalid github base URL", err)
		}
		client.BaseURL = u
		client.UploadURL = u
	}
	if cfg.UploadURL != "" {
		u, err := parseEndpoint(cfg.UploadURL)
		if err != nil {
			return nil, errors.Wrap(errors.CodeConfigInvalid, "invalid github upload URL", err)
		}
		client.UploadURL = u
	}

	return &Publisher{client: client, cfg: cfg, logger: log.OrDiscard(logger)}, nil
}

func parseEndpoint(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return url.Parse(raw)
}

// Authenticate resolves the token's user once and caches the outcome.
func (p *Publisher) Authenticate(ctx context.Context) error {
	p.authOnce.Do(func() {
		if p.cfg.Token == "" {
			p.authErr = errors.New(errors.CodeAuthFailed, "no GitHub token configured").
				WithSuggestion("Set GITHUB_TOKEN or github.token_env in .releasekit.yaml")
			return
		}
		user, _, err := p.client.Users.Get(ctx, "")
		if err != nil {
			p.authErr = errors.Wrap(errors.CodeAuthFailed, "GitHub authentication failed", err).
				WithSuggestion("Check that the token is valid and has the repo scope")
			return
		}
		p.login = user.GetLogin()
		p.logger.Debug("github authenticated", "login", p.login)
	})
	return p.authErr
}

// ReleaseExists looks the release up by tag. A 404 means absent.
func (p *Publisher) ReleaseExists(ctx context.Context, tag string) (bool, *github.RepositoryRelease, error) {
	release, _, err := p.client.Repositories.GetReleaseByTag(ctx, p.cfg.Owner, p.cfg.Repo, tag)
	if err != nil {
		if isNotFound(err) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("get release %s: %w", tag, err)
	}
	return true, release, nil
}

// CreateRelease creates the release, then uploads its artifacts.
func (p *Publisher) CreateRelease(ctx context.Context, req ReleaseRequest) ReleaseResult {
	if err := p.Authenticate(ctx); err != nil {
		return ReleaseResult{Errors: []*errors.Error{asCoded(err, errors.CodeAuthFailed)}}
	}

	exists, existing, err := p.ReleaseExists(ctx, req.TagName)
	if err != nil {
		return ReleaseResult{Errors: []*errors.Error{
			errors.Wrap(errors.CodeReleaseCreationFailed, "failed to check for an existing release", err),
		}}
	}
	if exists {
		return ReleaseResult{
			URL: existing.GetHTMLURL(),
			ID:  existing.GetID(),
			Errors: []*errors.Error{
				errors.Newf(errors.CodeReleaseExists, "release for %s already exists", req.TagName).
					WithSuggestion("Delete it with releasekit rollback host-release " + req.TagName),
			},
		}
	}

	title := req.Title
	if title == "" {
		title = "Release " + strings.TrimPrefix(req.TagName, "v")
	}
	release := &github.RepositoryRelease{
		TagName:    github.Ptr(req.TagName),
		Name:       github.Ptr(title),
		Body:       github.Ptr(req.Body),
		Draft:      github.Ptr(req.Draft),
		Prerelease: github.Ptr(req.Prerelease),
	}
	if req.TargetCommitish != "" {
		release.TargetCommitish = github.Ptr(req.TargetCommitish)
	}

	created, _, err := p.client.Repositories.CreateRelease(ctx, p.cfg.Owner, p.cfg.Repo, release)
	if err != nil {
		return ReleaseResult{Errors: []*errors.Error{
			errors.Wrap(errors.CodeReleaseCreationFailed, fmt.Sprintf("failed to create release %s", req.TagName), err),
		}}
	}

	result := ReleaseResult{Success: true, ID: created.GetID(), URL: created.GetHTMLURL()}
	p.logger.Info("github release created", "tag", req.TagName, "url", result.URL)

	if len(req.Artifacts) > 0 {
		result.Artifacts = p.UploadArtifacts(ctx, result.ID, req.Artifacts)
		for _, a := range result.Artifacts {
			if !a.Success {
				result.Warnings = append(result.Warnings,
					errors.Newf(errors.CodeArtifactUploadFailed, "artifact %s: %s", a.Name, a.Error))
			}
		}
	}
	return result
}

// DeleteRelease deletes the release for tag. It is never called
// automatically.
func (p *Publisher) DeleteRelease(ctx context.Context, tag string) Result {
	if err := p.Authenticate(ctx); err != nil {
		return Result{Errors: []*errors.Error{asCoded(err, errors.CodeAuthFailed)}}
	}
	exists, release, err := p.ReleaseExists(ctx, tag)
	if err != nil {
		return Result{Errors: []*errors.Error{errors.Wrap(errors.CodeReleaseLookupFailed, "failed to look up release", err)}}
	}
	if !exists {
		return Result{Errors: []*errors.Error{errors.Newf(errors.CodeReleaseNotFound, "no release for %s", tag)}}
	}
	if _, err := p.client.Repositories.DeleteRelease(ctx, p.cfg.Owner, p.cfg.Repo, release.GetID()); err != nil {
		return Result{Errors: []*errors.Error{
			errors.Wrap(errors.CodeReleaseDeleteFailed, fmt.Sprintf("failed to delete release %s", tag), err),
		}}
	}
	p.logger.Info("github release deleted", "tag", tag, "id", release.GetID())
	return Result{Success: true}
}

// DeleteTag deletes the tag ref on the host. Deleting a release leaves its
// tag behind, so this is a separate step.
func (p *Publisher) DeleteTag(ctx context.Context, tag string) Result {
	if err := p.Authenticate(ctx); err != nil {
		return Result{Errors: []*errors.Error{asCoded(err, errors.CodeAuthFailed)}}
	}
	if _, err := p.client.Git.DeleteRef(ctx, p.cfg.Owner, p.cfg.Repo, "tags/"+tag); err != nil {
		code := errors.CodeDeleteTagError
		if isNotFound(err) {
			code = errors.CodeRemoteTagNotFound
		}
		return Result{Errors: []*errors.Error{errors.Wrap(code, fmt.Sprintf("failed to delete remote tag %s", tag), err)}}
	}
	p.logger.Info("github tag deleted", "tag", tag)
	return Result{Success: true}
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	if stderrors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

func asCoded(err error, fallback errors.Code) *errors.Error {
	var coded *errors.Error
	if stderrors.As(err, &coded) {
		return coded
	}
	return errors.Wrap(fallback, err.Error(), nil)
}
