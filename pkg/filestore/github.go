package filestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GitHubConfig identifies the repository that holds the files.
type GitHubConfig struct {
	Token   string
	Owner   string
	Repo    string
	Branch  string
	BaseURL string
}

// GitHubStore stores files through the GitHub contents API. Versions are blob
// SHAs, which GitHub checks on every update.
type GitHubStore struct {
	client  *github.Client
	owner   string
	repo    string
	branch  string
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
}

// NewGitHubStore builds a store on top of httpClient (http.DefaultClient when nil).
func NewGitHubStore(cfg GitHubConfig, httpClient *http.Client) (*GitHubStore, error) {
	if cfg.Token == "" || cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("filestore: github token, owner and repo are required")
	}

	client := github.NewClient(httpClient).WithAuthToken(cfg.Token)
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("filestore: parse github base url: %w", err)
		}
		client.BaseURL = u
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "github-contents",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing file or a stale SHA is a normal answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || IsNotFound(err) || IsVersionMismatch(err)
		},
	})

	return &GitHubStore{
		client:  client,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		branch:  cfg.Branch,
		breaker: breaker,
		tracer:  otel.Tracer("memberledger/filestore"),
	}, nil
}

func (s *GitHubStore) Get(ctx context.Context, path string) (*File, error) {
	ctx, span := s.tracer.Start(ctx, "filestore.github.get",
		trace.WithAttributes(
			attribute.String("file.path", path),
			attribute.String("github.repo", s.owner+"/"+s.repo),
		))
	defer span.End()

	out, err := s.breaker.Execute(func() (interface{}, error) {
		var opts *github.RepositoryContentGetOptions
		if s.branch != "" {
			opts = &github.RepositoryContentGetOptions{Ref: s.branch}
		}
		fc, _, resp, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, path, opts)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("get contents: %w", err)
		}
		if fc == nil {
			return nil, fmt.Errorf("get contents: %s is not a file", path)
		}
		content, err := fc.GetContent()
		if err != nil {
			return nil, fmt.Errorf("decode contents: %w", err)
		}
		return &File{Path: path, Content: []byte(content), Version: fc.GetSHA()}, nil
	})
	if err != nil {
		return nil, err
	}

	f := out.(*File)
	span.SetAttributes(attribute.String("file.version", f.Version))
	return f, nil
}

func (s *GitHubStore) Put(ctx context.Context, path string, content []byte, message, expectedVersion string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "filestore.github.put",
		trace.WithAttributes(
			attribute.String("file.path", path),
			attribute.String("github.repo", s.owner+"/"+s.repo),
			attribute.String("expected.version", expectedVersion),
		))
	defer span.End()

	out, err := s.breaker.Execute(func() (interface{}, error) {
		opts := &github.RepositoryContentFileOptions{
			Message: github.String(message),
			Content: content,
		}
		if s.branch != "" {
			opts.Branch = github.String(s.branch)
		}

		var (
			res  *github.RepositoryContentResponse
			resp *github.Response
			err  error
		)
		if expectedVersion == "" {
			res, resp, err = s.client.Repositories.CreateFile(ctx, s.owner, s.repo, path, opts)
		} else {
			opts.SHA = github.String(expectedVersion)
			res, resp, err = s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, path, opts)
		}
		if err != nil {
			if resp != nil && isStaleWrite(resp.StatusCode, expectedVersion) {
				return nil, ErrVersionMismatch
			}
			return nil, fmt.Errorf("write contents: %w", err)
		}
		if res == nil || res.Content == nil {
			return "", nil
		}
		return res.Content.GetSHA(), nil
	})
	if err != nil {
		if IsVersionMismatch(err) {
			span.SetAttributes(attribute.Bool("conflict.detected", true))
		}
		return "", err
	}

	version, _ := out.(string)
	span.SetAttributes(attribute.String("file.version", version))
	return version, nil
}

// isStaleWrite reports whether GitHub rejected a write because the file moved:
// 409 for a SHA that is no longer current, 422 for a create over a file that
// now exists, 404 for an update of a file that was removed.
func isStaleWrite(status int, expectedVersion string) bool {
	switch status {
	case http.StatusConflict:
		return true
	case http.StatusUnprocessableEntity:
		return expectedVersion == ""
	case http.StatusNotFound:
		return expectedVersion != ""
	default:
		return false
	}
}
