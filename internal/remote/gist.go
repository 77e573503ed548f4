// ABOUTME: Gist-backed remote store for the sync document.
// ABOUTME: Finds the document by remembered id or description, then creates or patches it.
package remote

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/github"
	"github.com/pkg/errors"
)

const (
	DefaultDescription = "Gym Tracker Data"
	DefaultFilename    = "gym-tracker-data.json"

	listPageSize = 100
)

// GistOptions configures a GistStore.
type GistOptions struct {
	Token       string
	Description string
	Filename    string
	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise or tests.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// GistStore keeps the sync document in a private gist.
type GistStore struct {
	client      *github.Client
	http        *http.Client
	ids         DocumentIDStore
	description string
	filename    string
	logger      *log.Logger
	upsert      guard
}

// NewGistStore creates a gist store that remembers the document id in ids.
func NewGistStore(ids DocumentIDStore, opts GistOptions) (*GistStore, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(opts.Token)
	}
	client := github.NewClient(httpClient)
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "parsing base url")
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		client.BaseURL = u
	}

	s := &GistStore{
		client:      client,
		http:        httpClient,
		ids:         ids,
		description: opts.Description,
		filename:    opts.Filename,
		logger:      opts.Logger,
	}
	if s.description == "" {
		s.description = DefaultDescription
	}
	if s.filename == "" {
		s.filename = DefaultFilename
	}
	if s.logger == nil {
		s.logger = log.Default().WithPrefix("remote")
	}
	return s, nil
}

// Fetch returns the sync document, or nil if none exists.
func (s *GistStore) Fetch(ctx context.Context) (*Document, error) {
	id, err := s.ids.RemoteDocumentID()
	if err != nil {
		return nil, errors.Wrap(err, "reading remembered document id")
	}

	if id != "" {
		doc, err := s.get(ctx, id)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		s.logger.Warn("remembered gist is gone, searching by description", "id", id)
		if err := s.ids.SetRemoteDocumentID(""); err != nil {
			return nil, errors.Wrap(err, "forgetting document id")
		}
	}

	found, err := s.find(ctx)
	if err != nil || found == "" {
		return nil, err
	}
	if err := s.ids.SetRemoteDocumentID(found); err != nil {
		return nil, errors.Wrap(err, "remembering document id")
	}
	doc, err := s.get(ctx, found)
	return doc, unexpected(err)
}

func (s *GistStore) get(ctx context.Context, id string) (*Document, error) {
	g, _, err := s.client.Gists.Get(ctx, id)
	if err != nil {
		return nil, classify("fetching gist", err)
	}

	file, ok := g.Files[github.GistFilename(s.filename)]
	if !ok {
		// Fall back to the only file of a renamed document.
		if len(g.Files) != 1 {
			return &Document{ID: g.GetID(), UpdatedAt: g.GetUpdatedAt()}, nil
		}
		for _, f := range g.Files {
			file = f
		}
	}

	content := []byte(file.GetContent())
	if file.Content == nil && file.GetRawURL() != "" {
		if content, err = s.raw(ctx, file.GetRawURL()); err != nil {
			return nil, err
		}
	}
	return &Document{ID: g.GetID(), Content: content, UpdatedAt: g.GetUpdatedAt()}, nil
}

// raw downloads file content that the API omitted from the gist body.
func (s *GistStore) raw(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "constructing raw request")
	}
	resp, err := s.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, &TransientError{Network: true, Err: errors.Wrap(err, "downloading gist content")}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unexpected(classifyStatus("downloading gist content", resp.StatusCode, errors.New(resp.Status)))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Network: true, Err: errors.Wrap(err, "reading gist content")}
	}
	return body, nil
}

// find lists the user's gists looking for one with our description.
func (s *GistStore) find(ctx context.Context) (string, error) {
	opt := &github.GistListOptions{ListOptions: github.ListOptions{PerPage: listPageSize}}
	for {
		gists, resp, err := s.client.Gists.List(ctx, "", opt)
		if err != nil {
			return "", unexpected(classify("listing gists", err))
		}
		for _, g := range gists {
			if g.GetDescription() == s.description {
				s.logger.Debug("found gist by description", "id", g.GetID())
				return g.GetID(), nil
			}
		}
		if resp.NextPage == 0 {
			return "", nil
		}
		opt.Page = resp.NextPage
	}
}

// Upsert writes payload as the document content.
func (s *GistStore) Upsert(ctx context.Context, payload []byte) error {
	if !s.upsert.acquire() {
		return ErrUpsertInFlight
	}
	defer s.upsert.release()

	if err := ctx.Err(); err != nil {
		return contextErr(ctx, err)
	}

	id, err := s.ids.RemoteDocumentID()
	if err != nil {
		return errors.Wrap(err, "reading remembered document id")
	}

	g := &github.Gist{
		Description: github.String(s.description),
		Files: map[github.GistFilename]github.GistFile{
			github.GistFilename(s.filename): {Content: github.String(string(payload))},
		},
	}

	if id != "" {
		_, _, err := s.client.Gists.Edit(ctx, id, g)
		err = classify("updating gist", err)
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		s.logger.Warn("remembered gist is gone, creating a new one", "id", id)
		if err := s.ids.SetRemoteDocumentID(""); err != nil {
			return errors.Wrap(err, "forgetting document id")
		}
	}

	g.Public = github.Bool(false)
	created, _, err := s.client.Gists.Create(ctx, g)
	if err != nil {
		return unexpected(classify("creating gist", err))
	}
	s.logger.Info("created sync gist", "id", created.GetID())
	if err := s.ids.SetRemoteDocumentID(created.GetID()); err != nil {
		return errors.Wrap(err, "remembering document id")
	}
	return nil
}

// Ping checks connectivity and credentials via the rate limit endpoint.
func (s *GistStore) Ping(ctx context.Context) error {
	_, _, err := s.client.RateLimits(ctx)
	return unexpected(classify("probing api", err))
}
