// Package elastic implements the fragment store on Elasticsearch: index
// lifecycle, bulk appends, owner-scoped scroll scans, delete-by-query, and
// BM25/vector search.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"knowbot/src/core/knowledge"
	"knowbot/src/infrastructure/log"
)

const (
	// DefaultPageSize is how many hits one scroll page pulls.
	DefaultPageSize = 1000
	// DefaultScrollWindow is how long a scroll cursor stays valid between
	// page fetches.
	DefaultScrollWindow = 3 * time.Minute
	// DefaultVectorDims matches the multilingual e5-large embedding size.
	DefaultVectorDims = 1024
)

// Config holds the connection and scan settings for the store.
type Config struct {
	URL          string
	Username     string
	Password     string
	CACertPath   string
	PageSize     int
	ScrollWindow time.Duration
	VectorDims   int
	// Transport overrides the HTTP transport when set. Tests inject fake
	// round-trippers through it.
	Transport http.RoundTripper
}

// SDK encapsulates all Elasticsearch operations on fragment collections.
type SDK struct {
	client       *elasticsearch.Client
	pageSize     int
	scrollWindow time.Duration
	vectorDims   int
}

// NewSDK connects to Elasticsearch and returns the fragment store.
func NewSDK(cfg Config) (*SDK, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	}
	if cfg.CACertPath != "" {
		caCert, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		esCfg.CACert = caCert
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ScrollWindow <= 0 {
		cfg.ScrollWindow = DefaultScrollWindow
	}
	if cfg.VectorDims <= 0 {
		cfg.VectorDims = DefaultVectorDims
	}

	return &SDK{
		client:       client,
		pageSize:     cfg.PageSize,
		scrollWindow: cfg.ScrollWindow,
		vectorDims:   cfg.VectorDims,
	}, nil
}

// document is the stored shape of a fragment. Metadata is nested so filters
// address fields as metadata.doc_owner etc.
type document struct {
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector,omitempty"`
	Metadata metadata  `json:"metadata"`
}

type metadata struct {
	DocOwner   int64  `json:"doc_owner"`
	DocID      string `json:"doc_id"`
	FileName   string `json:"file_name"`
	PageNumber int    `json:"page_number"`
}

// EnsureCollection creates the index with the fragment mapping. Returns
// false with a nil error when the index already exists.
func (s *SDK) EnsureCollection(ctx context.Context, name string) (bool, error) {
	exists, err := s.indexExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		log.Info("index already exists", "index", name)
		return false, nil
	}

	body, err := json.Marshal(indexMapping(s.vectorDims))
	if err != nil {
		return false, fmt.Errorf("failed to marshal index mapping: %w", err)
	}

	res, err := s.client.Indices.Create(
		name,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return false, fmt.Errorf("failed to create index: %s", responseError(res.Body))
	}

	log.Info("index created", "index", name)
	return true, nil
}

// DropCollection deletes the index. Absence is reported as DropNotFound, not
// as an error, so callers can tell it apart from a failed deletion.
func (s *SDK) DropCollection(ctx context.Context, name string) (knowledge.DropResult, error) {
	res, err := s.client.Indices.Delete(
		[]string{name},
		s.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return knowledge.DropUnknown, fmt.Errorf("failed to delete index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return knowledge.DropNotFound, nil
	}
	if res.IsError() {
		return knowledge.DropUnknown, fmt.Errorf("failed to delete index: %s", responseError(res.Body))
	}

	log.Info("index deleted", "index", name)
	return knowledge.Dropped, nil
}

// AddFragments bulk-appends one page's fragment batch in chunk order.
func (s *SDK) AddFragments(ctx context.Context, name string, fragments []knowledge.IndexedFragment) error {
	if len(fragments) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, f := range fragments {
		meta := []byte(`{"index":{}}` + "\n")
		buf.Write(meta)

		doc, err := json.Marshal(document{
			Text:   f.Text,
			Vector: f.Vector,
			Metadata: metadata{
				DocOwner:   f.OwnerID,
				DocID:      f.DocumentID,
				FileName:   f.FileName,
				PageNumber: f.PageNumber,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to marshal fragment: %w", err)
		}
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	res, err := s.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithIndex(name),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk index fragments: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to bulk index fragments: %s", responseError(res.Body))
	}

	var bulkRes struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkRes.Errors {
		return fmt.Errorf("bulk index reported item failures")
	}

	return nil
}

// FragmentsByOwner scans every fragment of the owner with scroll pagination,
// pulling pages until an empty one. An expired cursor aborts the scan with
// ErrCursorExpired; the caller restarts rather than using a partial result.
func (s *SDK) FragmentsByOwner(ctx context.Context, name string, ownerID int64) ([]knowledge.Fragment, error) {
	body, err := json.Marshal(ownerQuery(ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal owner query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(name),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithSize(s.pageSize),
		s.client.Search.WithScroll(s.scrollWindow),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start owner scan: %w", err)
	}

	scrollID, fragments, err := s.decodeScanPage(res)
	if err != nil {
		return nil, err
	}
	// The server-side cursor must be released on every exit, not just the
	// happy path, or it lingers for the full scroll window.
	defer func() { s.clearScroll(ctx, scrollID) }()

	all := fragments
	for len(fragments) > 0 {
		res, err := s.client.Scroll(
			s.client.Scroll.WithContext(ctx),
			s.client.Scroll.WithScrollID(scrollID),
			s.client.Scroll.WithScroll(s.scrollWindow),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to continue owner scan: %w", err)
		}
		if res.StatusCode == 404 {
			res.Body.Close()
			return nil, knowledge.ErrCursorExpired
		}

		nextID, page, err := s.decodeScanPage(res)
		if err != nil {
			return nil, err
		}
		if nextID != "" {
			scrollID = nextID
		}
		fragments = page
		all = append(all, page...)
	}

	return all, nil
}

// DeleteByDocument removes all fragments matching the owner and document.
func (s *SDK) DeleteByDocument(ctx context.Context, name string, ownerID int64, documentID string) error {
	body, err := json.Marshal(deleteQuery(ownerID, documentID))
	if err != nil {
		return fmt.Errorf("failed to marshal delete query: %w", err)
	}

	res, err := s.client.DeleteByQuery(
		[]string{name},
		bytes.NewReader(body),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("failed to delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to delete by query: %s", responseError(res.Body))
	}
	return nil
}

// SearchLexical runs a BM25 match query on fragment text, filtered to the
// owner.
func (s *SDK) SearchLexical(ctx context.Context, name string, ownerID int64, query string, limit int) ([]knowledge.Hit, error) {
	return s.search(ctx, name, lexicalQuery(ownerID, query), limit)
}

// SearchVector runs cosine similarity over stored vectors, filtered to the
// owner.
func (s *SDK) SearchVector(ctx context.Context, name string, ownerID int64, vector []float32, limit int) ([]knowledge.Hit, error) {
	return s.search(ctx, name, vectorQuery(ownerID, vector), limit)
}

func (s *SDK) search(ctx context.Context, name string, query map[string]interface{}, limit int) ([]knowledge.Hit, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(name),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithSize(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("failed to search: %s", responseError(res.Body))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]knowledge.Hit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		hits = append(hits, knowledge.Hit{
			Fragment: h.Source.fragment(),
			Score:    h.Score,
		})
	}
	return hits, nil
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Score  float64  `json:"_score"`
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (d document) fragment() knowledge.Fragment {
	return knowledge.Fragment{
		Text:       d.Text,
		OwnerID:    d.Metadata.DocOwner,
		DocumentID: d.Metadata.DocID,
		FileName:   d.Metadata.FileName,
		PageNumber: d.Metadata.PageNumber,
	}
}

// decodeScanPage consumes one scroll page response and returns the cursor id
// plus the page's fragments.
func (s *SDK) decodeScanPage(res *esapi.Response) (string, []knowledge.Fragment, error) {
	defer res.Body.Close()

	if res.IsError() {
		return "", nil, fmt.Errorf("owner scan page failed: %s", responseError(res.Body))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return "", nil, fmt.Errorf("failed to decode scan page: %w", err)
	}

	fragments := make([]knowledge.Fragment, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		fragments = append(fragments, h.Source.fragment())
	}
	return sr.ScrollID, fragments, nil
}

func (s *SDK) indexExists(ctx context.Context, name string) (bool, error) {
	res, err := s.client.Indices.Exists(
		[]string{name},
		s.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status checking index existence: %s", res.Status())
	}
}

func (s *SDK) clearScroll(ctx context.Context, scrollID string) {
	if scrollID == "" {
		return
	}
	res, err := s.client.ClearScroll(
		s.client.ClearScroll.WithContext(ctx),
		s.client.ClearScroll.WithScrollID(scrollID),
	)
	if err != nil {
		log.Error(err, "failed to clear scroll cursor")
		return
	}
	res.Body.Close()
}

func responseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "unreadable error response"
	}
	return string(data)
}
