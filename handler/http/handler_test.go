package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	httpHdlr "knowbot/handler/http"
	"knowbot/src/core/knowledge"
	"knowbot/src/fsutil"
	"knowbot/src/infrastructure/job"
)

// stubStore keeps fragments in a slice; just enough store for routing tests.
type stubStore struct {
	fragments []knowledge.Fragment
}

func (s *stubStore) EnsureCollection(ctx context.Context, name string) (bool, error) {
	return false, nil
}

func (s *stubStore) DropCollection(ctx context.Context, name string) (knowledge.DropResult, error) {
	s.fragments = nil
	return knowledge.Dropped, nil
}

func (s *stubStore) AddFragments(ctx context.Context, name string, fragments []knowledge.IndexedFragment) error {
	for _, f := range fragments {
		s.fragments = append(s.fragments, f.Fragment)
	}
	return nil
}

func (s *stubStore) FragmentsByOwner(ctx context.Context, name string, ownerID int64) ([]knowledge.Fragment, error) {
	out := make([]knowledge.Fragment, 0)
	for _, f := range s.fragments {
		if f.OwnerID == ownerID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *stubStore) DeleteByDocument(ctx context.Context, name string, ownerID int64, documentID string) error {
	kept := s.fragments[:0]
	for _, f := range s.fragments {
		if f.OwnerID == ownerID && f.DocumentID == documentID {
			continue
		}
		kept = append(kept, f)
	}
	s.fragments = kept
	return nil
}

func (s *stubStore) SearchLexical(ctx context.Context, name string, ownerID int64, query string, limit int) ([]knowledge.Hit, error) {
	hits := make([]knowledge.Hit, 0)
	for _, f := range s.fragments {
		if f.OwnerID == ownerID && strings.Contains(f.Text, query) {
			hits = append(hits, knowledge.Hit{Fragment: f, Score: 1})
		}
	}
	return hits, nil
}

func (s *stubStore) SearchVector(ctx context.Context, name string, ownerID int64, vector []float32, limit int) ([]knowledge.Hit, error) {
	return nil, nil
}

type stubEnqueuer struct {
	payloads []job.IngestPayload
}

func (e *stubEnqueuer) EnqueueIngest(ctx context.Context, payload job.IngestPayload) (*job.Job, error) {
	e.payloads = append(e.payloads, payload)
	return &job.Job{ID: len(e.payloads)}, nil
}

// stubArchive keeps archived originals in a map keyed owner/document/file and
// records removals.
type stubArchive struct {
	objects map[string][]byte
	removed []string
}

func newStubArchive() *stubArchive {
	return &stubArchive{objects: make(map[string][]byte)}
}

func archiveKey(ownerID int64, documentID, fileName string) string {
	return fmt.Sprintf("%d/%s/%s", ownerID, documentID, fileName)
}

func (a *stubArchive) Fetch(ctx context.Context, ownerID int64, documentID, fileName string) ([]byte, error) {
	data, ok := a.objects[archiveKey(ownerID, documentID, fileName)]
	if !ok {
		return nil, fmt.Errorf("object not found")
	}
	return data, nil
}

func (a *stubArchive) Remove(ctx context.Context, ownerID int64, documentID, fileName string) error {
	key := archiveKey(ownerID, documentID, fileName)
	delete(a.objects, key)
	a.removed = append(a.removed, key)
	return nil
}

type stubProvider struct{}

func (stubProvider) AnswerFragment(ctx context.Context, fragment, query string) (string, error) {
	return "fragment answer", nil
}

func (stubProvider) Summarize(ctx context.Context, answers []string, query string) (string, error) {
	return "final answer", nil
}

func newTestRouter(t *testing.T, store knowledge.FragmentStore) (*gin.Engine, *stubEnqueuer, *stubArchive) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	retriever, err := knowledge.NewRetriever(store, nil, "kb", knowledge.StrategyLexical, 4)
	if err != nil {
		t.Fatalf("NewRetriever() error = %v", err)
	}

	enqueuer := &stubEnqueuer{}
	archive := newStubArchive()
	handler, err := httpHdlr.NewHandler(
		enqueuer,
		knowledge.NewCatalog(store, "kb"),
		knowledge.NewTokenCache(),
		retriever,
		knowledge.NewSynthesizer(stubProvider{}),
		nil,
		archive,
		fsutil.NewLocalFileStore(),
		t.TempDir(),
	)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	r := gin.New()
	handler.RegisterRoutes(r)
	return r, enqueuer, archive
}

func TestListDocumentsEmpty(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents?ownerId=42", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}

	var resp struct {
		Documents []struct {
			FileName string `json:"fileName"`
			Token    string `json:"token"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Documents) != 0 {
		t.Errorf("documents = %v, want empty", resp.Documents)
	}
}

func TestListDocumentsRequiresOwner(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestQueryNothingFound(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubStore{})

	body, _ := json.Marshal(map[string]interface{}{"ownerId": 42, "query": "anything"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/queries", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}
	if !strings.Contains(w.Body.String(), "No information found") {
		t.Errorf("body = %s, want the nothing-found reply", w.Body)
	}
}

func TestQuerySynthesizesAnswer(t *testing.T) {
	store := &stubStore{fragments: []knowledge.Fragment{
		{Text: "the market grew", OwnerID: 42, DocumentID: "doc-1"},
	}}
	r, _, _ := newTestRouter(t, store)

	body, _ := json.Marshal(map[string]interface{}{"ownerId": 42, "query": "market"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/queries", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}
	if !strings.Contains(w.Body.String(), "final answer") {
		t.Errorf("body = %s, want the synthesized answer", w.Body)
	}
}

func TestConfirmDeleteUnknownToken(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubStore{})

	body, _ := json.Marshal(map[string]interface{}{"ownerId": 42, "token": "stale"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/delete", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusNotFound, w.Body)
	}
	if !strings.Contains(w.Body.String(), "TOKEN_NOT_FOUND") {
		t.Errorf("body = %s, want TOKEN_NOT_FOUND code", w.Body)
	}
}

// List documents, take a token, confirm deletion, and verify the document
// is gone from the store and from the archive.
func TestListThenDeleteFlow(t *testing.T) {
	store := &stubStore{fragments: []knowledge.Fragment{
		{Text: "page one", OwnerID: 42, DocumentID: "doc-1", FileName: "report.pdf"},
		{Text: "page two", OwnerID: 42, DocumentID: "doc-1", FileName: "report.pdf", PageNumber: 1},
	}}
	r, _, archive := newTestRouter(t, store)
	archive.objects[archiveKey(42, "doc-1", "report.pdf")] = []byte("%PDF-1.4 original")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents?ownerId=42", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", w.Code, w.Body)
	}

	var listResp struct {
		Documents []struct {
			FileName string `json:"fileName"`
			Token    string `json:"token"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("unmarshal listing: %v", err)
	}
	if len(listResp.Documents) != 1 {
		t.Fatalf("listing has %d documents, want 1", len(listResp.Documents))
	}

	body, _ := json.Marshal(map[string]interface{}{
		"ownerId": 42,
		"token":   listResp.Documents[0].Token,
	})
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/delete", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), "Document removed") {
		t.Errorf("delete body = %s, want removal confirmation", w.Body)
	}

	if len(store.fragments) != 0 {
		t.Errorf("%d fragments survived the delete", len(store.fragments))
	}

	if got, want := archive.removed, []string{archiveKey(42, "doc-1", "report.pdf")}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("archive removals = %v, want %v", got, want)
	}
	if len(archive.objects) != 0 {
		t.Errorf("archived original survived the delete")
	}
}

func TestDownloadDocument(t *testing.T) {
	r, _, archive := newTestRouter(t, &stubStore{})
	archive.objects[archiveKey(42, "doc-1", "report.pdf")] = []byte("%PDF-1.4 original")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/content?ownerId=42&documentId=doc-1&fileName=report.pdf", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}
	if got := w.Body.String(); got != "%PDF-1.4 original" {
		t.Errorf("body = %q, want the archived bytes", got)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "report.pdf") {
		t.Errorf("Content-Disposition = %q, want the file name", got)
	}
}

func TestDownloadDocumentMissing(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/content?ownerId=42&documentId=doc-1&fileName=report.pdf", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusNotFound, w.Body)
	}
}

func TestCheckHealthReportsScratchStats(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubStore{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}

	var resp struct {
		Status       string `json:"status"`
		ScratchFiles *int   `json:"scratchFiles"`
		ScratchBytes *int64 `json:"scratchBytes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.ScratchFiles == nil || resp.ScratchBytes == nil {
		t.Errorf("body = %s, want scratch file and byte counts", w.Body)
	}
	if resp.ScratchFiles != nil && *resp.ScratchFiles != 0 {
		t.Errorf("scratchFiles = %d, want 0 for a fresh scratch dir", *resp.ScratchFiles)
	}
}

func TestUploadDocumentEnqueuesIngest(t *testing.T) {
	r, enqueuer, _ := newTestRouter(t, &stubStore{})

	var buf bytes.Buffer
	mw := newMultipart(t, &buf, map[string]string{"ownerId": "42"}, "report.pdf", []byte("%PDF-1.4 fake"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body)
	}
	if len(enqueuer.payloads) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(enqueuer.payloads))
	}

	p := enqueuer.payloads[0]
	if p.OwnerID != 42 || p.FileName != "report.pdf" || p.DocumentID == "" || p.Path == "" {
		t.Errorf("ingest payload = %+v", p)
	}
}

func newMultipart(t *testing.T, buf *bytes.Buffer, fields map[string]string, fileName string, content []byte) string {
	t.Helper()

	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file content: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return mw.FormDataContentType()
}
