package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/lumina-cloud/taxotag/internal/domain"
	domtax "github.com/lumina-cloud/taxotag/internal/domain/taxonomy"
	"github.com/lumina-cloud/taxotag/internal/domain/vector"
	healthuc "github.com/lumina-cloud/taxotag/internal/usecase/health"
	reportuc "github.com/lumina-cloud/taxotag/internal/usecase/report"
	tagginguc "github.com/lumina-cloud/taxotag/internal/usecase/tagging"
)

// --- Stubs ---

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type stubImageEmbedder struct {
	err error
}

func (s *stubImageEmbedder) EmbedImage(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type stubFetcher struct{}

func (s *stubFetcher) FetchImage(_ context.Context, _, _ string) (string, error) {
	return "data:image/jpeg;base64,AAAA", nil
}

// --- Fixtures ---

func testTrees() (*domtax.Tree, []*domtax.Tree) {
	categories := domtax.NewTree("categories", []*domtax.Node{
		domtax.NewInternal("Tops", []*domtax.Node{
			domtax.NewLeaf("T-Shirt", vector.Vector{0.9, 0.43589}),
		}, vector.Vector{0.8, 0.6}),
	}, domain.ProfileBaseline, domtax.LabelEmbedding)

	sleeve := domtax.NewTree("sleeve", []*domtax.Node{
		domtax.NewLeaf("Long", vector.Vector{0.8, 0.6}),
		domtax.NewLeaf("Short", vector.Vector{0.4, 0.91652}),
	}, domain.ProfileFast, domtax.PathEmbedding)

	return categories, []*domtax.Tree{sleeve}
}

func newTestServer(embedErr error) *Server {
	categories, attributes := testTrees()

	text := &stubEmbedder{err: embedErr}
	image := &stubImageEmbedder{err: embedErr}

	tagging := tagginguc.New(&tagginguc.Config{
		CategoryTree:   categories,
		AttributeTrees: attributes,
		Category:       domain.EmbedderSet{Profile: domain.ProfileBaseline, Text: text, Image: image},
		Attribute:      domain.EmbedderSet{Profile: domain.ProfileFast, Text: text, Image: image},
		Fetcher:        &stubFetcher{},
		TextFields:     []string{"title"},
		TextFieldsFull: []string{"title", "description"},
		TagThreshold:   0.3,
		Logger:         zap.NewNop(),
	})

	report := reportuc.New(0.2, 0.25, zap.NewNop())
	health := healthuc.New(nil, nil)

	return NewServer(tagging, report, health, zap.NewNop())
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Routes(nil).ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestPredictItem(t *testing.T) {
	srv := newTestServer(nil)

	body := `{"fields":{"title":"Red Tee","description":"soft cotton"},"image_url":"https://shop.example/i.jpg"}`
	rec := doRequest(srv, http.MethodPost, "/api/v1/items:predict", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp predictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Categories) != 2 || resp.Categories[1] != "T-Shirt" {
		t.Errorf("categories = %v, want [Tops T-Shirt]", resp.Categories)
	}
	if resp.Attributes["sleeve"] != "Long" {
		t.Errorf("sleeve = %q, want Long", resp.Attributes["sleeve"])
	}
	if len(resp.Tags["sleeve"]) == 0 {
		t.Error("expected qualifying sleeve tags")
	}
}

func TestPredictItem_BadJSON(t *testing.T) {
	srv := newTestServer(nil)

	rec := doRequest(srv, http.MethodPost, "/api/v1/items:predict", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPredictItem_EmptyItem(t *testing.T) {
	srv := newTestServer(nil)

	rec := doRequest(srv, http.MethodPost, "/api/v1/items:predict", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != CodeValidationFailed {
		t.Errorf("code = %s, want %s", resp.Code, CodeValidationFailed)
	}
}

func TestPredictItem_ProvidersDown(t *testing.T) {
	srv := newTestServer(errors.New("api down"))

	body := `{"fields":{"title":"Red Tee"}}`
	rec := doRequest(srv, http.MethodPost, "/api/v1/items:predict", body)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	var resp errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != CodeEmbeddingUnavailable {
		t.Errorf("code = %s, want %s", resp.Code, CodeEmbeddingUnavailable)
	}
}

func TestTopTags(t *testing.T) {
	srv := newTestServer(nil)

	body := `{"rows":[
		{"tag":"red","category":"color","similarity":0.9},
		{"tag":"blue","category":"color","similarity":0.6},
		{"tag":"green","category":"color","similarity":0.3}
	]}`
	rec := doRequest(srv, http.MethodPost, "/api/v1/reports/top-tags", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp topTagsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	colors := resp.Categories["color"]
	if len(colors) != 2 || colors[0].Tag != "red" {
		t.Errorf("colors = %v, want red first of two", colors)
	}
}

func TestTopTags_BadJSON(t *testing.T) {
	srv := newTestServer(nil)

	rec := doRequest(srv, http.MethodPost, "/api/v1/reports/top-tags", `[]`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(nil)

	rec := doRequest(srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(healthuc.Healthy) {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil)

	// Prior traffic so the HTTP middleware has samples to expose.
	doRequest(srv, http.MethodGet, "/healthz", "")

	rec := doRequest(srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "taxotag_") {
		t.Error("expected taxotag metrics in exposition")
	}
}
