package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/lumina-cloud/taxotag/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

type mockImageEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockImageEmbedder) EmbedImage(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

type mockBudget struct {
	checkErr error
	recorded int64
}

func (m *mockBudget) Check(_ context.Context) error { return m.checkErr }
func (m *mockBudget) Record(tokens int64)           { m.recorded += tokens }
func (m *mockBudget) RemainingDaily() int64         { return 100 }
func (m *mockBudget) RemainingMonthly() int64       { return 1000 }

// --- Tests ---

func TestInstrumentedEmbed_PassThrough(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:   []float32{0.1, 0.2},
		TotalTokens: 7,
	}}
	budget := &mockBudget{}
	emb := NewInstrumentedEmbedder(inner, "nebius", "clip", budget, zap.NewNop())

	res, err := emb.Embed(context.Background(), "red dress")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 2 {
		t.Fatalf("unexpected embedding: %v", res.Embedding)
	}
	if budget.recorded != 7 {
		t.Errorf("recorded = %d, want 7", budget.recorded)
	}
}

func TestInstrumentedEmbed_BudgetRejects(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	budget := &mockBudget{checkErr: domain.ErrEmbeddingQuotaExceeded}
	emb := NewInstrumentedEmbedder(inner, "nebius", "clip", budget, zap.NewNop())

	_, err := emb.Embed(context.Background(), "red dress")
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("inner must not be called when budget rejects")
	}
}

func TestInstrumentedEmbed_NilBudget(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	emb := NewInstrumentedEmbedder(inner, "nebius", "clip", nil, zap.NewNop())

	if _, err := emb.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInstrumentedEmbedImage_PassThrough(t *testing.T) {
	inner := &mockImageEmbedder{result: domain.EmbeddingResult{
		Embedding:   []float32{0.3},
		TotalTokens: 12,
	}}
	budget := &mockBudget{}
	emb := NewInstrumentedImageEmbedder(inner, "nebius", "clip-vision", budget, zap.NewNop())

	res, err := emb.EmbedImage(context.Background(), "data:image/jpeg;base64,...")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embedding[0] != 0.3 {
		t.Fatalf("unexpected embedding: %v", res.Embedding)
	}
	if budget.recorded != 12 {
		t.Errorf("recorded = %d, want 12", budget.recorded)
	}
}

func TestInstrumentedEmbedImage_InnerError(t *testing.T) {
	inner := &mockImageEmbedder{err: errors.New("api down")}
	emb := NewInstrumentedImageEmbedder(inner, "nebius", "clip-vision", &mockBudget{}, zap.NewNop())

	if _, err := emb.EmbedImage(context.Background(), "ref"); err == nil {
		t.Fatal("expected error from inner embedder")
	}
}

func TestBudgetTracker_RejectWhenExceeded(t *testing.T) {
	b := NewBudgetTracker("nebius", 10, 0, BudgetActionReject, zap.NewNop())
	b.Record(10)

	err := b.Check(context.Background())
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestBudgetTracker_WarnAllowsThrough(t *testing.T) {
	b := NewBudgetTracker("nebius", 10, 0, BudgetActionWarn, zap.NewNop())
	b.Record(10)

	if err := b.Check(context.Background()); err != nil {
		t.Fatalf("warn action must allow the request, got %v", err)
	}
}

func TestBudgetTracker_Remaining(t *testing.T) {
	b := NewBudgetTracker("nebius", 100, 0, BudgetActionReject, zap.NewNop())
	b.Record(30)

	if got := b.RemainingDaily(); got != 70 {
		t.Errorf("RemainingDaily = %d, want 70", got)
	}
	if got := b.RemainingMonthly(); got != -1 {
		t.Errorf("RemainingMonthly = %d, want -1 (unlimited)", got)
	}

	b.Record(100)
	if got := b.RemainingDaily(); got != 0 {
		t.Errorf("RemainingDaily after overrun = %d, want 0", got)
	}
}
