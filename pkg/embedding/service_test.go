package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitahub/licitahub/pkg/retry"
)

type fakeProvider struct {
	name  string
	calls int
	fail  error
	dims  int
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) ModelName() string { return "fake/" + f.name }
func (f *fakeProvider) Dimensions() int   { return f.dims }

func (f *fakeProvider) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func TestGenerateOrdering(t *testing.T) {
	primary := &fakeProvider{name: "primary", dims: 2}
	svc := NewService([]*Tier{{Provider: primary, BatchSize: 2}}, nil, nil)

	result, err := svc.Generate(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, result.Vectors, 3)
	assert.Equal(t, float32(1), result.Vectors[0][0])
	assert.Equal(t, float32(2), result.Vectors[1][0])
	assert.Equal(t, float32(3), result.Vectors[2][0])
	assert.Equal(t, "fake/primary", result.ModelName)
	// 3 texts at batch size 2 means two upstream calls.
	assert.Equal(t, 2, primary.calls)
}

func TestGenerateEmptyInput(t *testing.T) {
	svc := NewService([]*Tier{{Provider: &fakeProvider{name: "p"}}}, nil, nil)
	result, err := svc.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Vectors)
}

func TestGenerateNoTiers(t *testing.T) {
	svc := NewService(nil, nil, nil)
	_, err := svc.Generate(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestGenerateTierFallback(t *testing.T) {
	// A non-429 4xx abandons the tier without retrying, so the fallback is
	// immediate.
	broken := &fakeProvider{
		name: "primary",
		fail: &retry.HTTPStatusError{StatusCode: 400, Message: "bad request"},
	}
	healthy := &fakeProvider{name: "secondary", dims: 2}
	svc := NewService([]*Tier{
		{Provider: broken, BatchSize: 4},
		{Provider: healthy, BatchSize: 4},
	}, nil, nil)

	result, err := svc.Generate(context.Background(), []string{"texto"})
	require.NoError(t, err)
	assert.Equal(t, "fake/secondary", result.ModelName)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, healthy.calls)
}

func TestGenerateAllTiersFail(t *testing.T) {
	fail := &retry.HTTPStatusError{StatusCode: 401, Message: "unauthorized"}
	svc := NewService([]*Tier{
		{Provider: &fakeProvider{name: "a", fail: fail}},
		{Provider: &fakeProvider{name: "b", fail: fail}},
	}, nil, nil)

	_, err := svc.Generate(context.Background(), []string{"texto"})
	assert.Error(t, err)
}

func TestTryTierSkipsBackoffAfterLastAttempt(t *testing.T) {
	// 5xx is retriable, so the tier burns all its attempts; the backoff
	// runs between attempts only, never after the final one.
	broken := &fakeProvider{
		name: "primary",
		fail: &retry.HTTPStatusError{StatusCode: 500, Message: "upstream down"},
	}
	svc := NewService([]*Tier{{Provider: broken, BatchSize: 4}}, nil, nil)

	var waits []time.Duration
	svc.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_, err := svc.Generate(context.Background(), []string{"texto"})
	require.Error(t, err)
	assert.Equal(t, maxAttempts, broken.calls)
	assert.Len(t, waits, maxAttempts-1)
}

func TestGenerateOne(t *testing.T) {
	svc := NewService([]*Tier{{Provider: &fakeProvider{name: "p", dims: 2}}}, nil, nil)
	vec, err := svc.GenerateOne(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, vec)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched lengths", []float32{1, 2}, []float32{1}, 0},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
