package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	byNamespace map[string]*Response
	errs        map[string]error
	calls       []string
}

func (s *stubRetriever) Query(_ context.Context, q Query) (*Response, error) {
	label := NamespaceLabel(q.Namespace)
	s.calls = append(s.calls, label)
	if err := s.errs[label]; err != nil {
		return nil, err
	}
	return s.byNamespace[label], nil
}

func TestNamespaces(t *testing.T) {
	t.Parallel()

	got := Namespaces("ns1")
	require.Len(t, got, 3)
	assert.Equal(t, "ns1", *got[0])
	assert.Equal(t, "", *got[1])
	assert.Nil(t, got[2])

	assert.Len(t, Namespaces(""), 2)
}

func TestQueryWithFallback(t *testing.T) {
	t.Parallel()

	hit := &Response{Matches: []Match{{ID: "a", Score: 0.7}, {ID: "b", Score: 0.9}, {ID: "a", Score: 0.8}}}

	tests := []struct {
		name      string
		stub      *stubRetriever
		wantCalls []string
		wantIDs   []string
		wantErr   error
	}{
		{
			name:      "configured namespace answers",
			stub:      &stubRetriever{byNamespace: map[string]*Response{"ns1": hit}},
			wantCalls: []string{"ns1"},
			wantIDs:   []string{"b", "a"},
		},
		{
			name:      "empty then default",
			stub:      &stubRetriever{byNamespace: map[string]*Response{"ns1": {}, "<default>": hit}},
			wantCalls: []string{"ns1", "<default>"},
			wantIDs:   []string{"b", "a"},
		},
		{
			name: "errors fall through to unset",
			stub: &stubRetriever{
				byNamespace: map[string]*Response{"<unset>": hit},
				errs:        map[string]error{"ns1": errors.New("boom"), "<default>": errors.New("boom")},
			},
			wantCalls: []string{"ns1", "<default>", "<unset>"},
			wantIDs:   []string{"b", "a"},
		},
		{
			name:      "all empty",
			stub:      &stubRetriever{},
			wantCalls: []string{"ns1", "<default>", "<unset>"},
			wantErr:   ErrNoMatches,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, attempts, err := QueryWithFallback(context.Background(), nil, tt.stub, Query{TopK: 5}, "ns1")
			assert.Equal(t, tt.wantCalls, tt.stub.calls)
			assert.Len(t, attempts, len(tt.wantCalls))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			var ids []string
			for _, m := range resp.Matches {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestQueryWithFallbackAllErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("unavailable")
	stub := &stubRetriever{errs: map[string]error{"<default>": boom, "<unset>": boom}}

	_, _, err := QueryWithFallback(context.Background(), nil, stub, Query{}, "")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoMatches)
}

func TestDedupeKeepsHighestScore(t *testing.T) {
	t.Parallel()

	got := Dedupe([]Match{
		{ID: "a", Score: 0.5},
		{ID: "b", Score: 0.6},
		{ID: "a", Score: 0.9, Metadata: map[string]any{"v": 2}},
		{ID: "c", Score: 0.6},
	})

	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, 0.9, got[0].Score)
	assert.Equal(t, 2, got[0].Metadata["v"])
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestFitDimension(t *testing.T) {
	t.Parallel()

	v, truncated, err := FitDimension([]float32{1, 2, 3, 4}, 3)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, []float32{1, 2, 3}, v)

	_, _, err = FitDimension([]float32{1, 2}, 3)
	require.Error(t, err)

	v, truncated, err = FitDimension([]float32{1, 2}, 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, v, 2)
}
