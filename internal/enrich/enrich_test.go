package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scantuner/internal/scanner"
)

func structuralBinding(name string) scanner.ParameterBinding {
	return scanner.ParameterBinding{
		Name:       name,
		Value:      scanner.FloatLiteral(0.5, "0.5"),
		Span:       scanner.Span{Start: 0, End: 3},
		Confidence: 1,
		Origin:     scanner.OriginStructural,
	}
}

func TestNeeded(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		prior     int
		want      bool
	}{
		{"zero bindings default threshold", 0, 0, true},
		{"two bindings default threshold", 0, 2, true},
		{"three bindings default threshold", 0, 3, false},
		{"custom threshold not reached", 5, 4, true},
		{"custom threshold reached", 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Enricher{Threshold: tt.threshold}
			prior := make([]scanner.ParameterBinding, tt.prior)
			assert.Equal(t, tt.want, e.Needed(prior))
		})
	}
}

func TestEnrichAcceptsProposals(t *testing.T) {
	reply := "Here are the tunable values:\n```json\n" +
		`{"parameters":[
			{"name":"volume_floor","value":250000,"confidence":0.8},
			{"name":"min_price","value":1.5,"confidence":1.7},
			{"name":"exchange","value":"NASDAQ","confidence":0.6},
			{"name":"include_etf","value":false,"confidence":-0.2}
		]}` + "\n```\nLet me know if you need more."
	e := New(&MockClient{Response: reply})

	res := e.Enrich(context.Background(), "df[df['gap'] > 0.5]", []scanner.ParameterBinding{structuralBinding("gap_min")})
	require.False(t, res.UsedFallback)
	require.Len(t, res.Bindings, 4)

	vf := res.Bindings[0]
	assert.Equal(t, "volume_floor", vf.Name)
	assert.Equal(t, scanner.LiteralInt, vf.Value.Kind)
	assert.Equal(t, int64(250000), vf.Value.Int)
	assert.Equal(t, 0.8, vf.Confidence)
	assert.Equal(t, scanner.OriginEnriched, vf.Origin)
	assert.False(t, vf.Span.Valid(), "enriched bindings carry no span")
	assert.Empty(t, vf.Value.Raw)

	mp := res.Bindings[1]
	assert.Equal(t, scanner.LiteralFloat, mp.Value.Kind)
	assert.Equal(t, 1.5, mp.Value.Float)
	assert.Equal(t, 1.0, mp.Confidence, "confidence clamps to 1")

	assert.Equal(t, scanner.LiteralString, res.Bindings[2].Value.Kind)
	assert.Equal(t, "NASDAQ", res.Bindings[2].Value.Str)

	ie := res.Bindings[3]
	assert.Equal(t, scanner.LiteralBool, ie.Value.Kind)
	assert.False(t, ie.Value.Bool)
	assert.Equal(t, 0.0, ie.Confidence, "confidence clamps to 0")
}

func TestEnrichDropsCollisionsAndJunk(t *testing.T) {
	reply := `{"parameters":[
		{"name":"gap_min","value":0.9,"confidence":0.5},
		{"name":"","value":1,"confidence":0.5},
		{"name":"bad name","value":2,"confidence":0.5},
		{"name":"9days","value":3,"confidence":0.5},
		{"name":"lists","value":[1,2],"confidence":0.5},
		{"name":"nothing","value":null,"confidence":0.5},
		{"name":"dup","value":1,"confidence":0.5},
		{"name":"dup","value":2,"confidence":0.5}
	]}`
	e := New(&MockClient{Response: reply})

	res := e.Enrich(context.Background(), "src", []scanner.ParameterBinding{structuralBinding("gap_min")})
	require.False(t, res.UsedFallback)
	require.Len(t, res.Bindings, 1)
	assert.Equal(t, "dup", res.Bindings[0].Name)
	assert.Equal(t, int64(1), res.Bindings[0].Value.Int, "first duplicate wins")
}

func TestEnrichEmptyProposalIsNotFallback(t *testing.T) {
	e := New(&MockClient{Response: `{"parameters":[]}`})
	res := e.Enrich(context.Background(), "src", nil)
	assert.False(t, res.UsedFallback)
	assert.Empty(t, res.Bindings)
}

func TestEnrichMalformedReply(t *testing.T) {
	for _, reply := range []string{
		"I could not find any parameters.",
		"{ this is not json }",
		`{"parameters": "oops"}`,
	} {
		e := New(&MockClient{Response: reply})
		res := e.Enrich(context.Background(), "src", nil)
		assert.True(t, res.UsedFallback, "reply %q", reply)
		assert.Empty(t, res.Bindings)
	}
}

func TestEnrichTransportError(t *testing.T) {
	mock := &MockClient{Err: errors.New("connection refused")}
	e := New(mock)
	res := e.Enrich(context.Background(), "src", nil)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, 1, mock.Calls, "single attempt, no retry")
}

func TestEnrichNoClient(t *testing.T) {
	var e Enricher
	res := e.Enrich(context.Background(), "src", nil)
	assert.True(t, res.UsedFallback)
	assert.Empty(t, res.Bindings)
}

type blockingClient struct{}

func (blockingClient) Complete(ctx context.Context, system, user string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestEnrichTimeout(t *testing.T) {
	e := &Enricher{Client: blockingClient{}, Timeout: 10 * time.Millisecond}
	res := e.Enrich(context.Background(), "src", nil)
	assert.True(t, res.UsedFallback)
}

type recordingClient struct {
	system string
	user   string
	reply  string
}

func (c *recordingClient) Complete(ctx context.Context, system, user string) (string, error) {
	c.system, c.user = system, user
	return c.reply, nil
}

func TestEnrichPromptCarriesContext(t *testing.T) {
	rec := &recordingClient{reply: `{"parameters":[]}`}
	e := New(rec)
	source := "mask = df['gap'] > 0.5\n"

	e.Enrich(context.Background(), source, []scanner.ParameterBinding{structuralBinding("gap_min")})
	assert.Contains(t, rec.system, "JSON")
	assert.Contains(t, rec.user, "gap_min")
	assert.Contains(t, rec.user, source)

	e.Enrich(context.Background(), source, nil)
	assert.Contains(t, rec.user, "Known parameters: none")
}

func TestMergeStructuralWins(t *testing.T) {
	sig := scanner.BuildSignature(scanner.KindCustom, []scanner.ParameterBinding{
		structuralBinding("gap_min"),
	})
	extra := []scanner.ParameterBinding{
		{Name: "gap_min", Value: scanner.FloatLiteral(0.9, ""), Confidence: 0.4, Origin: scanner.OriginEnriched},
		{Name: "volume_floor", Value: scanner.IntLiteral(250000, ""), Confidence: 0.8, Origin: scanner.OriginEnriched},
	}

	merged := Merge(&sig, extra)
	require.Equal(t, 2, merged.Len())

	gap, ok := merged.Lookup("gap_min")
	require.True(t, ok)
	assert.Equal(t, scanner.OriginStructural, gap.Origin)
	assert.Equal(t, 0.5, gap.Value.Float)

	vf, ok := merged.Lookup("volume_floor")
	require.True(t, ok)
	assert.Equal(t, scanner.OriginEnriched, vf.Origin)

	assert.NotEqual(t, sig.ContentHash(), merged.ContentHash())
	assert.Equal(t, []scanner.ParameterBinding{sig.Bindings[0]}, merged.Structural())
}

func TestMergeNothingKeepsHash(t *testing.T) {
	sig := scanner.BuildSignature(scanner.KindCustom, []scanner.ParameterBinding{
		structuralBinding("gap_min"),
	})
	merged := Merge(&sig, nil)
	assert.Equal(t, sig.ContentHash(), merged.ContentHash())
}

func TestOpenAIClientComplete(t *testing.T) {
	var gotAuth string
	var gotBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"parameters\":[]}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient("test-key", "gpt-4o-mini", srv.URL)
	reply, err := client.Complete(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"parameters":[]}`, reply)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "system prompt", gotBody.Messages[0].Content)
	assert.Equal(t, "user", gotBody.Messages[1].Role)
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient("test-key", "gpt-4o-mini", srv.URL)
	_, err := client.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response choices")
}
