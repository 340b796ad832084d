// Package enrich asks an inference service for threshold parameters the
// structural extractor could not see (values buried in helper calls,
// config lookups, or arithmetic). Enrichment is strictly best-effort: any
// transport, timeout, or parse failure degrades to the structural-only
// result and is never an error for the caller.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"scantuner/internal/scanner"
)

const (
	// DefaultThreshold is the structural binding count below which
	// enrichment is worth a network round trip.
	DefaultThreshold = 3
	// DefaultTimeout bounds one inference call.
	DefaultTimeout = 15 * time.Second
)

const systemPrompt = `You identify tunable threshold parameters in stock scanner source code.
Reply with one JSON object of the form
{"parameters":[{"name":"<snake_case>","value":<number|string|bool>,"confidence":<0..1>}]}
and nothing else. Propose only parameters that are not in the known list.`

// Result is the outcome of one enrichment attempt. UsedFallback is set
// whenever the service could not contribute; Bindings is empty in that
// case and the caller proceeds with what it already has.
type Result struct {
	Bindings     []scanner.ParameterBinding
	UsedFallback bool
}

// Enricher proposes additional parameter bindings via a Client. The zero
// value (no client) falls back immediately, so callers that never
// configure an endpoint behave exactly like structural-only extraction.
type Enricher struct {
	Client Client
	// Threshold is the structural binding count below which Needed reports
	// true. DefaultThreshold when zero.
	Threshold int
	// Timeout bounds each Complete call. DefaultTimeout when zero.
	Timeout time.Duration
	Logger  *zap.Logger
}

// New builds an enricher over client with defaults for everything else.
func New(client Client) *Enricher {
	return &Enricher{Client: client}
}

// Needed reports whether prior has too few bindings to skip enrichment.
func (e *Enricher) Needed(prior []scanner.ParameterBinding) bool {
	k := e.Threshold
	if k <= 0 {
		k = DefaultThreshold
	}
	return len(prior) < k
}

// Enrich requests additional bindings for source. prior is the structural
// set already extracted; names colliding with it are dropped from the
// reply (the structural binding has a verifiable span, the proposal does
// not). Returned bindings carry OriginEnriched, no span, and the service's
// confidence clamped to [0,1].
func (e *Enricher) Enrich(ctx context.Context, source string, prior []scanner.ParameterBinding) Result {
	log := e.logger()
	if e.Client == nil {
		log.Debug("enrichment skipped: no client configured")
		return Result{UsedFallback: true}
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := e.Client.Complete(ctx, systemPrompt, userPrompt(source, prior))
	if err != nil {
		log.Warn("enrichment fallback: completion failed", zap.Error(err))
		return Result{UsedFallback: true}
	}

	proposed, err := parseReply(reply)
	if err != nil {
		log.Warn("enrichment fallback: unparseable reply", zap.Error(err))
		return Result{UsedFallback: true}
	}

	known := make(map[string]bool, len(prior))
	for _, b := range prior {
		known[b.Name] = true
	}
	var out []scanner.ParameterBinding
	for _, b := range proposed {
		if known[b.Name] {
			continue
		}
		known[b.Name] = true
		out = append(out, b)
	}
	log.Debug("enrichment complete",
		zap.Int("proposed", len(proposed)),
		zap.Int("accepted", len(out)))
	return Result{Bindings: out}
}

func (e *Enricher) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// Merge appends enriched bindings to a structural signature, rebuilding
// the hash. Name collisions keep the earlier (structural) binding.
func Merge(sig *scanner.Signature, extra []scanner.ParameterBinding) scanner.Signature {
	if len(extra) == 0 {
		return *sig
	}
	all := make([]scanner.ParameterBinding, 0, sig.Len()+len(extra))
	all = append(all, sig.Bindings...)
	all = append(all, extra...)
	return scanner.BuildSignature(sig.Kind, all)
}

func userPrompt(source string, prior []scanner.ParameterBinding) string {
	var sb strings.Builder
	sb.WriteString("Known parameters: ")
	if len(prior) == 0 {
		sb.WriteString("none")
	} else {
		names := make([]string, len(prior))
		for i, b := range prior {
			names[i] = b.Name
		}
		sb.WriteString(strings.Join(names, ", "))
	}
	sb.WriteString("\n\nScanner source:\n```python\n")
	sb.WriteString(source)
	sb.WriteString("\n```\n")
	return sb.String()
}

type replyParam struct {
	Name       string  `json:"name"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

type enrichReply struct {
	Parameters []replyParam `json:"parameters"`
}

// parseReply pulls the first {...} object out of the reply (models wrap
// JSON in prose and markdown fences) and decodes it. Entries with missing
// names or non-scalar values are dropped, not fatal.
func parseReply(reply string) ([]scanner.ParameterBinding, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return nil, errNoJSON
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(reply[start : end+1])))
	dec.UseNumber()
	var parsed enrichReply
	if err := dec.Decode(&parsed); err != nil {
		return nil, err
	}

	var out []scanner.ParameterBinding
	for _, p := range parsed.Parameters {
		if !validName(p.Name) {
			continue
		}
		lit, ok := decodeValue(p.Value)
		if !ok {
			continue
		}
		out = append(out, scanner.ParameterBinding{
			Name:       p.Name,
			Value:      lit,
			Confidence: clamp01(p.Confidence),
			Origin:     scanner.OriginEnriched,
		})
	}
	return out, nil
}

var errNoJSON = jsonError("no JSON object in reply")

type jsonError string

func (e jsonError) Error() string { return string(e) }

// decodeValue maps a decoded JSON scalar onto a Literal. Raw stays empty:
// an enriched value has no source form to splice back.
func decodeValue(v any) (scanner.Literal, bool) {
	switch val := v.(type) {
	case string:
		return scanner.StringLiteral(val, ""), true
	case bool:
		return scanner.BoolLiteral(val, ""), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return scanner.IntLiteral(i, ""), true
		}
		if f, err := val.Float64(); err == nil {
			return scanner.FloatLiteral(f, ""), true
		}
	}
	return scanner.Literal{}, false
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
