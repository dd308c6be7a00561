package policyopa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/goliatone/go-blueledger/core"
	"github.com/open-policy-agent/opa/rego"
)

const (
	DefaultQuery      = "data.blueledger.issuance.result"
	DefaultModuleName = "blueledger_issuance.rego"
)

// DefaultModule caps a mint at floor(area * credits_per_hectare) when
// cap_by_area is set.
const DefaultModule = `package blueledger.issuance

import future.keywords.if

default result := {"allowed": false, "capped": false, "cap": 0, "reason": "amount must be > 0"}

result := {"allowed": true, "capped": false, "cap": 0, "reason": ""} if {
	input.amount > 0
	not input.cap_by_area
}

result := {"allowed": allowed, "capped": true, "cap": limit, "reason": ""} if {
	input.amount > 0
	input.cap_by_area
	limit := area_cap
	allowed := lte(input.amount, limit)
}

default area_cap := 0

area_cap := floor(product) if {
	product := input.area_hectares * input.credits_per_hectare
	product > 0
}
`

type Option func(*options)

type options struct {
	query      string
	moduleName string
	module     string
}

// WithModule replaces the built-in policy module.
func WithModule(name string, source string) Option {
	return func(o *options) {
		if strings.TrimSpace(source) == "" {
			return
		}
		o.module = source
		if strings.TrimSpace(name) != "" {
			o.moduleName = strings.TrimSpace(name)
		}
	}
}

func WithQuery(query string) Option {
	return func(o *options) {
		if strings.TrimSpace(query) != "" {
			o.query = strings.TrimSpace(query)
		}
	}
}

// IssuancePolicy evaluates mint requests against a prepared Rego query.
type IssuancePolicy struct {
	query rego.PreparedEvalQuery
}

func NewIssuancePolicy(ctx context.Context, opts ...Option) (*IssuancePolicy, error) {
	cfg := options{
		query:      DefaultQuery,
		moduleName: DefaultModuleName,
		module:     DefaultModule,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	prepared, err := rego.New(
		rego.Query(cfg.query),
		rego.Module(cfg.moduleName, cfg.module),
		rego.StrictBuiltinErrors(true),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policyopa: prepare issuance policy: %w", err)
	}
	return &IssuancePolicy{query: prepared}, nil
}

func (p *IssuancePolicy) Evaluate(ctx context.Context, req core.IssuanceRequest) (core.IssuanceDecision, error) {
	if p == nil {
		return core.IssuanceDecision{}, errors.New("policyopa: issuance policy is nil")
	}
	results, err := p.query.Eval(ctx, rego.EvalInput(issuanceInput(req)))
	if err != nil {
		return core.IssuanceDecision{}, fmt.Errorf("policyopa: evaluate issuance policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return core.IssuanceDecision{}, errors.New("policyopa: empty issuance policy result")
	}
	return decodeDecision(results[0].Expressions[0].Value, req.Amount)
}

func issuanceInput(req core.IssuanceRequest) map[string]any {
	return map[string]any{
		"project_id":          req.ProjectID,
		"attestation_id":      req.AttestationID,
		"area_hectares":       req.AreaHectares,
		"tco2e":               req.TCO2e,
		"amount":              req.Amount,
		"credits_per_hectare": req.CreditsPerHectare,
		"cap_by_area":         req.CapByArea,
	}
}

type policyResult struct {
	Allowed bool    `json:"allowed"`
	Capped  bool    `json:"capped"`
	Cap     float64 `json:"cap"`
	Reason  string  `json:"reason"`
}

func decodeDecision(value any, amount int64) (core.IssuanceDecision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return core.IssuanceDecision{}, fmt.Errorf("policyopa: encode issuance result: %w", err)
	}
	var result policyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return core.IssuanceDecision{}, fmt.Errorf("policyopa: decode issuance result: %w", err)
	}

	decision := core.IssuanceDecision{
		Allowed: result.Allowed,
		Capped:  result.Capped,
		Cap:     clampCap(result.Cap),
		Reason:  strings.TrimSpace(result.Reason),
	}
	if !decision.Allowed && decision.Reason == "" && decision.Capped {
		decision.Reason = fmt.Sprintf("amount %d exceeds area cap %d", amount, decision.Cap)
	}
	return decision, nil
}

func clampCap(value float64) int64 {
	if value <= 0 || math.IsNaN(value) {
		return 0
	}
	if value >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(value)
}

var _ core.IssuancePolicy = (*IssuancePolicy)(nil)
