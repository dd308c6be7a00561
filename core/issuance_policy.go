package core

import (
	"context"
	"fmt"
	"math"
)

// AreaCapPolicy limits a mint to floor(area * creditsPerHectare) when the
// area cap is enabled.
type AreaCapPolicy struct{}

func (AreaCapPolicy) Evaluate(_ context.Context, req IssuanceRequest) (IssuanceDecision, error) {
	if req.Amount <= 0 {
		return IssuanceDecision{Allowed: false, Reason: "amount must be > 0"}, nil
	}
	if !req.CapByArea {
		return IssuanceDecision{Allowed: true}, nil
	}
	limit := AreaCap(req.AreaHectares, req.CreditsPerHectare)
	decision := IssuanceDecision{Cap: limit, Capped: true, Allowed: req.Amount <= limit}
	if !decision.Allowed {
		decision.Reason = fmt.Sprintf("amount %d exceeds area cap %d", req.Amount, limit)
	}
	return decision, nil
}

func AreaCap(areaHectares float64, creditsPerHectare float64) int64 {
	product := areaHectares * creditsPerHectare
	if product <= 0 || math.IsNaN(product) {
		return 0
	}
	if math.IsInf(product, 1) || product >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Floor(product))
}

var _ IssuancePolicy = AreaCapPolicy{}
