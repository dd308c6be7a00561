package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

const maxEvidenceReferenceLength = 512

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// ContentID returns the CIDv1 (raw codec, sha2-256 multihash) of data.
func ContentID(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("core: content hash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// MetricsHash digests the canonical JSON encoding of metrics. Map keys are
// encoded in sorted order so equal payloads hash equally.
func MetricsHash(metrics map[string]float64) (string, error) {
	payload, err := json.Marshal(metrics)
	if err != nil {
		return "", fmt.Errorf("core: encode metrics: %w", err)
	}
	return ContentID(payload)
}

// VerifyMetricsHash recomputes the metrics digest and compares it to hash.
func VerifyMetricsHash(metrics map[string]float64, hash string) error {
	decoded, err := cid.Decode(strings.TrimSpace(hash))
	if err != nil {
		return fmt.Errorf("core: metrics hash is not a valid content id: %w", err)
	}
	expected, err := MetricsHash(metrics)
	if err != nil {
		return err
	}
	if decoded.String() != expected {
		return fmt.Errorf("core: metrics hash mismatch")
	}
	return nil
}

func validateMetrics(metrics map[string]float64) error {
	if len(metrics) == 0 {
		return ValidationError("metrics", "metrics are required")
	}
	for key, value := range metrics {
		if strings.TrimSpace(key) == "" {
			return ValidationError("metrics", "metric names must not be blank")
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return ValidationError("metrics."+key, "metric values must be finite")
		}
	}
	value, ok := metrics[MetricTCO2e]
	if !ok {
		return ValidationError("metrics."+MetricTCO2e, "metrics must include tCO2e")
	}
	if value < 0 {
		return ValidationError("metrics."+MetricTCO2e, "tCO2e must be >= 0")
	}
	return nil
}

func validateEvidenceReference(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ValidationError("evidence_reference", "evidence reference is required")
	}
	if len(ref) > maxEvidenceReferenceLength {
		return ValidationError("evidence_reference", "evidence reference is too long")
	}
	if strings.ContainsAny(ref, " \t\r\n") {
		return ValidationError("evidence_reference", "evidence reference must not contain whitespace")
	}
	return nil
}

type summarySigningPayload struct {
	AttestationID string  `json:"attestationId"`
	ProjectID     string  `json:"projectId"`
	TCO2e         float64 `json:"tCO2e"`
	MetricsHash   string  `json:"metricsHash"`
	Expiry        string  `json:"expiry"`
}

// SummarySigningPayload is the canonical byte form an oracle signs.
func SummarySigningPayload(summary OracleSummary) ([]byte, error) {
	payload, err := json.Marshal(summarySigningPayload{
		AttestationID: strings.TrimSpace(summary.AttestationID),
		ProjectID:     strings.TrimSpace(summary.ProjectID),
		TCO2e:         summary.TCO2e,
		MetricsHash:   strings.TrimSpace(summary.MetricsHash),
		Expiry:        summary.Expiry.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("core: encode summary payload: %w", err)
	}
	return payload, nil
}

func copyMetrics(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return append([]string(nil), in...)
}
