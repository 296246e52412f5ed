package metrics

import (
	"math"
	"time"
)

// Token prices used for cost estimation, in USD per 1K tokens.
const (
	InputCostPer1K  = 0.00006
	OutputCostPer1K = 0.00024
)

// Model call results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// EstimateCost returns the estimated USD cost of a model call, rounded to
// six decimal places.
func EstimateCost(inputTokens, outputTokens int) float64 {
	cost := float64(inputTokens)/1000*InputCostPer1K + float64(outputTokens)/1000*OutputCostPer1K
	return math.Round(cost*1e6) / 1e6
}

// DecisionRecorded emits one metric document per ticket decision.
func DecisionRecorded(ticketID, decision, method string, confidence float64, fallback bool, elapsed time.Duration) {
	fb := 0.0
	if fallback {
		fb = 1
	}
	New(Namespace).
		Dimension("Decision", decision).
		Dimension("AnalysisMethod", method).
		Metric("ProcessingMs", float64(elapsed.Milliseconds()), UnitMilliseconds).
		Metric("Confidence", confidence, UnitNone).
		Metric("FallbackUsed", fb, UnitCount).
		Count("Decisions").
		Property("ticketId", ticketID).
		Flush()
}

// ModelCall emits latency, token and cost metrics for one vision model call.
func ModelCall(model, result string, latency time.Duration, inputTokens, outputTokens int) {
	New(Namespace).
		Dimension("Model", model).
		Dimension("Result", result).
		Metric("LatencyMs", float64(latency.Milliseconds()), UnitMilliseconds).
		Metric("InputTokens", float64(inputTokens), UnitCount).
		Metric("OutputTokens", float64(outputTokens), UnitCount).
		Metric("EstimatedCostUSD", EstimateCost(inputTokens, outputTokens), UnitNone).
		Count("ModelCalls").
		Flush()
}

// Failure counts an integration failure by category.
func Failure(stage, category string) {
	New(Namespace).
		Dimension("Stage", stage).
		Dimension("Category", category).
		Count("Failures").
		Flush()
}
