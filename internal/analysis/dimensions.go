// Package analysis runs the multi-dimension LLM evaluation of candidate
// posts: five parallel dimension agents followed by a meta-analysis
// coordinator that synthesizes the verdict.
package analysis

// Dimension names one evaluation axis.
type Dimension string

const (
	DimDemographics  Dimension = "demographics"
	DimPreferences   Dimension = "preferences"
	DimIntent        Dimension = "intent"
	DimRisk          Dimension = "risk"
	DimCompatibility Dimension = "compatibility"
)

// AllDimensions is the fixed agent set, in fan-out order.
var AllDimensions = []Dimension{
	DimDemographics,
	DimPreferences,
	DimIntent,
	DimRisk,
	DimCompatibility,
}

// dimensionPrompts holds the system prompt for each dimension agent. Every
// agent gets the same rendered post (plus author context when available) as
// the user message and must answer with a single JSON object.
var dimensionPrompts = map[Dimension]string{
	DimDemographics: `You evaluate the DEMOGRAPHICS dimension of a candidate post for lead scouting.
Infer what can reasonably be inferred about the author: rough age bracket, location hints, life stage, occupation hints.
Never fabricate specifics the text does not support; mark unknowns as "unknown".
Respond with a single JSON object:
{"age_bracket": string, "location_hints": [string], "life_stage": string, "occupation_hints": [string], "notes": string}`,

	DimPreferences: `You evaluate the PREFERENCES dimension of a candidate post for lead scouting.
Extract the author's stated or implied preferences: what they want, what they explicitly reject, budget or constraint signals.
Respond with a single JSON object:
{"wants": [string], "rejects": [string], "constraints": [string], "notes": string}`,

	DimIntent: `You evaluate the INTENT dimension of a candidate post for lead scouting.
Judge how actively the author is seeking what they describe: are they committed, exploring, venting, or hypothetical?
Respond with a single JSON object:
{"intent_level": "committed"|"exploring"|"venting"|"hypothetical", "timeframe": string, "evidence": [string], "notes": string}`,

	DimRisk: `You evaluate the RISK dimension of a candidate post for lead scouting.
Flag signals that make outreach inadvisable: hostility, rule-sensitivity, solicitation bans, vulnerable situations, spam likelihood.
Respond with a single JSON object:
{"risk_level": "low"|"medium"|"high", "flags": [string], "notes": string}`,

	DimCompatibility: `You evaluate the COMPATIBILITY dimension of a candidate post for lead scouting.
Judge how well the author's situation matches the watch's target profile described in the post context.
Respond with a single JSON object:
{"fit": "strong"|"partial"|"weak", "matches": [string], "mismatches": [string], "notes": string}`,
}

const metaSystemPrompt = `You are the meta-analysis coordinator for a lead-scouting pipeline.
You receive the structured outputs of several dimension agents that evaluated one candidate post.
Some dimensions may be marked failed; synthesize the best verdict from what succeeded, weighing missing dimensions as uncertainty.
Respond with a single JSON object:
{"recommendation": "suitable"|"needs_review"|"not_recommended",
 "confidence": number between 0 and 1,
 "reasoning": string,
 "strengths": [string],
 "concerns": [string],
 "suggested_approach": string}`
