package utils

import (
	"errors"
	"fmt"
	"math"
)

// SpamPromptFormat asks a chat model for a spam probability. The single %s
// verb receives the scoring text.
const SpamPromptFormat = `You are a spam detection system. Estimate the probability that the following email is unsolicited spam.
Respond with a JSON object containing:
- spam_probability: number between 0 and 1 (higher means more likely to be spam)

Email:
%s

Respond only with the JSON object and nothing else.`

// SpamSystemPrompt is sent as the system message where the API has one
const SpamSystemPrompt = "You are a spam detection system. Respond only with JSON."

// SpamProbabilityResponse is the reply schema requested by SpamPromptFormat
type SpamProbabilityResponse struct {
	SpamProbability *float64 `json:"spam_probability"`
	// Score is accepted from models that answer in the older schema
	Score *float64 `json:"score"`
}

// SpamPrompt renders the prompt for a scoring text
func SpamPrompt(text string) string {
	return fmt.Sprintf(SpamPromptFormat, text)
}

// ParseSpamProbability extracts the probability from a model reply and
// clamps it to [0,1]
func ParseSpamProbability(reply string) (float64, error) {
	var resp SpamProbabilityResponse
	if err := DecodeJSONObject(reply, &resp); err != nil {
		return 0, err
	}

	p := resp.SpamProbability
	if p == nil {
		p = resp.Score
	}
	if p == nil {
		return 0, errors.New("response has no spam_probability")
	}
	if math.IsNaN(*p) {
		return 0, errors.New("spam_probability is not a number")
	}

	return math.Min(1, math.Max(0, *p)), nil
}
