package tokenizer

import "context"

// Per-message framing overhead most chat backends charge in addition to
// content tokens.
const messageOverheadTokens = 4

// Flat costs for non-text parts, matching the usual "auto" detail charge.
const (
	imagePartTokens = 765
	videoPartTokens = 1024
	audioPartTokens = 512
)

// Estimator is a characters-per-token heuristic Counter. A ratio of ~4
// works well for English; ~3 for most other Latin languages.
type Estimator struct {
	CharsPerToken float64
}

// NewEstimator returns an Estimator with the given ratio, defaulting to 4.
func NewEstimator(charsPerToken float64) *Estimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &Estimator{CharsPerToken: charsPerToken}
}

// Count implements Counter.
func (e *Estimator) Count(_ context.Context, p Payload) (int, error) {
	total := messageOverheadTokens
	if len(p.Parts) > 0 {
		for _, part := range p.Parts {
			switch part.Type {
			case PartImage:
				total += imagePartTokens
			case PartVideo:
				total += videoPartTokens
			case PartAudio:
				total += audioPartTokens
			default:
				total += e.estimateText(part.Text)
			}
		}
	} else {
		total += e.estimateText(p.Content)
	}
	if p.Name != "" {
		total += e.estimateText(p.Name)
	}
	if len(p.ToolCalls) > 0 {
		total += e.estimateText(string(p.ToolCalls))
	}
	return total, nil
}

func (e *Estimator) estimateText(text string) int {
	if len(text) == 0 {
		return 0
	}
	// Round up so the estimate never undershoots the budget.
	return int(float64(len(text))/e.CharsPerToken) + 1
}
