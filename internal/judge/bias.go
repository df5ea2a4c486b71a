package judge

import "strings"

// BiasMetrics holds raw, uninterpreted signals the verification layer can
// use to spot systematic judge bias. Per design decision these are exposed
// as-is rather than folded into a single fabricated bias score: a response
// length of 40 words does not by itself mean anything is wrong, and
// inventing a threshold to claim it does would outrun what these signals
// actually support.
type BiasMetrics struct {
	ResponseLength int      `json:"response_length_words"`
	OptionPosition int      `json:"option_position"` // index of the chosen decision among those offered in the prompt, -1 if not determinable
	StyleMarkers   []string `json:"style_markers,omitempty"`
}

var styleMarkerWords = []string{"certainly", "definitely", "clearly", "obviously", "undoubtedly"}

// computeBiasMetrics extracts raw bias telemetry from a judge's raw
// response text and parsed decision.
func computeBiasMetrics(raw string, decision string) BiasMetrics {
	m := BiasMetrics{
		ResponseLength: len(strings.Fields(raw)),
		OptionPosition: optionPosition(decision),
	}
	lower := strings.ToLower(raw)
	for _, w := range styleMarkerWords {
		if strings.Contains(lower, w) {
			m.StyleMarkers = append(m.StyleMarkers, w)
		}
	}
	return m
}

func optionPosition(decision string) int {
	order := []string{"pass", "fail", "warning"}
	for i, d := range order {
		if d == decision {
			return i
		}
	}
	return -1
}
