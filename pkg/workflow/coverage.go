package workflow

import (
	"regexp"
	"strconv"
)

// Coverage holds the percentages extracted from test-runner output.
type Coverage struct {
	Lines      float64 `json:"lines"`
	Functions  float64 `json:"functions"`
	Branches   float64 `json:"branches"`
	Statements float64 `json:"statements"`
}

var coverageLine = regexp.MustCompile(`(?m)^\s*(Lines|Functions|Branches|Statements)\s*:\s*([0-9.]+)%`)

// ExtractCoverage parses tabular coverage output. A parsing miss is a
// degraded signal, not an error: unmatched fields stay zero.
func ExtractCoverage(output string) Coverage {
	var cov Coverage
	for _, match := range coverageLine.FindAllStringSubmatch(output, -1) {
		value, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		switch match[1] {
		case "Lines":
			cov.Lines = value
		case "Functions":
			cov.Functions = value
		case "Branches":
			cov.Branches = value
		case "Statements":
			cov.Statements = value
		}
	}
	return cov
}
