package story

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Spark is the oracle's structured answer for a new day's story.
type Spark struct {
	Title   string `json:"title"`
	Genre   string `json:"genre"`
	Incipit string `json:"incipit"`
}

// ParseSpark decodes the oracle's JSON answer. Markdown code fences around the
// object are tolerated; prose, invalid JSON or a missing field are not.
func ParseSpark(raw string) (*Spark, error) {
	out := strings.TrimSpace(raw)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	out = strings.TrimSpace(out)

	var spark Spark
	if err := json.Unmarshal([]byte(out), &spark); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOracleResponse, err)
	}

	spark.Title = strings.TrimSpace(spark.Title)
	spark.Genre = strings.TrimSpace(spark.Genre)
	spark.Incipit = strings.TrimSpace(spark.Incipit)

	required := []struct{ name, value string }{
		{"title", spark.Title},
		{"genre", spark.Genre},
		{"incipit", spark.Incipit},
	}
	for _, f := range required {
		if f.value == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedOracleResponse, f.name)
		}
	}

	return &spark, nil
}
