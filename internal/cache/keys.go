package cache

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key prefixes keep analysis and question entries in separate namespaces
const (
	AnalysisPrefix  = "analysis_"
	QuestionsPrefix = "questions_"
)

// AnalysisKey returns the cache key for an analysis or optimization of prompt
func AnalysisKey(prompt, mediaType, model string) string {
	return AnalysisPrefix + fingerprint(prompt, mediaType, model)
}

// QuestionsKey returns the cache key for the clarifying questions of prompt
func QuestionsKey(prompt, mediaType, model string) string {
	return QuestionsPrefix + fingerprint(prompt, mediaType, model)
}

// fingerprint normalizes case and surrounding whitespace of each part and
// hashes the joined result
func fingerprint(prompt, mediaType, model string) string {
	normalized := normalize(prompt) + "_" + normalize(mediaType) + "_" + normalize(model)
	return strconv.FormatUint(xxhash.Sum64String(normalized), 16)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
