package analyzer

import "strings"

// Vocabularies are matched by plain substring containment against lowercased
// text, so a term inside a longer word still counts ("warmth" contains "warm").
// Existing scores depend on this; do not switch to word-boundary matching.

var styleTerms = []string{
	"photorealistic", "realistic", "cartoon", "illustration", "artistic", "painting",
	"abstract", "minimalist", "watercolor", "oil painting", "digital art", "sketch", "drawing",
}

var compositionTerms = []string{
	"centered", "close-up", "full body", "portrait", "landscape", "rule of thirds", "framed",
}

var backgroundTerms = []string{
	"indoor", "outdoor", "studio", "garden", "library", "beach", "forest", "city", "room",
	"background", "setting", "environment", "scene",
}

var qualityTerms = []string{
	"high quality", "high-resolution", "professional", "detailed", "sharp", "crisp", "8k", "4k",
}

var toneTerms = []string{
	"professional", "casual", "formal", "friendly", "serious", "humorous", "technical",
}

var formatTerms = []string{
	"paragraph", "list", "bullet points", "structured", "outline", "essay", "article",
}

var durationTerms = []string{
	"second", "minute", "hour", "duration", "length", "short", "long",
}

var technicalTerms = []string{
	"fps", "resolution", "bitrate", "codec", "format", "quality", "hd", "4k", "8k",
}

var colorTerms = []string{
	"red", "blue", "green", "yellow", "orange", "purple", "pink", "brown", "black", "white",
	"gray", "grey", "gold", "silver", "vibrant", "warm", "cool", "pastel", "neon",
	"orange tabby", "calico", "tabby",
}

var moodTerms = []string{
	"cozy", "dramatic", "peaceful", "energetic", "mysterious", "happy", "sad", "romantic",
	"playful", "serious", "relaxed", "tense", "atmosphere", "mood",
}

// contextWordThreshold is the word count above which a prompt is assumed to
// carry its own context
const contextWordThreshold = 10

// containsAny reports whether lower contains any of the terms
func containsAny(lower string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// extractTerms appends every term found in lower to dst, skipping terms
// already present, and returns the extended slice
func extractTerms(lower string, terms []string, dst []string) []string {
	for _, term := range terms {
		if strings.Contains(lower, term) && !containsTerm(dst, term) {
			dst = append(dst, term)
		}
	}
	return dst
}

func containsTerm(list []string, term string) bool {
	for _, t := range list {
		if t == term {
			return true
		}
	}
	return false
}

// HasStyle reports whether the text names a visual style
func HasStyle(text string) bool {
	return containsAny(strings.ToLower(text), styleTerms)
}

// HasComposition reports whether the text describes framing or composition
func HasComposition(text string) bool {
	return containsAny(strings.ToLower(text), compositionTerms)
}

// HasBackground reports whether the text describes a setting
func HasBackground(text string) bool {
	return containsAny(strings.ToLower(text), backgroundTerms)
}

// HasQualityIndicators reports whether the text asks for a quality level
func HasQualityIndicators(text string) bool {
	return containsAny(strings.ToLower(text), qualityTerms)
}

// HasTone reports whether the text sets a writing tone
func HasTone(text string) bool {
	return containsAny(strings.ToLower(text), toneTerms)
}

// HasFormat reports whether the text asks for an output format
func HasFormat(text string) bool {
	return containsAny(strings.ToLower(text), formatTerms)
}

// HasContext uses word count as a stand-in for context
func HasContext(text string) bool {
	return countWords(text) > contextWordThreshold
}

// HasDuration reports whether the text mentions length or timing
func HasDuration(text string) bool {
	return containsAny(strings.ToLower(text), durationTerms)
}

// HasTechnicalSpecs reports whether the text carries media technical specs
func HasTechnicalSpecs(text string) bool {
	return containsAny(strings.ToLower(text), technicalTerms)
}

// Details is the set of creative terms found in a text, per category, in
// discovery order
type Details struct {
	Colors      []string
	Styles      []string
	Backgrounds []string
	Moods       []string
}

// Add extracts every category from text and merges the terms into d
func (d *Details) Add(text string) {
	lower := strings.ToLower(text)
	d.Colors = extractTerms(lower, colorTerms, d.Colors)
	d.Styles = extractTerms(lower, styleTerms, d.Styles)
	d.Backgrounds = extractTerms(lower, backgroundTerms, d.Backgrounds)
	d.Moods = extractTerms(lower, moodTerms, d.Moods)
}

// ExtractDetails returns the creative terms found in text
func ExtractDetails(text string) Details {
	var d Details
	d.Add(text)
	return d
}
