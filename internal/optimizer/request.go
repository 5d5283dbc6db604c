package optimizer

import (
	"strings"
	"unicode/utf8"

	"github.com/zombar/promptscore/internal/analyzer"
	"github.com/zombar/promptscore/internal/models"
)

// Input limits for optimization requests
const (
	MinPromptLength            = 5
	MaxPromptLength            = 5000
	MaxTargetModelLength       = 100
	MaxAdditionalDetailsLength = 2000
)

// Request identifies a prompt to optimize
type Request struct {
	Prompt      string           `json:"original_prompt"`
	TargetModel string           `json:"target_model"`
	MediaType   models.MediaType `json:"media_type"`
}

// BuildRequest is a Request plus the user's answers to clarifying questions
type BuildRequest struct {
	Request
	Answers           models.UserAnswers `json:"user_answers,omitempty"`
	AdditionalDetails string             `json:"additional_details,omitempty"`
}

// Normalize trims the request fields and validates them. Errors wrap
// analyzer.ErrInvalidArgument.
func (r Request) Normalize() (Request, error) {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.TargetModel = strings.TrimSpace(r.TargetModel)

	n := utf8.RuneCountInString(r.Prompt)
	switch {
	case n == 0:
		return r, analyzer.InvalidArgument("original_prompt is required")
	case n < MinPromptLength:
		return r, analyzer.InvalidArgument("original_prompt must be at least %d characters", MinPromptLength)
	case n > MaxPromptLength:
		return r, analyzer.InvalidArgument("original_prompt must be at most %d characters", MaxPromptLength)
	}

	if r.TargetModel == "" {
		return r, analyzer.InvalidArgument("target_model is required")
	}
	if utf8.RuneCountInString(r.TargetModel) > MaxTargetModelLength {
		return r, analyzer.InvalidArgument("target_model must be at most %d characters", MaxTargetModelLength)
	}

	mt, err := models.ParseMediaType(string(r.MediaType))
	if err != nil {
		return r, analyzer.InvalidArgument("%v", err)
	}
	r.MediaType = mt

	return r, nil
}

// Normalize validates the embedded request and the additional details
func (r BuildRequest) Normalize() (BuildRequest, error) {
	req, err := r.Request.Normalize()
	if err != nil {
		return r, err
	}
	r.Request = req
	r.AdditionalDetails = strings.TrimSpace(r.AdditionalDetails)

	if utf8.RuneCountInString(r.AdditionalDetails) > MaxAdditionalDetailsLength {
		return r, analyzer.InvalidArgument("additional_details must be at most %d characters", MaxAdditionalDetailsLength)
	}
	return r, nil
}
