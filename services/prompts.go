package services

import (
	"fmt"
	"strings"

	"page-match/models"
)

// MaxRecommendations caps how many books the model may propose per request.
const MaxRecommendations = 5

// systemPrompt frames every model call.
const systemPrompt = `You are an expert book recommendation assistant. Your job is to analyze user preferences, reading history, and current context to provide personalized book recommendations.

Consider the following when making recommendations:
1. Match genres to user preferences
2. Avoid books they've already read
3. Consider their current mood and available time
4. Suggest books with high ratings that fit their reading level
5. Provide specific, personalized reasons for each recommendation

Always respond with valid JSON in the requested format.`

// readerProfileReply is the shape the model must return for profile
// synthesis. FavoriteBooks is intentionally absent: that field is never
// model-derived and is preserved from the existing profile.
type readerProfileReply struct {
	FavoriteGenres   string `json:"favoriteGenres"`
	PreferredAuthors string `json:"preferredAuthors"`
	ReadingLevel     string `json:"readingLevel"`
	ReaderSummary    string `json:"readerSummary"`
}

func readerProfileSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"favoriteGenres":   map[string]any{"type": "string"},
			"preferredAuthors": map[string]any{"type": "string"},
			"readingLevel":     map[string]any{"type": "string"},
			"readerSummary":    map[string]any{"type": "string"},
		},
		"required":             []string{"favoriteGenres", "preferredAuthors", "readingLevel", "readerSummary"},
		"additionalProperties": false,
	}
}

// recommendationReply is one proposed book in the model's list reply.
type recommendationReply struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Reason string `json:"reason"`
}

type recommendationListReply struct {
	Recommendations []recommendationReply `json:"recommendations"`
}

func recommendationListSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recommendations": map[string]any{
				"type":     "array",
				"maxItems": MaxRecommendations,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":  map[string]any{"type": "string"},
						"author": map[string]any{"type": "string"},
						"reason": map[string]any{"type": "string"},
					},
					"required":             []string{"title", "author", "reason"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"recommendations"},
		"additionalProperties": false,
	}
}

// buildProfilePrompt embeds the history digest and the current profile
// into the profile-synthesis instruction.
func buildProfilePrompt(digest string, existing models.UserProfile) string {
	return fmt.Sprintf(`User reading history:
%s

Existing user profile:
%s
Please generate a profile of the user based on their reading habits, including things like favorite genres, preferred authors, general reading level, and a brief (playful, good-natured) summary of the user's reading habits that will be presented to the user. Your response should contain the fields favoriteGenres, preferredAuthors, readingLevel and readerSummary.`,
		digest, existing.Render())
}

// buildRecommendationPrompt combines profile, situational context and
// recent history into the recommendation-synthesis instruction.
func buildRecommendationPrompt(profile models.UserProfile, reqCtx models.RequestContext, recent []models.Recommendation, ratings []renderedRating) string {
	var recentStr strings.Builder
	for _, r := range recent {
		recentStr.WriteString(r.Render())
		recentStr.WriteString("\n")
	}
	var ratingsStr strings.Builder
	for _, r := range ratings {
		ratingsStr.WriteString(r.Render())
		ratingsStr.WriteString("\n")
	}

	return fmt.Sprintf(`User Profile:
%s
Current Request:
%s
Recent Recommendations:
%s
Recent Ratings:
%s
Please recommend one or more books, up to %d books that best match this user's profile and current request. Try not to recommend books the user is already likely to have read. Don't mention the user's reading level. For each recommendation, write a compelling reason to convince the reader to read the book, based on their profile. Keep the tone casual. If the user requests something extremely vulgar or excessively controversial, return an empty list.

Ensure each recommendation has a personalized reason based on the user's profile and request context.`,
		profile.Render(), reqCtx.Render(), recentStr.String(), ratingsStr.String(), MaxRecommendations)
}

// renderedRating is a rating joined with its catalog book for prompting.
type renderedRating struct {
	Title  string
	Author string
	Stars  int
}

func (r renderedRating) Render() string {
	return fmt.Sprintf("- %s by %s: %d/5", r.Title, r.Author, r.Stars)
}
