package services

import (
	"strings"
	"testing"

	"page-match/models"
)

func TestBuildProfilePromptEmbedsDigestAndProfile(t *testing.T) {
	existing := models.UserProfile{
		FavoriteGenres: "Fantasy",
		FavoriteBooks:  "The Hobbit",
	}
	prompt := buildProfilePrompt("DIGEST-SENTINEL", existing)

	if !strings.Contains(prompt, "DIGEST-SENTINEL") {
		t.Error("digest missing from profile prompt")
	}
	if !strings.Contains(prompt, "Favorite Genres: Fantasy") {
		t.Error("existing profile missing from profile prompt")
	}
	if !strings.Contains(prompt, "favoriteGenres, preferredAuthors, readingLevel and readerSummary") {
		t.Error("field instruction missing from profile prompt")
	}
}

func TestBuildRecommendationPromptEmbedsContext(t *testing.T) {
	profile := models.UserProfile{FavoriteGenres: "Fantasy"}
	reqCtx := models.RequestContext{
		Mood:          "adventurous",
		TimeAvailable: "a long weekend",
	}
	recent := []models.Recommendation{{Title: "Mistborn", Author: "Brandon Sanderson"}}
	ratings := []renderedRating{{Title: "Dune", Author: "Frank Herbert", Stars: 5}}

	prompt := buildRecommendationPrompt(profile, reqCtx, recent, ratings)

	for _, want := range []string{
		"Favorite Genres: Fantasy",
		"Current Mood: adventurous",
		"a long weekend",
		"- Mistborn by Brandon Sanderson",
		"- Dune by Frank Herbert: 5/5",
		"return an empty list",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildRecommendationPromptSkipsEmptyContextLines(t *testing.T) {
	prompt := buildRecommendationPrompt(models.UserProfile{}, models.RequestContext{}, nil, nil)
	if strings.Contains(prompt, "Current Mood:") {
		t.Error("empty context fields must not be rendered")
	}
}

func TestRecommendationListSchemaShape(t *testing.T) {
	schema := recommendationListSchema()
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("schema has no properties")
	}
	list, ok := props["recommendations"].(map[string]any)
	if !ok {
		t.Fatal("schema has no recommendations property")
	}
	if list["maxItems"] != MaxRecommendations {
		t.Errorf("maxItems = %v, want %d", list["maxItems"], MaxRecommendations)
	}
}
