package research_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/mcp"
	"github.com/effective-security/medichat/mcp/localtransport"
	"github.com/effective-security/medichat/servers/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureSearcher serves canned results instead of hitting the search API.
type fixtureSearcher struct {
	topics []string
	papers map[string]research.PaperInfo
	err    error
}

func (s *fixtureSearcher) SearchPapers(ctx context.Context, topic string, maxResults int) (map[string]research.PaperInfo, error) {
	s.topics = append(s.topics, topic)
	if s.err != nil {
		return nil, s.err
	}
	return s.papers, nil
}

func ibuprofenPapers() map[string]research.PaperInfo {
	return map[string]research.PaperInfo{
		"2301.0001": {
			Title:     "Ibuprofen efficacy in tension headache",
			Authors:   []string{"A. Researcher", "B. Clinician"},
			Summary:   "A randomized trial of ibuprofen 200mg.",
			PDFURL:    "https://example.org/papers/2301.0001.pdf",
			Published: "2023-01-15",
		},
	}
}

func dialProvider(t *testing.T, searcher research.Searcher) *mcp.Session {
	t.Helper()
	ctx := context.Background()

	lib := research.NewLibrary(t.TempDir())
	provider := research.NewProvider(lib, searcher)

	clientTr, serverTr := localtransport.Pipe()
	go func() {
		_ = provider.Server().Serve(ctx, serverTr)
	}()

	sess, err := mcp.Dial(ctx, "research", clientTr, mcp.Info{Name: "medichat", Version: "dev"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func TestSearchAndExtract(t *testing.T) {
	ctx := context.Background()
	searcher := &fixtureSearcher{papers: ibuprofenPapers()}
	sess := dialProvider(t, searcher)

	res, err := sess.CallTool(ctx, "search_papers", json.RawMessage(`{"topic":"ibuprofen"}`))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var ids []string
	require.NoError(t, json.Unmarshal([]byte(res.JoinedText()), &ids))
	assert.Equal(t, []string{"2301.0001"}, ids)
	require.Len(t, searcher.topics, 1)
	assert.Equal(t, "ibuprofen", searcher.topics[0])

	// The saved paper is findable across topics.
	res, err = sess.CallTool(ctx, "extract_info", json.RawMessage(`{"paper_id":"2301.0001"}`))
	require.NoError(t, err)
	var info research.PaperInfo
	require.NoError(t, json.Unmarshal([]byte(res.JoinedText()), &info))
	assert.Equal(t, "Ibuprofen efficacy in tension headache", info.Title)

	res, err = sess.CallTool(ctx, "extract_info", json.RawMessage(`{"paper_id":"nope"}`))
	require.NoError(t, err)
	assert.Equal(t, "There's no saved information related to paper nope.", res.JoinedText())
}

func TestSearchPapersErrors(t *testing.T) {
	ctx := context.Background()
	sess := dialProvider(t, &fixtureSearcher{err: errors.New("api quota exceeded")})

	_, err := sess.CallTool(ctx, "search_papers", json.RawMessage(`{"topic":"aspirin"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api quota exceeded")

	_, err = sess.CallTool(ctx, "search_papers", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic is required")
}

func TestResources(t *testing.T) {
	ctx := context.Background()
	sess := dialProvider(t, &fixtureSearcher{papers: ibuprofenPapers()})

	// Empty library first.
	res, err := sess.ReadResource(ctx, "papers://folders")
	require.NoError(t, err)
	assert.Contains(t, res.JoinedText(), "No topics found.")

	_, err = sess.CallTool(ctx, "search_papers", json.RawMessage(`{"topic":"Ibuprofen Safety"}`))
	require.NoError(t, err)

	res, err = sess.ReadResource(ctx, "papers://folders")
	require.NoError(t, err)
	assert.Contains(t, res.JoinedText(), "- ibuprofen_safety")

	res, err = sess.ReadResource(ctx, "papers://ibuprofen_safety")
	require.NoError(t, err)
	text := res.JoinedText()
	assert.Contains(t, text, "# Papers on Ibuprofen Safety")
	assert.Contains(t, text, "**Paper ID**: 2301.0001")

	res, err = sess.ReadResource(ctx, "papers://unknown_topic")
	require.NoError(t, err)
	assert.Contains(t, res.JoinedText(), "No papers found for topic: unknown_topic")
}

func TestResearchActiveIngredient(t *testing.T) {
	ctx := context.Background()
	searcher := &fixtureSearcher{papers: ibuprofenPapers()}
	sess := dialProvider(t, searcher)

	res, err := sess.CallTool(ctx, "research_active_ingredient", json.RawMessage(`{"ingredient_name":"ibuprofen"}`))
	require.NoError(t, err)

	var summary research.IngredientSummary
	require.NoError(t, json.Unmarshal([]byte(res.JoinedText()), &summary))
	assert.Equal(t, "ibuprofen", summary.Ingredient)
	assert.Equal(t, "safety and efficacy", summary.ResearchFocus)
	assert.Equal(t, 1, summary.PapersFound)
	assert.Contains(t, summary.SafetyProfile, "NSAID")
	assert.Contains(t, summary.Contraindications, "Active GI bleeding")
	require.Len(t, searcher.topics, 1)
	assert.Equal(t, "ibuprofen safety and efficacy", searcher.topics[0])
}

func TestResearchActiveIngredientSearchFailure(t *testing.T) {
	ctx := context.Background()
	sess := dialProvider(t, &fixtureSearcher{err: errors.New("offline")})

	// The known profile is still returned when the search backend is down.
	res, err := sess.CallTool(ctx, "research_active_ingredient", json.RawMessage(`{"ingredient_name":"acetaminophen","research_focus":"interactions"}`))
	require.NoError(t, err)

	var summary research.IngredientSummary
	require.NoError(t, json.Unmarshal([]byte(res.JoinedText()), &summary))
	assert.Equal(t, 0, summary.PapersFound)
	assert.Equal(t, "interactions", summary.ResearchFocus)
	assert.Contains(t, summary.SafetyProfile, "Hepatotoxic in overdose")
}

func TestAnalyzeDrugInteractions(t *testing.T) {
	ctx := context.Background()
	sess := dialProvider(t, &fixtureSearcher{})

	res, err := sess.CallTool(ctx, "analyze_drug_interactions",
		json.RawMessage(`{"ingredients":["Ibuprofen","Aspirin","Acetaminophen","Doxylamine"]}`))
	require.NoError(t, err)

	var analysis research.InteractionAnalysis
	require.NoError(t, json.Unmarshal([]byte(res.JoinedText()), &analysis))
	require.Len(t, analysis.PotentialInteractions, 1)
	assert.Equal(t, "Increased NSAID exposure", analysis.PotentialInteractions[0].Type)
	assert.Contains(t, analysis.Warnings, "Avoid combining multiple NSAIDs")
	assert.Contains(t, analysis.Warnings, "Limit alcohol consumption - increases liver toxicity risk")
	assert.Contains(t, analysis.Warnings, "May cause drowsiness - avoid driving or operating machinery")
	assert.Empty(t, analysis.Recommendations)

	res, err = sess.CallTool(ctx, "analyze_drug_interactions", json.RawMessage(`{"ingredients":["Loratadine"]}`))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(res.JoinedText()), &analysis))
	assert.Empty(t, analysis.PotentialInteractions)
	assert.Contains(t, analysis.Recommendations, "No major interactions identified between these ingredients")
}

func TestToolSchemas(t *testing.T) {
	ctx := context.Background()
	sess := dialProvider(t, &fixtureSearcher{})

	tools, err := sess.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 4)

	byName := map[string]mcp.Tool{}
	for _, tool := range tools {
		byName[tool.Name] = tool
	}

	var schema struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	require.NoError(t, json.Unmarshal(byName["search_papers"].InputSchema, &schema))
	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Properties, "topic")
	assert.Contains(t, schema.Properties, "max_results")
	assert.Equal(t, []string{"topic"}, schema.Required)
}
