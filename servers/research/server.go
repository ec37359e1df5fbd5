// Package research implements the paper-research tool provider: literature
// search with an on-disk paper cache, paper lookup, active-ingredient
// research and interaction analysis, exposed over the provider protocol.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/mcp"
	"github.com/effective-security/medichat/pkg/schema"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/medichat", "research")

// Version reported in the protocol handshake.
const Version = "1.0.0"

// Provider bundles the library and the searcher behind the protocol server.
type Provider struct {
	lib      *Library
	searcher Searcher
}

// NewProvider creates the research provider over a paper library and a
// search backend.
func NewProvider(lib *Library, searcher Searcher) *Provider {
	return &Provider{lib: lib, searcher: searcher}
}

// SearchPapersRequest is the input of the search_papers tool.
type SearchPapersRequest struct {
	Topic      string `json:"topic" jsonschema:"title=topic,description=The topic to search for: a drug name / active ingredient / condition."`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"title=max_results,description=Maximum number of results to retrieve. Default 5."`
}

// ExtractInfoRequest is the input of the extract_info tool.
type ExtractInfoRequest struct {
	PaperID string `json:"paper_id" jsonschema:"title=paper_id,description=The ID of the paper to look for."`
}

// ResearchIngredientRequest is the input of the research_active_ingredient tool.
type ResearchIngredientRequest struct {
	IngredientName string `json:"ingredient_name" jsonschema:"title=ingredient_name,description=Name of the active ingredient such as acetaminophen or ibuprofen."`
	ResearchFocus  string `json:"research_focus,omitempty" jsonschema:"title=research_focus,description=Specific aspect to research. Default: safety and efficacy."`
}

// AnalyzeInteractionsRequest is the input of the analyze_drug_interactions tool.
type AnalyzeInteractionsRequest struct {
	Ingredients []string `json:"ingredients" jsonschema:"title=ingredients,description=Active ingredient names to check for interactions."`
}

// IngredientSummary is the result of the research_active_ingredient tool.
type IngredientSummary struct {
	Ingredient        string   `json:"ingredient"`
	ResearchFocus     string   `json:"research_focus"`
	PapersFound       int      `json:"papers_found"`
	PaperIDs          []string `json:"paper_ids"`
	SafetyProfile     string   `json:"safety_profile"`
	EfficacyData      string   `json:"efficacy_data"`
	Contraindications []string `json:"contraindications"`
}

// Interaction is one identified ingredient interaction.
type Interaction struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// InteractionAnalysis is the result of the analyze_drug_interactions tool.
type InteractionAnalysis struct {
	IngredientsAnalyzed   []string      `json:"ingredients_analyzed"`
	PotentialInteractions []Interaction `json:"potential_interactions"`
	Warnings              []string      `json:"warnings"`
	Recommendations       []string      `json:"recommendations"`
}

// Server builds the protocol server with every tool and resource registered.
func (p *Provider) Server() *mcp.Server {
	srv := mcp.NewServer("research", Version).
		WithInstructions("Search the pharmaceutical literature, cache papers by topic and analyze active ingredients.")

	srv.RegisterTool(mcp.Tool{
		Name:        "search_papers",
		Description: "Search for papers on a topic and store their information in the topic's cache. Returns the list of paper IDs found.",
		InputSchema: inputSchema[SearchPapersRequest](),
	}, p.handleSearchPapers)

	srv.RegisterTool(mcp.Tool{
		Name:        "extract_info",
		Description: "Look up a saved paper by ID across all topic caches. Returns the paper information as JSON.",
		InputSchema: inputSchema[ExtractInfoRequest](),
	}, p.handleExtractInfo)

	srv.RegisterTool(mcp.Tool{
		Name:        "research_active_ingredient",
		Description: "Research an active ingredient's pharmaceutical properties and return a structured summary.",
		InputSchema: inputSchema[ResearchIngredientRequest](),
	}, p.handleResearchIngredient)

	srv.RegisterTool(mcp.Tool{
		Name:        "analyze_drug_interactions",
		Description: "Analyze potential interactions between active ingredients and return warnings and recommendations.",
		InputSchema: inputSchema[AnalyzeInteractionsRequest](),
	}, p.handleAnalyzeInteractions)

	srv.RegisterResource(mcp.Resource{
		URI:         "papers://folders",
		Name:        "folders",
		Description: "List of all topic folders with cached papers.",
		MimeType:    "text/markdown",
	}, func(ctx context.Context, uri string, vars map[string]string) (mcp.ReadResourceResult, error) {
		return markdownResult(uri, p.lib.FoldersMarkdown()), nil
	})

	srv.RegisterResourceTemplate(mcp.ResourceTemplate{
		URITemplate: "papers://{topic}",
		Name:        "topic",
		Description: "Detailed information about the cached papers of one topic.",
		MimeType:    "text/markdown",
	}, func(ctx context.Context, uri string, vars map[string]string) (mcp.ReadResourceResult, error) {
		return markdownResult(uri, p.lib.TopicMarkdown(vars["topic"])), nil
	})

	return srv
}

func (p *Provider) handleSearchPapers(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
	var req SearchPapersRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return mcp.CallToolResult{}, errors.WithMessage(err, "invalid search_papers arguments")
	}
	if req.Topic == "" {
		return mcp.CallToolResult{}, errors.New("topic is required")
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 5
	}

	ids, err := p.searchAndSave(ctx, req.Topic, req.MaxResults)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return jsonResult(ids)
}

func (p *Provider) searchAndSave(ctx context.Context, topic string, maxResults int) ([]string, error) {
	papers, err := p.searcher.SearchPapers(ctx, topic, maxResults)
	if err != nil {
		return nil, err
	}
	if err := p.lib.SavePapers(topic, papers); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(papers))
	for id := range papers {
		ids = append(ids, id)
	}
	logger.ContextKV(ctx, xlog.DEBUG, "topic", topic, "papers", len(ids))
	return ids, nil
}

func (p *Provider) handleExtractInfo(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
	var req ExtractInfoRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return mcp.CallToolResult{}, errors.WithMessage(err, "invalid extract_info arguments")
	}

	info, ok := p.lib.FindPaper(req.PaperID)
	if !ok {
		return textResult(fmt.Sprintf("There's no saved information related to paper %s.", req.PaperID)), nil
	}
	return jsonResult(info)
}

func (p *Provider) handleResearchIngredient(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
	var req ResearchIngredientRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return mcp.CallToolResult{}, errors.WithMessage(err, "invalid research_active_ingredient arguments")
	}
	if req.IngredientName == "" {
		return mcp.CallToolResult{}, errors.New("ingredient_name is required")
	}
	if req.ResearchFocus == "" {
		req.ResearchFocus = "safety and efficacy"
	}

	// A failed search still yields the known pharmacological profile.
	ids, err := p.searchAndSave(ctx, req.IngredientName+" "+req.ResearchFocus, 3)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "ingredient", req.IngredientName, "status", "search_failed", "err", err.Error())
		ids = nil
	}

	summary := IngredientSummary{
		Ingredient:    req.IngredientName,
		ResearchFocus: req.ResearchFocus,
		PapersFound:   len(ids),
		PaperIDs:      ids,
	}
	applyKnownProfile(&summary)
	return jsonResult(summary)
}

// applyKnownProfile fills in the established pharmacological data for the
// common OTC ingredients.
func applyKnownProfile(summary *IngredientSummary) {
	name := strings.ToLower(summary.Ingredient)
	switch {
	case strings.Contains(name, "acetaminophen"):
		summary.SafetyProfile = "Generally safe when used as directed. Maximum daily dose: 3000-4000mg. Hepatotoxic in overdose."
		summary.EfficacyData = "Effective analgesic and antipyretic. Onset: 30-60 minutes. Duration: 4-6 hours."
		summary.Contraindications = []string{"Severe liver disease", "Alcohol dependence"}
	case strings.Contains(name, "ibuprofen"):
		summary.SafetyProfile = "NSAID with anti-inflammatory properties. GI and cardiovascular risks with long-term use."
		summary.EfficacyData = "Effective for pain, inflammation, and fever. Onset: 20-30 minutes. Duration: 4-6 hours."
		summary.Contraindications = []string{"Active GI bleeding", "Severe heart failure", "Third trimester pregnancy"}
	case strings.Contains(name, "loratadine"):
		summary.SafetyProfile = "Non-sedating antihistamine. Minimal side effects. Safe for long-term use."
		summary.EfficacyData = "Effective for allergic rhinitis and urticaria. Onset: 1-3 hours. Duration: 24 hours."
		summary.Contraindications = []string{"Known hypersensitivity"}
	}
}

var (
	nsaids                 = []string{"ibuprofen", "naproxen", "aspirin", "diclofenac"}
	sedatingAntihistamines = []string{"diphenhydramine", "chlorpheniramine", "doxylamine"}
)

func (p *Provider) handleAnalyzeInteractions(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
	var req AnalyzeInteractionsRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return mcp.CallToolResult{}, errors.WithMessage(err, "invalid analyze_drug_interactions arguments")
	}

	set := make(map[string]bool, len(req.Ingredients))
	for _, ing := range req.Ingredients {
		set[strings.ToLower(ing)] = true
	}

	analysis := InteractionAnalysis{
		IngredientsAnalyzed: req.Ingredients,
	}

	nsaidCount := 0
	for _, n := range nsaids {
		if set[n] {
			nsaidCount++
		}
	}
	if nsaidCount > 1 {
		analysis.PotentialInteractions = append(analysis.PotentialInteractions, Interaction{
			Type:        "Increased NSAID exposure",
			Severity:    "Moderate to High",
			Description: "Multiple NSAIDs increase risk of GI bleeding and kidney damage",
		})
		analysis.Warnings = append(analysis.Warnings, "Avoid combining multiple NSAIDs")
	}

	if set["acetaminophen"] {
		analysis.Warnings = append(analysis.Warnings, "Limit alcohol consumption - increases liver toxicity risk")
	}

	for _, n := range sedatingAntihistamines {
		if set[n] {
			analysis.Warnings = append(analysis.Warnings, "May cause drowsiness - avoid driving or operating machinery")
			break
		}
	}

	if len(analysis.PotentialInteractions) == 0 {
		analysis.Recommendations = append(analysis.Recommendations, "No major interactions identified between these ingredients")
	}
	return jsonResult(analysis)
}

func textResult(text string) mcp.CallToolResult {
	return mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent(text)}}
}

func jsonResult(v any) (mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.CallToolResult{}, errors.WithMessage(err, "failed to marshal tool result")
	}
	return textResult(string(data)), nil
}

func markdownResult(uri, text string) mcp.ReadResourceResult {
	return mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{{URI: uri, MimeType: "text/markdown", Text: text}},
	}
}

// inputSchema reflects a request type into the tool's JSON input schema.
func inputSchema[T any]() json.RawMessage {
	s, err := schema.New(reflect.TypeOf(*new(T)))
	if err != nil {
		panic(err)
	}
	return s.Bytes()
}
