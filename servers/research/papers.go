package research

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

const papersInfoFile = "papers_info.json"

// PaperInfo is the cached metadata of one paper.
type PaperInfo struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Summary   string   `json:"summary"`
	PDFURL    string   `json:"pdf_url"`
	Published string   `json:"published"`
}

// Library is the on-disk paper cache, one directory per topic with a JSON
// index of the papers stored for it.
type Library struct {
	dir string
}

// NewLibrary creates a library rooted at dir. The directory is created on
// first save.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

func topicSlug(topic string) string {
	return strings.ReplaceAll(strings.ToLower(topic), " ", "_")
}

func (l *Library) topicFile(topic string) string {
	return filepath.Join(l.dir, topicSlug(topic), papersInfoFile)
}

// SavePapers merges the given papers into the topic's index.
func (l *Library) SavePapers(topic string, papers map[string]PaperInfo) error {
	existing, err := l.LoadTopic(topic)
	if err != nil {
		existing = map[string]PaperInfo{}
	}
	for id, info := range papers {
		existing[id] = info
	}

	path := l.topicFile(topic)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithMessagef(err, "failed to create topic directory for %s", topic)
	}
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return errors.WithMessage(err, "failed to marshal papers index")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WithMessagef(err, "failed to write %s", path)
	}
	return nil
}

// LoadTopic reads the papers saved for a topic. A missing or corrupted index
// is an error; callers decide whether that is fatal.
func (l *Library) LoadTopic(topic string) (map[string]PaperInfo, error) {
	data, err := os.ReadFile(l.topicFile(topic))
	if err != nil {
		return nil, errors.WithMessagef(err, "no papers index for topic %s", topic)
	}
	var papers map[string]PaperInfo
	if err := json.Unmarshal(data, &papers); err != nil {
		return nil, errors.WithMessagef(err, "corrupted papers index for topic %s", topic)
	}
	return papers, nil
}

// FindPaper searches every topic directory for a paper ID.
func (l *Library) FindPaper(paperID string) (PaperInfo, bool) {
	for _, topic := range l.Folders() {
		papers, err := l.LoadTopic(topic)
		if err != nil {
			continue
		}
		if info, ok := papers[paperID]; ok {
			return info, true
		}
	}
	return PaperInfo{}, false
}

// Folders lists the topics that have a saved papers index, sorted.
func (l *Library) Folders() []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	var folders []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(l.dir, entry.Name(), papersInfoFile)); err == nil {
			folders = append(folders, entry.Name())
		}
	}
	sort.Strings(folders)
	return folders
}

// FoldersMarkdown renders the topic listing served at papers://folders.
func (l *Library) FoldersMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# Available Topics\n\n")

	folders := l.Folders()
	if len(folders) == 0 {
		sb.WriteString("No topics found.\n")
		return sb.String()
	}
	for _, folder := range folders {
		fmt.Fprintf(&sb, "- %s\n", folder)
	}
	sb.WriteString("\nRead papers://<topic> to access papers in that topic.\n")
	return sb.String()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// TopicMarkdown renders the paper listing served at papers://{topic}.
func (l *Library) TopicMarkdown(topic string) string {
	papers, err := l.LoadTopic(topic)
	if err != nil {
		return fmt.Sprintf("# No papers found for topic: %s\n\nTry searching for papers on this topic first.\n", topic)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Papers on %s\n\n", titleCase(strings.ReplaceAll(topicSlug(topic), "_", " ")))
	fmt.Fprintf(&sb, "Total papers: %d\n\n", len(papers))

	ids := make([]string, 0, len(papers))
	for id := range papers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		info := papers[id]
		fmt.Fprintf(&sb, "## %s\n", info.Title)
		fmt.Fprintf(&sb, "- **Paper ID**: %s\n", id)
		fmt.Fprintf(&sb, "- **Authors**: %s\n", strings.Join(info.Authors, ", "))
		fmt.Fprintf(&sb, "- **Published**: %s\n", info.Published)
		fmt.Fprintf(&sb, "- **PDF URL**: [%s](%s)\n\n", info.PDFURL, info.PDFURL)
		summary := info.Summary
		if len(summary) > 500 {
			summary = summary[:500] + "..."
		}
		fmt.Fprintf(&sb, "### Summary\n%s\n\n---\n\n", summary)
	}
	return sb.String()
}
