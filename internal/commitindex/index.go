package commitindex

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/noamw/histscan-mcp/internal/domain"
	"github.com/noamw/histscan-mcp/internal/gitio"
)

const (
	// MaxBatchSize is the maximum number of documents per batch.
	MaxBatchSize = 100

	// DefaultLookupLimit bounds a lookup when the caller gives no limit.
	DefaultLookupLimit = 10

	// MaxLookupLimit is the hard cap on lookup result size.
	MaxLookupLimit = 100
)

// Index is an in-memory Bleve index over one repository's commit
// metadata. It answers free-text lookups over messages and authors and
// resolves hash prefixes to full hashes. It is read-only once built.
//
// An Index is reference-counted: Build hands the creator one
// reference, acquire adds one, and Close releases one. The underlying
// Bleve index is closed when the last reference is released, so a
// handle handed out before a cache eviction stays queryable until its
// holder is done with it.
type Index struct {
	repo    string
	commits int
	builtAt time.Time

	mu    sync.Mutex
	index bleve.Index
	refs  int
}

// CreateIndexMapping creates the Bleve index mapping for commit documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Message - analyzed for full-text search
	messageField := bleve.NewTextFieldMapping()
	messageField.Analyzer = standard.Name
	messageField.Store = true
	messageField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.CommitFieldMessage, messageField)

	// Author - analyzed so "Alice Smith" matches "alice"
	authorField := bleve.NewTextFieldMapping()
	authorField.Analyzer = standard.Name
	authorField.Store = true
	docMapping.AddFieldMappingsAt(domain.CommitFieldAuthor, authorField)

	// Hash - keyword (not analyzed) so prefix queries see the full term
	hashField := bleve.NewTextFieldMapping()
	hashField.Analyzer = keyword.Name
	hashField.Store = true
	docMapping.AddFieldMappingsAt(domain.CommitFieldHash, hashField)

	// AuthorEmail - keyword, stored
	emailField := bleve.NewTextFieldMapping()
	emailField.Analyzer = keyword.Name
	emailField.Store = true
	docMapping.AddFieldMappingsAt(domain.CommitFieldAuthorEmail, emailField)

	// Repository - keyword, stored
	repoField := bleve.NewTextFieldMapping()
	repoField.Analyzer = keyword.Name
	repoField.Store = true
	docMapping.AddFieldMappingsAt(domain.CommitFieldRepository, repoField)

	// Date - stored for retrieval and range filtering
	dateField := bleve.NewDateTimeFieldMapping()
	dateField.Store = true
	docMapping.AddFieldMappingsAt(domain.CommitFieldDate, dateField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// Build lists the repository's commits and indexes their metadata into
// a fresh in-memory index.
func Build(ctx context.Context, reader gitio.RepositoryReader, repoPath, branch string) (*Index, error) {
	commits, err := reader.ListCommits(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}

	index, err := bleve.NewMemOnly(CreateIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	batch := index.NewBatch()
	batchSize := 0

	for _, c := range commits {
		if err := ctx.Err(); err != nil {
			_ = index.Close()
			return nil, err
		}

		doc := domain.CommitDocument{
			Hash:        c.Hash,
			Repository:  repoPath,
			Author:      c.Author,
			AuthorEmail: c.AuthorEmail,
			Date:        c.Date,
			Message:     c.Message,
		}

		if err := batch.Index(doc.Hash, doc); err != nil {
			continue
		}
		batchSize++

		if batchSize >= MaxBatchSize {
			if err := index.Batch(batch); err != nil {
				_ = index.Close()
				return nil, fmt.Errorf("batch index failed: %w", err)
			}
			batch = index.NewBatch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if err := index.Batch(batch); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("final batch index failed: %w", err)
		}
	}

	return &Index{
		index:   index,
		repo:    repoPath,
		commits: len(commits),
		builtAt: time.Now(),
		refs:    1,
	}, nil
}

// CommitCount returns the number of indexed commits.
func (x *Index) CommitCount() int {
	return x.commits
}

// BuiltAt returns when the index was built.
func (x *Index) BuiltAt() time.Time {
	return x.builtAt
}

// acquire takes an additional reference on the index.
func (x *Index) acquire() {
	x.mu.Lock()
	x.refs++
	x.mu.Unlock()
}

// Close releases one reference. The underlying index is closed when
// the last reference is released; further calls are no-ops.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.refs == 0 {
		return nil
	}
	x.refs--
	if x.refs == 0 {
		return x.index.Close()
	}
	return nil
}

// LookupRequest defines commit lookup parameters.
type LookupRequest struct {
	// Text is matched against commit messages and author names; author
	// hits are boosted.
	Text string

	// Author, when set, restricts hits to commits whose author name
	// matches it.
	Author string

	// Limit caps the number of hits. Zero means DefaultLookupLimit.
	Limit int
}

// LookupHit is one commit matched by a lookup.
type LookupHit struct {
	Hash      string    `json:"hash"`
	Author    string    `json:"author"`
	Email     string    `json:"author_email"`
	Date      time.Time `json:"date"`
	Message   string    `json:"message"`
	Score     float64   `json:"score"`
	Fragments []string  `json:"fragments,omitempty"`
}

// Lookup runs a free-text query over the indexed commit metadata and
// returns hits in descending score order.
func (x *Index) Lookup(req LookupRequest) ([]LookupHit, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("lookup text cannot be empty")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLookupLimit
	}
	if limit > MaxLookupLimit {
		limit = MaxLookupLimit
	}

	searchReq := bleve.NewSearchRequest(x.buildQuery(req))
	searchReq.Size = limit
	searchReq.Fields = []string{
		domain.CommitFieldHash,
		domain.CommitFieldAuthor,
		domain.CommitFieldAuthorEmail,
		domain.CommitFieldDate,
		domain.CommitFieldMessage,
	}
	searchReq.Highlight = bleve.NewHighlight()
	searchReq.Highlight.AddField(domain.CommitFieldMessage)

	results, err := x.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("lookup failed: %w", err)
	}

	hits := make([]LookupHit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		h := LookupHit{Hash: hit.ID, Score: hit.Score}
		if val, ok := hit.Fields[domain.CommitFieldAuthor].(string); ok {
			h.Author = val
		}
		if val, ok := hit.Fields[domain.CommitFieldAuthorEmail].(string); ok {
			h.Email = val
		}
		if val, ok := hit.Fields[domain.CommitFieldMessage].(string); ok {
			h.Message = val
		}
		if val, ok := hit.Fields[domain.CommitFieldDate].(string); ok {
			if parsed, err := time.Parse(time.RFC3339, val); err == nil {
				h.Date = parsed
			}
		}
		if fragments, ok := hit.Fragments[domain.CommitFieldMessage]; ok {
			h.Fragments = fragments
		}
		hits = append(hits, h)
	}

	return hits, nil
}

// buildQuery constructs a Bleve query from lookup parameters.
func (x *Index) buildQuery(req LookupRequest) query.Query {
	messageQuery := bleve.NewMatchQuery(req.Text)
	messageQuery.SetField(domain.CommitFieldMessage)

	authorQuery := bleve.NewMatchQuery(req.Text)
	authorQuery.SetField(domain.CommitFieldAuthor)
	authorQuery.SetBoost(2.0)

	textQuery := bleve.NewDisjunctionQuery(messageQuery, authorQuery)

	if req.Author == "" {
		return textQuery
	}

	authorFilter := bleve.NewMatchQuery(req.Author)
	authorFilter.SetField(domain.CommitFieldAuthor)

	return bleve.NewConjunctionQuery(textQuery, authorFilter)
}

// ResolveHash returns the full hashes of all commits whose hash starts
// with the given prefix.
func (x *Index) ResolveHash(prefix string) ([]string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, fmt.Errorf("hash prefix cannot be empty")
	}

	prefixQuery := bleve.NewPrefixQuery(prefix)
	prefixQuery.SetField(domain.CommitFieldHash)

	searchReq := bleve.NewSearchRequest(prefixQuery)
	searchReq.Size = MaxLookupLimit

	results, err := x.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("hash resolution failed: %w", err)
	}

	hashes := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		hashes = append(hashes, hit.ID)
	}
	return hashes, nil
}
