package engine

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ExportFormat selects an export encoding.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatYAML ExportFormat = "yaml"
)

// ParseExportFormat validates a format name.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case FormatJSON, FormatCSV, FormatYAML:
		return ExportFormat(s), nil
	default:
		return "", fmt.Errorf("unsupported export format: %q", s)
	}
}

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatYAML:
		return "application/yaml"
	default:
		return "application/json"
	}
}

// exportEnvelope is the document shape for JSON and YAML exports.
type exportEnvelope struct {
	Results  []SearchResult   `json:"results" yaml:"results"`
	Metadata *ResultsMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Export serializes a snapshot of results to the writer. It is a pure
// transform over the data it is given: callers hand it either a
// mid-flight snapshot or a completed session's ranked results.
func Export(w io.Writer, format ExportFormat, results []SearchResult, meta *ResultsMetadata) error {
	switch format {
	case FormatCSV:
		return exportCSV(w, results, meta)
	case FormatYAML:
		return yaml.NewEncoder(w).Encode(exportEnvelope{Results: results, Metadata: meta})
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(exportEnvelope{Results: results, Metadata: meta})
	default:
		return fmt.Errorf("unsupported export format: %q", format)
	}
}

var csvHeader = []string{
	"commit_hash", "file_path", "search_type", "relevance_score",
	"line_number", "matching_line", "author_name", "commit_date", "commit_message",
}

var csvMetaHeader = []string{
	"state", "total_count", "commits_walked", "files_walked",
	"skipped_items", "duration_ms",
}

// exportCSV writes one record per result. encoding/csv quotes fields
// containing delimiters, quotes, or newlines, which keeps free-text
// columns structurally valid. CSV has no out-of-band channel, so
// requested metadata rides along as extra columns on every record,
// keeping the output rectangular for strict parsers.
func exportCSV(w io.Writer, results []SearchResult, meta *ResultsMetadata) error {
	cw := csv.NewWriter(w)

	header := csvHeader
	if meta != nil {
		header = append(append([]string{}, csvHeader...), csvMetaHeader...)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		lineNumber := ""
		if r.LineNumber > 0 {
			lineNumber = strconv.Itoa(r.LineNumber)
		}
		record := []string{
			r.CommitHash,
			r.FilePath,
			string(r.SearchType),
			strconv.FormatFloat(r.RelevanceScore, 'f', -1, 64),
			lineNumber,
			r.MatchingLine,
			r.AuthorName,
			r.CommitDate.Format(time.RFC3339),
			r.CommitMessage,
		}
		if meta != nil {
			record = append(record,
				string(meta.State),
				strconv.Itoa(meta.TotalCount),
				strconv.Itoa(meta.CommitsWalked),
				strconv.Itoa(meta.FilesWalked),
				strconv.Itoa(meta.SkippedItems),
				strconv.FormatInt(meta.DurationMs, 10),
			)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportSession serializes a session's current results. The snapshot
// is taken once under the session lock, so a session transitioning to
// terminal mid-export cannot corrupt or duplicate entries already
// written.
func ExportSession(w io.Writer, s *Session, format ExportFormat, includeMetadata bool) error {
	results, meta := s.snapshotResults()
	var metaPtr *ResultsMetadata
	if includeMetadata {
		metaPtr = &meta
	}
	return Export(w, format, results, metaPtr)
}
