package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/carverlabs/scribe/pkg/types"
)

// Line is one entry of a staging dump: a single JSON object per line of the
// file. Unknown buckets are accepted verbatim; the router decides what to do
// with them when the row is picked up.
type Line struct {
	Bucket          string         `json:"bucket"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	Summary         string         `json:"summary,omitempty"`
	ProjectID       string         `json:"project_id,omitempty"`
	ClientID        string         `json:"client_id,omitempty"`
	SourceSessionID string         `json:"source_session_id,omitempty"`
	Hash            string         `json:"hash,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// ParseLine decodes and validates a single dump line.
func ParseLine(data []byte) (*Line, error) {
	var line Line
	if err := json.Unmarshal(data, &line); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	line.Bucket = strings.TrimSpace(line.Bucket)
	line.Title = strings.TrimSpace(line.Title)

	if line.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if line.Title == "" {
		return nil, errors.New("title is required")
	}
	if strings.TrimSpace(line.Content) == "" {
		return nil, errors.New("content is required")
	}
	return &line, nil
}

// Extraction converts the line into a pending staging extraction. A top-level
// hash is folded into metadata so dedup sees it the same way it sees
// extractor-provided hashes.
func (l *Line) Extraction() *types.StagingExtraction {
	meta := make(map[string]any, len(l.Metadata)+1)
	for k, v := range l.Metadata {
		meta[k] = v
	}
	if l.Hash != "" {
		if _, ok := meta[types.MetaHash]; !ok {
			meta[types.MetaHash] = l.Hash
		}
	}
	if len(meta) == 0 {
		meta = nil
	}

	return &types.StagingExtraction{
		Bucket:          l.Bucket,
		Title:           l.Title,
		Content:         l.Content,
		Summary:         l.Summary,
		ProjectID:       l.ProjectID,
		ClientID:        l.ClientID,
		SourceSessionID: l.SourceSessionID,
		Status:          types.StagingPending,
		Metadata:        meta,
	}
}
