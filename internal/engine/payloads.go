package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/carverlabs/scribe/pkg/types"
)

// knowledgeSummaryMax caps the summary column on knowledge entries.
const knowledgeSummaryMax = 500

// derivedTitleMax bounds titles derived from content when an extraction
// arrives without one.
const derivedTitleMax = 100

// payloadBuilder produces the destination record for one staging extraction.
// Field names differ per destination table, so each table registers its own
// builder instead of sharing one shape-shifting conditional.
type payloadBuilder func(e *types.StagingExtraction, route types.Route) types.Record

var payloadBuilders = map[string]payloadBuilder{
	types.TableTodos:       buildTodo,
	types.TableBugs:        buildBug,
	types.TableJournal:     buildJournal,
	types.TableDocs:        buildDoc,
	types.TableConventions: buildConvention,
	types.TableKnowledge:   buildKnowledge,
	types.TableDecisions:   buildContentEntry,
	types.TableLessons:     buildContentEntry,
	types.TableSnippets:    buildSnippet,
}

// BuildPayload shapes an extraction into its destination record. The second
// return is false when the route's table has no registered builder, which
// means the routing taxonomy and the builder table have drifted apart.
func BuildPayload(e *types.StagingExtraction, route types.Route) (types.Record, bool) {
	builder, ok := payloadBuilders[route.Table]
	if !ok {
		return nil, false
	}
	return builder(e, route), true
}

// basePayload carries the fields every destination shares: title, initial
// status, provenance, and the staging metadata (including the content hash,
// which later hash dedup scans for) plus a back-reference to the staging row.
func basePayload(e *types.StagingExtraction, route types.Route) types.Record {
	meta := make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta["staging_id"] = e.ID

	return types.Record{
		"title":             extractionTitle(e),
		"status":            route.Status,
		"project_id":        e.ProjectID,
		"client_id":         e.ClientID,
		"source_session_id": e.SourceSessionID,
		"metadata":          meta,
	}
}

func buildTodo(e *types.StagingExtraction, route types.Route) types.Record {
	rec := basePayload(e, route)
	rec["description"] = e.Content
	rec["priority"] = metaString(e, "priority", "medium")
	return rec
}

func buildBug(e *types.StagingExtraction, route types.Route) types.Record {
	rec := basePayload(e, route)
	rec["description"] = e.Content
	rec["severity"] = metaString(e, "severity", "medium")
	return rec
}

func buildJournal(e *types.StagingExtraction, route types.Route) types.Record {
	rec := basePayload(e, route)
	rec["content"] = e.Content
	rec["entry_type"] = route.Kind
	return rec
}

func buildDoc(e *types.StagingExtraction, route types.Route) types.Record {
	rec := basePayload(e, route)
	rec["content"] = e.Content
	rec["doc_type"] = route.Kind
	return rec
}

func buildConvention(e *types.StagingExtraction, route types.Route) types.Record {
	rec := basePayload(e, route)
	rec["name"] = rec.String("title")
	delete(rec, "title")
	rec["content"] = e.Content
	rec["convention_type"] = route.Kind
	return rec
}

func buildKnowledge(e *types.StagingExtraction, route types.Route) types.Record {
	rec := basePayload(e, route)
	rec["content"] = e.Content
	rec["type"] = route.Kind
	summary := e.Summary
	if summary == "" {
		summary = e.Content
	}
	rec["summary"] = truncateRunes(summary, knowledgeSummaryMax)
	return rec
}

func buildContentEntry(e *types.StagingExtraction, route types.Route) types.Record {
	rec := basePayload(e, route)
	rec["content"] = e.Content
	return rec
}

func buildSnippet(e *types.StagingExtraction, route types.Route) types.Record {
	rec := basePayload(e, route)
	rec["content"] = e.Content
	rec["context"] = e.Summary
	return rec
}

// extractionTitle returns the staged title, or derives one from the first
// non-blank content line when the extractor sent none.
func extractionTitle(e *types.StagingExtraction) string {
	if t := strings.TrimSpace(e.Title); t != "" {
		return t
	}
	for _, line := range strings.Split(e.Content, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return truncateRunes(t, derivedTitleMax)
		}
	}
	return ""
}

func metaString(e *types.StagingExtraction, key, fallback string) string {
	if e.Metadata != nil {
		if s, ok := e.Metadata[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
