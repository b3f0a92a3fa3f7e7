package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/internal/taxonomy"
	"github.com/carverlabs/scribe/pkg/types"
)

func newTestClassifier(t *testing.T) (*PhaseClassifier, storage.Store) {
	t.Helper()
	store := newEngineTestStore(t)
	projects := taxonomy.NewService(store, time.Minute)
	return NewPhaseClassifier(store, projects), store
}

func seedPhase(t *testing.T, store storage.Store, id, projectID, name string, seq int) {
	t.Helper()
	rec := types.Record{"id": id, "project_id": projectID, "name": name, "sequence": seq}
	if _, err := store.Insert(context.Background(), types.TablePhases, rec); err != nil {
		t.Fatalf("seeding phase %s: %v", id, err)
	}
}

func seedPhaseItem(t *testing.T, store storage.Store, id, phaseID, title, status string) {
	t.Helper()
	rec := types.Record{"id": id, "phase_id": phaseID, "title": title, "status": status}
	if _, err := store.Insert(context.Background(), types.TablePhaseItems, rec); err != nil {
		t.Fatalf("seeding phase item %s: %v", id, err)
	}
}

func TestProjectPhasesBuildsKeywordSets(t *testing.T) {
	c, store := newTestClassifier(t)
	seedPhase(t, store, "ph-1", "proj-parent", "Authentication Work", 1)
	seedPhaseItem(t, store, "it-1", "ph-1", "implement login endpoint", types.PhaseItemPending)
	seedPhaseItem(t, store, "it-2", "ph-1", "add password reset", types.PhaseItemPending)

	phases, err := c.ProjectPhases(context.Background(), "proj-parent")
	if err != nil {
		t.Fatalf("ProjectPhases failed: %v", err)
	}
	if len(phases) != 1 {
		t.Fatalf("got %d phases, want 1", len(phases))
	}

	for _, want := range []string{"authentication", "work", "implement", "login", "endpoint", "add", "password", "reset"} {
		if _, ok := phases[0].Keywords[want]; !ok {
			t.Errorf("keyword set missing %q: %v", want, phases[0].Keywords)
		}
	}
}

func TestProjectPhasesServesFromCache(t *testing.T) {
	c, store := newTestClassifier(t)
	seedPhase(t, store, "ph-1", "proj-parent", "Design", 1)

	ctx := context.Background()
	if _, err := c.ProjectPhases(ctx, "proj-parent"); err != nil {
		t.Fatalf("first build failed: %v", err)
	}

	// A phase added behind the cache stays invisible until invalidation.
	seedPhase(t, store, "ph-2", "proj-parent", "Build", 2)
	phases, err := c.ProjectPhases(ctx, "proj-parent")
	if err != nil {
		t.Fatalf("cached read failed: %v", err)
	}
	if len(phases) != 1 {
		t.Errorf("cached read returned %d phases, want 1", len(phases))
	}

	c.InvalidateProject("proj-parent")
	phases, err = c.ProjectPhases(ctx, "proj-parent")
	if err != nil {
		t.Fatalf("post-invalidate read failed: %v", err)
	}
	if len(phases) != 2 {
		t.Errorf("post-invalidate read returned %d phases, want 2", len(phases))
	}
}

func TestCalculatePhaseMatch(t *testing.T) {
	c, _ := newTestClassifier(t)
	phase := PhaseKeywords{
		Phase:    &types.Phase{ID: "ph-1", Name: "Auth"},
		Keywords: map[string]struct{}{"login": {}, "password": {}, "session": {}},
	}

	cases := []struct {
		name  string
		title string
		want  float64
	}{
		{"all terms match", "login password", 1.0},
		{"half the terms match", "login button", 0.5},
		{"no terms match", "deploy pipeline", 0.0},
		{"empty title", "", 0.0},
		{"only filler", "the of and", 0.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.CalculatePhaseMatch(tc.title, phase)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("CalculatePhaseMatch(%q) = %v, want %v", tc.title, got, tc.want)
			}
		})
	}

	empty := PhaseKeywords{Phase: &types.Phase{ID: "ph-2", Name: "Empty"}}
	if got := c.CalculatePhaseMatch("login password", empty); got != 0.0 {
		t.Errorf("phase without keywords scored %v, want 0", got)
	}
}

func TestFindBestPhase(t *testing.T) {
	c, _ := newTestClassifier(t)
	phases := []PhaseKeywords{
		{
			Phase:    &types.Phase{ID: "ph-auth", Name: "Auth"},
			Keywords: map[string]struct{}{"login": {}, "password": {}},
		},
		{
			Phase:    &types.Phase{ID: "ph-deploy", Name: "Deploy"},
			Keywords: map[string]struct{}{"deploy": {}, "pipeline": {}, "release": {}},
		},
		{
			// Same keywords as ph-auth so equal scores exercise the
			// first-wins tie rule.
			Phase:    &types.Phase{ID: "ph-auth-2", Name: "Auth Again"},
			Keywords: map[string]struct{}{"login": {}, "password": {}},
		},
	}

	match := c.FindBestPhase("fix login password bug", phases)
	if match == nil || match.PhaseID != "ph-auth" {
		t.Fatalf("best phase = %+v, want ph-auth (first among ties)", match)
	}

	match = c.FindBestPhase("deploy release pipeline", phases)
	if match == nil || match.PhaseID != "ph-deploy" {
		t.Fatalf("best phase = %+v, want ph-deploy", match)
	}

	// One matching term out of six stays under the minimum score.
	if match := c.FindBestPhase("general cleanup around login handling flow", phases); match != nil {
		t.Errorf("weak match should return nil, got %+v", match)
	}
}

func TestAssignPhases(t *testing.T) {
	c, store := newTestClassifier(t)
	ctx := context.Background()
	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	seedPhase(t, store, "ph-auth", "proj-parent", "Authentication", 1)
	seedPhaseItem(t, store, "it-1", "ph-auth", "login endpoint", types.PhaseItemPending)

	seedWorkItem(t, store, types.TableTodos, "td-1", "proj-child", "fix login endpoint timeout", "open", base)
	seedWorkItem(t, store, types.TableTodos, "td-2", "proj-child", "refactor billing exports", "open", base.Add(time.Minute))

	// Already assigned; must never be reassigned.
	assigned := types.Record{
		"id": "td-3", "project_id": "proj-child", "title": "login retry logic",
		"status": "open", "phase_id": "ph-other", "created_at": base.Add(2 * time.Minute),
	}
	if _, err := store.Insert(ctx, types.TableTodos, assigned); err != nil {
		t.Fatalf("seeding assigned todo: %v", err)
	}

	report, err := c.AssignPhases(ctx, types.TableTodos, "proj-child", "proj-parent")
	if err != nil {
		t.Fatalf("AssignPhases failed: %v", err)
	}
	if report.Scanned != 2 || report.Assigned != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Errorf("report = %+v, want scanned 2 assigned 1 skipped 1", report)
	}

	got, err := store.Get(ctx, types.TableTodos, "td-1")
	if err != nil {
		t.Fatalf("get td-1: %v", err)
	}
	if got.String("phase_id") != "ph-auth" {
		t.Errorf("td-1 phase_id = %q, want ph-auth", got.String("phase_id"))
	}

	got, err = store.Get(ctx, types.TableTodos, "td-3")
	if err != nil {
		t.Fatalf("get td-3: %v", err)
	}
	if got.String("phase_id") != "ph-other" {
		t.Errorf("td-3 was reassigned to %q", got.String("phase_id"))
	}
}

func TestAssignPhasesWithoutPhases(t *testing.T) {
	c, store := newTestClassifier(t)
	seedWorkItem(t, store, types.TableTodos, "td-1", "proj-child", "fix login", "open", time.Now().UTC())

	report, err := c.AssignPhases(context.Background(), types.TableTodos, "proj-child", "proj-parent")
	if err != nil {
		t.Fatalf("AssignPhases failed: %v", err)
	}
	if report.Scanned != 0 || report.Assigned != 0 {
		t.Errorf("parent without phases should scan nothing, got %+v", report)
	}
}
