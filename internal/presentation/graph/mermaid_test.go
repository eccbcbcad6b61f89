package graph_test

import (
	"strings"
	"testing"

	"github.com/neurosurgery/actionbridge/internal/presentation/graph"
	"github.com/neurosurgery/actionbridge/pkg/domain"
)

func TestGenerateMermaid(t *testing.T) {
	def := &domain.Procedure{
		ID:      "ventriculostomy",
		Initial: "start",
		Steps: []domain.Step{
			{
				ID:      "start",
				Actions: []string{"begin"},
				Transitions: []domain.Transition{
					{Action: "begin", To: "cranial-access"},
				},
			},
			{
				ID:      "cranial-access",
				Name:    "Cranial \"Access\"",
				Actions: []string{"drill"},
				Force:   &domain.ForcePrompt{Query: "Drill"},
				Transitions: []domain.Transition{
					{Action: "drill", When: map[string]any{"depth": 3, "ok": true}, To: "done"},
					{Action: "drill", To: "cranial-access"},
					{Action: "drill", On: domain.OutcomeFailed, To: "start"},
				},
				Signals: map[string]string{"next": "done", "abort": "start"},
			},
			{ID: "done"},
		},
	}

	tests := []struct {
		name     string
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name: "Shapes and edges",
			contains: []string{
				"graph TD",
				`start(("start"))`,
				`cranial_access[/"Cranial 'Access'"/]`,
				`done(["done"])`,
				`start -- "begin" --> cranial_access`,
				`cranial_access -- "drill [depth=3, ok=true]" --> done`,
				`cranial_access -. "drill ✗" .-> start`,
				"cranial_access -. ⚡ abort .-> start\n    cranial_access -. ⚡ next .-> done",
			},
			excludes: []string{"classDef"},
		},
		{
			name:    "Overlay",
			overlay: graph.OverlayFor(&domain.SessionState{StepID: "cranial-access", History: []string{"start", "cranial-access", "start"}}),
			contains: []string{
				"classDef visited",
				"class start visited;",
				"class cranial_access current;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(def, tt.overlay)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("expected output to contain %q\n---\n%s", want, got)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("expected output not to contain %q", bad)
				}
			}
			if n := strings.Count(got, "class start visited;"); n > 1 {
				t.Errorf("visited step styled %d times", n)
			}
		})
	}
}

func TestOverlayForNil(t *testing.T) {
	if graph.OverlayFor(nil) != nil {
		t.Error("expected nil overlay")
	}
}
