package faces

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/jcalado/lumina-sub001/internal/database"
	"github.com/jcalado/lumina-sub001/internal/database/mock"
)

// embeddings along distinct axes never match each other; same-axis
// vectors always do.
func axis(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

func seedFaces(repo *mock.FaceRepository, embeddings ...[]float32) []int64 {
	ids := make([]int64, 0, len(embeddings))
	for _, e := range embeddings {
		ids = append(ids, repo.Add(database.Face{MediaID: 1, Embedding: e, Confidence: 0.99}))
	}
	return ids
}

func TestGroupingEngine_CreatesClusters(t *testing.T) {
	faceRepo := mock.NewFaceRepository()
	personRepo := mock.NewPersonRepository(faceRepo)

	// Two faces on axis 0, two on axis 1, one on axis 2.
	seedFaces(faceRepo,
		axis(8, 0), axis(8, 1), axis(8, 0), axis(8, 1), axis(8, 2),
	)

	engine := NewGroupingEngine(faceRepo, personRepo)
	result, err := engine.Run(context.Background(), GroupingOptions{
		Threshold: 0.7,
		Mode:      ModeCreateNew,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FacesFetched != 5 {
		t.Errorf("expected 5 fetched, got %d", result.FacesFetched)
	}
	if result.PeopleCreated != 3 {
		t.Errorf("expected 3 people created, got %d", result.PeopleCreated)
	}
	if result.FacesAssigned != 5 {
		t.Errorf("expected 5 faces assigned, got %d", result.FacesAssigned)
	}

	people, _ := personRepo.List(context.Background(), false)
	if len(people) != 3 {
		t.Fatalf("expected 3 people, got %d", len(people))
	}
	for _, p := range people {
		if p.Confirmed {
			t.Errorf("auto-created person %s should not be confirmed", p.ID)
		}
	}
}

func TestGroupingEngine_AssignsToExistingPeople(t *testing.T) {
	faceRepo := mock.NewFaceRepository()
	personRepo := mock.NewPersonRepository(faceRepo)

	personRepo.Add(database.Person{ID: "p1", Name: "Alice", Confirmed: true})
	aliceFace := database.Face{MediaID: 1, Embedding: axis(8, 0)}
	pid := "p1"
	aliceFace.PersonID = &pid
	faceRepo.Add(aliceFace)

	// One face matching Alice, one on a different axis.
	seedFaces(faceRepo, axis(8, 0), axis(8, 3))

	engine := NewGroupingEngine(faceRepo, personRepo)
	result, err := engine.Run(context.Background(), GroupingOptions{
		Threshold: 0.7,
		Mode:      ModeAssignExisting,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.PeopleCreated != 0 {
		t.Errorf("assign_existing must not create people, created %d", result.PeopleCreated)
	}
	if result.FacesAssigned != 1 {
		t.Errorf("expected 1 face assigned, got %d", result.FacesAssigned)
	}
	if result.FacesUnassigned != 1 {
		t.Errorf("expected 1 face left unassigned, got %d", result.FacesUnassigned)
	}

	aliceFaces, _ := faceRepo.ListByPerson(context.Background(), "p1")
	if len(aliceFaces) != 2 {
		t.Errorf("expected Alice to have 2 faces, got %d", len(aliceFaces))
	}
}

func TestGroupingEngine_ModeBoth(t *testing.T) {
	faceRepo := mock.NewFaceRepository()
	personRepo := mock.NewPersonRepository(faceRepo)

	personRepo.Add(database.Person{ID: "p1", Name: "Alice", Confirmed: true})
	pid := "p1"
	f := database.Face{MediaID: 1, Embedding: axis(8, 0), PersonID: &pid}
	faceRepo.Add(f)

	seedFaces(faceRepo, axis(8, 0), axis(8, 4), axis(8, 4))

	engine := NewGroupingEngine(faceRepo, personRepo)
	result, err := engine.Run(context.Background(), GroupingOptions{
		Threshold: 0.7,
		Mode:      ModeBoth,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FacesAssigned != 3 {
		t.Errorf("expected 3 faces assigned, got %d", result.FacesAssigned)
	}
	if result.PeopleCreated != 1 {
		t.Errorf("expected 1 new person for the unmatched pair, got %d", result.PeopleCreated)
	}
}

func TestGroupingEngine_Deterministic(t *testing.T) {
	run := func() map[int64]string {
		faceRepo := mock.NewFaceRepository()
		personRepo := mock.NewPersonRepository(faceRepo)
		ids := seedFaces(faceRepo,
			axis(8, 0), axis(8, 1), axis(8, 0), axis(8, 2), axis(8, 1), axis(8, 2),
		)

		engine := NewGroupingEngine(faceRepo, personRepo)
		if _, err := engine.Run(context.Background(), GroupingOptions{
			Threshold: 0.7,
			Mode:      ModeCreateNew,
		}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		// Map face ids to cluster shapes via co-membership: record for
		// each face the smallest face id sharing its person.
		byPerson := make(map[string][]int64)
		for _, id := range ids {
			face, _ := faceRepo.Get(context.Background(), id)
			if face.PersonID != nil {
				byPerson[*face.PersonID] = append(byPerson[*face.PersonID], id)
			}
		}
		shape := make(map[int64]string)
		for _, members := range byPerson {
			key := ""
			for _, m := range members {
				key += string(rune('a'+m)) + ","
			}
			for _, m := range members {
				shape[m] = key
			}
		}
		return shape
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("clustering is not deterministic: %v vs %v", first, second)
	}
}

func TestGroupingEngine_ComparisonBudget(t *testing.T) {
	faceRepo := mock.NewFaceRepository()
	personRepo := mock.NewPersonRepository(faceRepo)

	// 60 mutually dissimilar faces force a growing cluster list, so the
	// comparison count grows quadratically and exhausts the minimum
	// budget of 1000 before the batch ends.
	for i := 0; i < 60; i++ {
		seedFaces(faceRepo, axis(64, i))
	}

	engine := NewGroupingEngine(faceRepo, personRepo)
	result, err := engine.Run(context.Background(), GroupingOptions{
		Threshold:      0.7,
		Mode:           ModeCreateNew,
		MaxComparisons: 1000,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.BudgetExhausted {
		t.Error("expected budget to be exhausted")
	}
	if result.FacesSkipped == 0 {
		t.Error("expected remaining faces to be skipped")
	}
	if result.FacesAssigned+result.FacesSkipped != 60 {
		t.Errorf("assigned %d + skipped %d should cover the batch", result.FacesAssigned, result.FacesSkipped)
	}
}

func TestGroupingEngine_PreClusterMatchesFullRun(t *testing.T) {
	embeddings := [][]float32{
		axis(8, 0), axis(8, 1), axis(8, 0), axis(8, 0), axis(8, 1),
	}

	run := func(pre bool) (*GroupingResult, int) {
		faceRepo := mock.NewFaceRepository()
		personRepo := mock.NewPersonRepository(faceRepo)
		seedFaces(faceRepo, embeddings...)

		engine := NewGroupingEngine(faceRepo, personRepo)
		result, err := engine.Run(context.Background(), GroupingOptions{
			Threshold:  0.7,
			Mode:       ModeCreateNew,
			PreCluster: pre,
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		people, _ := personRepo.List(context.Background(), false)
		return result, len(people)
	}

	full, fullPeople := run(false)
	pruned, prunedPeople := run(true)

	if fullPeople != prunedPeople {
		t.Errorf("pre-cluster changed people count: %d vs %d", fullPeople, prunedPeople)
	}
	if full.FacesAssigned != pruned.FacesAssigned {
		t.Errorf("pre-cluster changed assignments: %d vs %d", full.FacesAssigned, pruned.FacesAssigned)
	}
	if pruned.Comparisons >= full.Comparisons {
		t.Errorf("pre-cluster should prune comparisons: %d vs %d", pruned.Comparisons, full.Comparisons)
	}
}

func TestGroupingEngine_ClusterFailureIsolated(t *testing.T) {
	faceRepo := mock.NewFaceRepository()
	personRepo := mock.NewPersonRepository(faceRepo)

	personRepo.Add(database.Person{ID: "p1", Name: "Alice", Confirmed: true})
	pid := "p1"
	faceRepo.Add(database.Face{MediaID: 1, Embedding: axis(8, 0), PersonID: &pid})
	seedFaces(faceRepo, axis(8, 0), axis(8, 5))

	// Existing-person assignment fails; new-cluster creation succeeds.
	faceRepo.AssignError = errors.New("deadlock detected")

	engine := NewGroupingEngine(faceRepo, personRepo)
	result, err := engine.Run(context.Background(), GroupingOptions{
		Threshold: 0.7,
		Mode:      ModeBoth,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.ClusterErrors) != 1 {
		t.Fatalf("expected 1 cluster error, got %v", result.ClusterErrors)
	}
	if result.PeopleCreated != 1 {
		t.Errorf("other clusters should still persist, created %d", result.PeopleCreated)
	}
}

func TestGroupingOptions_Normalize(t *testing.T) {
	opts := GroupingOptions{Limit: 5, MaxComparisons: 10, Threshold: 2, Mode: "bogus"}
	opts.normalize()

	if opts.Limit != 50 {
		t.Errorf("limit should clamp to 50, got %d", opts.Limit)
	}
	if opts.MaxComparisons != 1000 {
		t.Errorf("maxComparisons should clamp to 1000, got %d", opts.MaxComparisons)
	}
	if opts.Threshold != 0.7 {
		t.Errorf("threshold should fall back to default, got %v", opts.Threshold)
	}
	if opts.Mode != ModeBoth {
		t.Errorf("mode should fall back to both, got %s", opts.Mode)
	}

	opts = GroupingOptions{Limit: 99999, MaxComparisons: 9999999}
	opts.normalize()
	if opts.Limit != 2000 {
		t.Errorf("limit should clamp to 2000, got %d", opts.Limit)
	}
	if opts.MaxComparisons != 500000 {
		t.Errorf("maxComparisons should clamp to 500000, got %d", opts.MaxComparisons)
	}
}

func TestMatcher(t *testing.T) {
	m := NewMatcher(0.7)

	if !m.IsMatch(axis(4, 0), axis(4, 0)) {
		t.Error("identical vectors should match")
	}
	if m.IsMatch(axis(4, 0), axis(4, 1)) {
		t.Error("orthogonal vectors should not match")
	}
	if m.Score(axis(4, 0), []float32{0, 0, 0, 0}) != -1 {
		t.Error("zero vector should score -1")
	}
	if m.Score([]float32{1, 2}, []float32{1, 2, 3}) != -1 {
		t.Error("mismatched dims should score -1")
	}
}

func TestNormalizePersonName(t *testing.T) {
	cases := map[string]string{
		"Jiří Novák":     "jiri novak",
		" Anne-Marie  X": "anne marie x",
		"BOB":            "bob",
	}
	for in, want := range cases {
		if got := NormalizePersonName(in); got != want {
			t.Errorf("NormalizePersonName(%q) = %q, want %q", in, got, want)
		}
	}
}
