package faces

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/jcalado/lumina-sub001/internal/config"
	"github.com/jcalado/lumina-sub001/internal/database"
)

// Mode selects what the grouping engine may do with a matched or
// unmatched face.
type Mode string

const (
	// ModeCreateNew only forms new clusters and creates people.
	ModeCreateNew Mode = "create_new"
	// ModeAssignExisting only assigns faces to existing confirmed people.
	ModeAssignExisting Mode = "assign_existing"
	// ModeBoth assigns to existing people first and creates new people
	// for unmatched faces.
	ModeBoth Mode = "both"
)

// Valid reports whether the mode is one of the known values.
func (m Mode) Valid() bool {
	return m == ModeCreateNew || m == ModeAssignExisting || m == ModeBoth
}

// GroupingOptions control a single engine run. Zero values are replaced
// by defaults and out-of-range values are clamped.
type GroupingOptions struct {
	Limit          int
	Randomize      bool
	Threshold      float64
	MaxComparisons int
	Mode           Mode
	PreCluster     bool
}

func (o *GroupingOptions) normalize() {
	if o.Limit == 0 {
		o.Limit = config.DefaultGroupingLimit
	}
	if o.Limit < config.MinGroupingLimit {
		o.Limit = config.MinGroupingLimit
	}
	if o.Limit > config.MaxGroupingLimit {
		o.Limit = config.MaxGroupingLimit
	}
	if o.MaxComparisons == 0 {
		o.MaxComparisons = config.DefaultMaxComparisons
	}
	if o.MaxComparisons < config.MinMaxComparisons {
		o.MaxComparisons = config.MinMaxComparisons
	}
	if o.MaxComparisons > config.MaxMaxComparisons {
		o.MaxComparisons = config.MaxMaxComparisons
	}
	if o.Threshold <= 0 || o.Threshold > 1 {
		o.Threshold = config.DefaultGroupingThreshold
	}
	if !o.Mode.Valid() {
		o.Mode = ModeBoth
	}
}

// GroupingResult summarizes one engine run.
type GroupingResult struct {
	FacesFetched    int      `json:"facesFetched"`
	PeopleCreated   int      `json:"peopleCreated"`
	FacesAssigned   int      `json:"facesAssigned"`
	FacesUnassigned int      `json:"facesUnassigned"`
	FacesSkipped    int      `json:"facesSkipped"`
	Comparisons     int      `json:"comparisons"`
	BudgetExhausted bool     `json:"budgetExhausted"`
	ClusterErrors   []string `json:"clusterErrors,omitempty"`
}

// cluster is an in-memory group formed during a run. personID is set
// when the cluster is an existing confirmed person; new clusters get a
// person only at persist time.
type cluster struct {
	personID string
	rep      []float32
	faceIDs  []int64
}

// GroupingEngine clusters unassigned faces into people. Invocations
// over overlapping face sets must be serialized by the caller.
type GroupingEngine struct {
	faces  database.FaceRepository
	people database.PersonRepository
}

// NewGroupingEngine creates an engine over the given repositories.
func NewGroupingEngine(faces database.FaceRepository, people database.PersonRepository) *GroupingEngine {
	return &GroupingEngine{faces: faces, people: people}
}

// Run fetches a bounded batch of unassigned faces and greedily clusters
// them. Faces are visited in batch order; each face joins the first
// cluster whose representative scores at or above the threshold, so a
// fixed batch and threshold always produce the same assignment.
func (e *GroupingEngine) Run(ctx context.Context, opts GroupingOptions) (*GroupingResult, error) {
	opts.normalize()
	matcher := NewMatcher(opts.Threshold)

	batch, err := e.faces.ListUnassigned(ctx, opts.Limit, opts.Randomize)
	if err != nil {
		return nil, fmt.Errorf("could not fetch unassigned faces: %w", err)
	}

	result := &GroupingResult{FacesFetched: len(batch)}

	clusters, err := e.seedExistingPeople(ctx, opts.Mode)
	if err != nil {
		return nil, err
	}

	// Exact-duplicate shortcut: a face whose embedding is byte-identical
	// to an already-placed face scores identically against every
	// representative, so it lands in the same cluster without spending
	// comparison budget.
	var seen map[string]int
	if opts.PreCluster {
		seen = make(map[string]int)
	}

	assigned := make(map[int]bool, len(clusters)) // cluster idx -> got new faces

	for i, face := range batch {
		if len(face.Embedding) == 0 {
			result.FacesSkipped++
			continue
		}

		if opts.PreCluster {
			if idx, ok := seen[embeddingSignature(face.Embedding)]; ok {
				clusters[idx].faceIDs = append(clusters[idx].faceIDs, face.ID)
				assigned[idx] = true
				continue
			}
		}

		if result.Comparisons >= opts.MaxComparisons {
			result.BudgetExhausted = true
			result.FacesSkipped += len(batch) - i
			break
		}

		matchIdx := -1
		for ci := range clusters {
			result.Comparisons++
			if matcher.IsMatch(face.Embedding, clusters[ci].rep) {
				matchIdx = ci
				break
			}
		}

		switch {
		case matchIdx >= 0:
			clusters[matchIdx].faceIDs = append(clusters[matchIdx].faceIDs, face.ID)
			assigned[matchIdx] = true
			if opts.PreCluster {
				seen[embeddingSignature(face.Embedding)] = matchIdx
			}
		case opts.Mode == ModeAssignExisting:
			result.FacesUnassigned++
		default:
			clusters = append(clusters, &cluster{rep: face.Embedding, faceIDs: []int64{face.ID}})
			idx := len(clusters) - 1
			assigned[idx] = true
			if opts.PreCluster {
				seen[embeddingSignature(face.Embedding)] = idx
			}
		}
	}

	e.persistClusters(ctx, clusters, assigned, result)
	return result, nil
}

// seedExistingPeople loads representative faces of confirmed people as
// pre-formed clusters when the mode allows assignment. People are
// ordered by id so repeated runs visit them identically.
func (e *GroupingEngine) seedExistingPeople(ctx context.Context, mode Mode) ([]*cluster, error) {
	if mode == ModeCreateNew {
		return nil, nil
	}
	reps, err := e.people.RepresentativeFaces(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("could not load representative faces: %w", err)
	}

	ids := make([]string, 0, len(reps))
	for id := range reps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	clusters := make([]*cluster, 0, len(ids))
	for _, id := range ids {
		face := reps[id]
		if len(face.Embedding) == 0 {
			continue
		}
		clusters = append(clusters, &cluster{personID: id, rep: face.Embedding})
	}
	return clusters, nil
}

// persistClusters writes each cluster in its own transaction so one
// failed cluster never rolls back the others.
func (e *GroupingEngine) persistClusters(ctx context.Context, clusters []*cluster, assigned map[int]bool, result *GroupingResult) {
	for idx, cl := range clusters {
		if !assigned[idx] || len(cl.faceIDs) == 0 {
			continue
		}

		if cl.personID != "" {
			if err := e.faces.AssignPerson(ctx, cl.personID, cl.faceIDs); err != nil {
				msg := fmt.Sprintf("assign %d faces to person %s: %v", len(cl.faceIDs), cl.personID, err)
				log.Printf("face grouping: %s", msg)
				result.ClusterErrors = append(result.ClusterErrors, msg)
				result.FacesUnassigned += len(cl.faceIDs)
				continue
			}
			result.FacesAssigned += len(cl.faceIDs)
			continue
		}

		person := &database.Person{
			ID:   uuid.NewString(),
			Name: fmt.Sprintf("Unknown %s", shortID(uuid.NewString())),
		}
		if err := e.people.CreateWithFaces(ctx, person, cl.faceIDs); err != nil {
			msg := fmt.Sprintf("create person for %d faces: %v", len(cl.faceIDs), err)
			log.Printf("face grouping: %s", msg)
			result.ClusterErrors = append(result.ClusterErrors, msg)
			result.FacesUnassigned += len(cl.faceIDs)
			continue
		}
		result.PeopleCreated++
		result.FacesAssigned += len(cl.faceIDs)
	}
}

func embeddingSignature(embedding []float32) string {
	// Embeddings compare as exact byte sequences; any difference breaks
	// the shortcut and falls back to full comparison.
	buf := make([]byte, 0, len(embedding)*4)
	for _, v := range embedding {
		bits := math.Float32bits(v)
		buf = append(buf, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}
	return string(buf)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
