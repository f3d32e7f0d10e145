package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
)

// hnswMaxNeighbors is the M parameter of the HNSW graph.
const hnswMaxNeighbors = 16

// FaceIndex is an in-memory HNSW graph over face embeddings, used to
// answer similar-face lookups without a database round trip. When built
// with a path, Save persists the graph so restarts skip the rebuild.
type FaceIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64]
	idToFace   map[int64]*Face
	mu         sync.RWMutex
	path       string
}

// NewFaceIndex creates an empty index. path may be empty for a purely
// in-memory index.
func NewFaceIndex(path string) *FaceIndex {
	return &FaceIndex{
		idToFace: make(map[int64]*Face),
		path:     path,
	}
}

func newFaceGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Build populates the index from a slice of faces, replacing any
// previous contents.
func (x *FaceIndex) Build(faces []Face) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.idToFace = make(map[int64]*Face, len(faces))

	if x.path != "" {
		saved, err := hnsw.LoadSavedGraph[int64](x.path)
		if err != nil {
			return err
		}
		saved.M = hnswMaxNeighbors
		saved.Ml = 1.0 / float64(hnswMaxNeighbors)
		saved.Distance = hnsw.CosineDistance
		for i := range faces {
			face := &faces[i]
			if len(face.Embedding) == 0 {
				continue
			}
			saved.Add(hnsw.MakeNode(face.ID, face.Embedding))
			x.idToFace[face.ID] = face
		}
		x.savedGraph = saved
		x.graph = nil
		return nil
	}

	g := newFaceGraph()
	for i := range faces {
		face := &faces[i]
		if len(face.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(face.ID, face.Embedding))
		x.idToFace[face.ID] = face
	}
	x.graph = g
	x.savedGraph = nil
	return nil
}

// Search finds the k nearest faces to the query embedding and returns
// them with their cosine distances.
func (x *FaceIndex) Search(query []float32, k int) ([]Face, []float64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil && x.savedGraph == nil {
		return nil, nil, errors.New("face index not initialized")
	}

	var neighbors []hnsw.Node[int64]
	if x.savedGraph != nil {
		neighbors = x.savedGraph.Search(query, k)
	} else {
		neighbors = x.graph.Search(query, k)
	}

	faces := make([]Face, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		face := x.idToFace[n.Key]
		if face == nil {
			continue
		}
		faces = append(faces, *face)
		distances = append(distances, CosineDistance(query, n.Value))
	}
	return faces, distances, nil
}

// Add inserts one face into the index.
func (x *FaceIndex) Add(face *Face) {
	if len(face.Embedding) == 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	node := hnsw.MakeNode(face.ID, face.Embedding)
	if x.savedGraph != nil {
		x.savedGraph.Add(node)
	} else if x.graph != nil {
		x.graph.Add(node)
	} else {
		return
	}
	x.idToFace[face.ID] = face
}

// Count returns the number of indexed faces.
func (x *FaceIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.idToFace)
}

// Save persists the graph to its configured path, if any.
func (x *FaceIndex) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.savedGraph == nil {
		return nil
	}
	return x.savedGraph.Save()
}
