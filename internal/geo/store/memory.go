package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ghodss/yaml"

	"libreg/internal/geo"
	"libreg/internal/geo/models"
)

// Node is one entry of a gazetteer seed file. Children are listed under
// "inside", mirroring how coverage declarations scope names.
type Node struct {
	Name         string           `json:"name"`
	Abbreviation string           `json:"abbreviation,omitempty"`
	Type         models.PlaceType `json:"type"`
	Inside       []Node           `json:"inside,omitempty"`
}

// ParseNodes decodes a YAML (or JSON) gazetteer seed.
func ParseNodes(data []byte) ([]Node, error) {
	var nodes []Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse gazetteer: %w", err)
	}
	if err := validateNodes(nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func validateNodes(nodes []Node) error {
	for _, n := range nodes {
		if n.Name == "" {
			return fmt.Errorf("gazetteer entry without a name")
		}
		if !n.Type.IsValid() || n.Type == models.PlaceTypeEverywhere {
			return fmt.Errorf("gazetteer entry %q has invalid type %q", n.Name, n.Type)
		}
		if err := validateNodes(n.Inside); err != nil {
			return err
		}
	}
	return nil
}

// Gazetteer is an in-memory place hierarchy. It serves development setups
// without a database and tests that need a small, explicit geography.
type Gazetteer struct {
	mu         sync.RWMutex
	places     map[int64]*models.Place
	children   map[int64][]int64
	nations    []int64
	everywhere *models.Place
	nextID     int64
}

// NewGazetteer returns a gazetteer holding only the everywhere sentinel.
func NewGazetteer() *Gazetteer {
	g := &Gazetteer{
		places:   make(map[int64]*models.Place),
		children: make(map[int64][]int64),
	}
	g.everywhere = g.insert(&models.Place{Name: "Everywhere", Type: models.PlaceTypeEverywhere})
	return g
}

// LoadGazetteer reads a seed file into a new Gazetteer.
func LoadGazetteer(path string) (*Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gazetteer %s: %w", path, err)
	}
	nodes, err := ParseNodes(data)
	if err != nil {
		return nil, err
	}
	g := NewGazetteer()
	g.AddNodes(nil, nodes)
	return g, nil
}

// Add inserts a place under parent (nil for a nation) and returns a copy of it.
func (g *Gazetteer) Add(parent *models.Place, name, abbreviation string, placeType models.PlaceType) *models.Place {
	p := &models.Place{Name: name, AbbreviatedName: abbreviation, Type: placeType}
	if parent != nil {
		p.ParentID = parent.ID
	}
	stored := g.insert(p)
	clone := *stored
	return &clone
}

// AddNodes inserts a seed tree under parent.
func (g *Gazetteer) AddNodes(parent *models.Place, nodes []Node) {
	for _, n := range nodes {
		p := g.Add(parent, n.Name, n.Abbreviation, n.Type)
		g.AddNodes(p, n.Inside)
	}
}

func (g *Gazetteer) insert(p *models.Place) *models.Place {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	p.ID = g.nextID
	g.places[p.ID] = p
	switch {
	case p.Type == models.PlaceTypeEverywhere:
	case p.ParentID == 0:
		g.nations = append(g.nations, p.ID)
	default:
		g.children[p.ParentID] = append(g.children[p.ParentID], p.ID)
	}
	return p
}

// Everywhere returns the global coverage sentinel.
func (g *Gazetteer) Everywhere(_ context.Context) (*models.Place, error) {
	clone := *g.everywhere
	return &clone, nil
}

// Resolve matches name exactly against nations (nil scope) or against every
// place inside scope. More than one match is ambiguous.
func (g *Gazetteer) Resolve(_ context.Context, name string, scope *models.Place) (geo.Resolution, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var candidates []int64
	switch {
	case scope == nil || scope.IsEverywhere():
		candidates = g.nations
	default:
		if _, ok := g.places[scope.ID]; !ok {
			return geo.Resolution{Outcome: geo.NotFound}, nil
		}
		candidates = g.descendants(scope.ID)
	}

	var match *models.Place
	for _, placeID := range candidates {
		p := g.places[placeID]
		if !p.Matches(name) {
			continue
		}
		if match != nil {
			return geo.Resolution{Outcome: geo.Ambiguous}, nil
		}
		match = p
	}
	if match == nil {
		return geo.Resolution{Outcome: geo.NotFound}, nil
	}
	clone := *match
	return geo.FoundPlace(&clone), nil
}

// Get returns a copy of the place with the given ID.
func (g *Gazetteer) Get(placeID int64) (*models.Place, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.places[placeID]
	if !ok {
		return nil, false
	}
	clone := *p
	return &clone, true
}

// descendants lists every place below root, breadth first.
func (g *Gazetteer) descendants(root int64) []int64 {
	var out []int64
	queue := append([]int64(nil), g.children[root]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		out = append(out, next)
		queue = append(queue, g.children[next]...)
	}
	return out
}
