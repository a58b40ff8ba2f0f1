// Package ontology loads the plant knowledge base (machines, KPIs and which
// machine produces which KPI) from RDF/XML, XLSX or YAML and imports it into
// the store the vocabulary is read from.
package ontology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/brunobiangulo/querygen/store"
)

var (
	ErrEmptyGraph      = errors.New("ontology: no machines or kpis found")
	ErrUnknownFormat   = errors.New("ontology: unknown file format")
	ErrInvalidOntology = errors.New("ontology: invalid graph")
)

// KPI is a performance indicator node. Atomic is nil when the source states
// no atomic flag.
type KPI struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Atomic      *bool  `json:"atomic,omitempty" yaml:"atomic,omitempty"`
	Unit        string `json:"unit,omitempty" yaml:"unit,omitempty"`
	Formula     string `json:"formula,omitempty" yaml:"formula,omitempty"`
}

// Machine is a machine node with its produces-KPI edges, by KPI ID.
type Machine struct {
	ID          string   `json:"id" yaml:"id"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Produces    []string `json:"produces,omitempty" yaml:"produces,omitempty"`
}

// Graph is a loaded ontology.
type Graph struct {
	Machines []Machine `json:"machines" yaml:"machines"`
	KPIs     []KPI     `json:"kpis" yaml:"kpis"`
}

// Validate reports empty or duplicate IDs and produces edges that point at
// KPIs missing from the graph. The returned error wraps ErrInvalidOntology
// and lists every problem.
func (g *Graph) Validate() error {
	var errs *multierror.Error
	if len(g.Machines) == 0 && len(g.KPIs) == 0 {
		return ErrEmptyGraph
	}

	kpis := make(map[string]bool, len(g.KPIs))
	for i, k := range g.KPIs {
		if k.ID == "" {
			errs = multierror.Append(errs, fmt.Errorf("kpi %d: empty id", i))
			continue
		}
		if kpis[k.ID] {
			errs = multierror.Append(errs, fmt.Errorf("kpi %q: duplicate id", k.ID))
		}
		kpis[k.ID] = true
	}

	machines := make(map[string]bool, len(g.Machines))
	for i, m := range g.Machines {
		if m.ID == "" {
			errs = multierror.Append(errs, fmt.Errorf("machine %d: empty id", i))
			continue
		}
		if machines[m.ID] {
			errs = multierror.Append(errs, fmt.Errorf("machine %q: duplicate id", m.ID))
		}
		machines[m.ID] = true
		for _, k := range m.Produces {
			if !kpis[k] {
				errs = multierror.Append(errs, fmt.Errorf("machine %q: produces unknown kpi %q", m.ID, k))
			}
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOntology, err)
	}
	return nil
}

// IsAtomic reports whether the KPI is flagged atomic=true.
func (k KPI) IsAtomic() bool { return k.Atomic != nil && *k.Atomic }

// AtomicKPIs returns the IDs of KPIs flagged atomic=true, in graph order.
func (g *Graph) AtomicKPIs() []string {
	var ids []string
	for _, k := range g.KPIs {
		if k.IsAtomic() {
			ids = append(ids, k.ID)
		}
	}
	return ids
}

// VocabularyKPIs returns the IDs of KPIs that carry an atomic flag of either
// value, in graph order. These are the KPIs extraction text may name.
func (g *Graph) VocabularyKPIs() []string {
	var ids []string
	for _, k := range g.KPIs {
		if k.Atomic != nil {
			ids = append(ids, k.ID)
		}
	}
	return ids
}

// ProducingMachines returns the IDs of machines with at least one produces
// edge, in graph order.
func (g *Graph) ProducingMachines() []string {
	var ids []string
	for _, m := range g.Machines {
		if len(m.Produces) > 0 {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// ImportStats reports what Import wrote.
type ImportStats struct {
	Machines     int `json:"machines"`
	KPIs         int `json:"kpis"`
	AtomicKPIs   int `json:"atomic_kpis"`
	Vocabulary   int `json:"vocabulary_kpis"`
	Links        int `json:"links"`
	SkippedLinks int `json:"skipped_links"`
}

// Replacer swaps the stored ontology. *store.Store implements it.
type Replacer interface {
	ReplaceOntology(ctx context.Context, entities []store.Entity, links []store.Link) (store.ReplaceStats, error)
}

// Import replaces the stored ontology with g in one transaction. Validation
// problems other than an empty graph are logged and the offending edges
// skipped; an empty graph is refused so a bad file cannot wipe the store.
func Import(ctx context.Context, dst Replacer, g *Graph) (*ImportStats, error) {
	if err := g.Validate(); err != nil {
		if errors.Is(err, ErrEmptyGraph) {
			return nil, err
		}
		slog.Warn("ontology: importing with validation issues", "error", err)
	}

	entities := make([]store.Entity, 0, len(g.Machines)+len(g.KPIs))
	var links []store.Link
	stats := &ImportStats{}

	for _, k := range g.KPIs {
		if k.ID == "" {
			continue
		}
		entities = append(entities, store.Entity{
			Name:        k.ID,
			EntityType:  store.EntityKPI,
			Description: k.Description,
			Atomic:      k.IsAtomic(),
			HasAtomic:   k.Atomic != nil,
			Metadata:    kpiMetadata(k),
		})
		if k.IsAtomic() {
			stats.AtomicKPIs++
		}
	}
	for _, m := range g.Machines {
		if m.ID == "" {
			continue
		}
		entities = append(entities, store.Entity{
			Name:        m.ID,
			EntityType:  store.EntityMachine,
			Description: m.Description,
		})
		for _, k := range m.Produces {
			links = append(links, store.Link{
				Source:       m.ID,
				SourceType:   store.EntityMachine,
				Target:       k,
				TargetType:   store.EntityKPI,
				RelationType: store.RelProducesKPI,
			})
		}
	}

	rs, err := dst.ReplaceOntology(ctx, entities, links)
	if err != nil {
		return nil, fmt.Errorf("replacing ontology: %w", err)
	}

	stats.Vocabulary = len(g.VocabularyKPIs())
	stats.Links = rs.Relationships
	stats.SkippedLinks = rs.SkippedLinks
	for _, e := range entities {
		if e.EntityType == store.EntityMachine {
			stats.Machines++
		} else {
			stats.KPIs++
		}
	}

	slog.Info("ontology: imported",
		"machines", stats.Machines, "kpis", stats.KPIs, "atomic", stats.AtomicKPIs,
		"vocabulary_kpis", stats.Vocabulary, "links", stats.Links, "skipped_links", stats.SkippedLinks)
	return stats, nil
}

func kpiMetadata(k KPI) string {
	if k.Unit == "" && k.Formula == "" {
		return ""
	}
	b, _ := json.Marshal(map[string]string{"unit": k.Unit, "formula": k.Formula})
	return string(b)
}
