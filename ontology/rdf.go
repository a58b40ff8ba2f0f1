package ontology

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultNamespace is the property namespace of the plant ontology.
const DefaultNamespace = "http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology#"

const rdfNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

// RDFLoader reads an RDF/XML (OWL) export of the plant ontology. Subjects
// are the direct children of rdf:RDF; the properties read from Namespace are
// id, atomic, producesKPI, description, unit_measure and formula.
//
// Subjects with producesKPI edges are machines. Subjects with an atomic
// property, or that some machine produces, are KPIs.
type RDFLoader struct {
	// Namespace overrides DefaultNamespace.
	Namespace string
}

func (l *RDFLoader) SupportedFormats() []string { return []string{"rdf", "owl", "xml"} }

func (l *RDFLoader) Load(ctx context.Context, path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening RDF: %w", err)
	}
	defer f.Close()
	return l.Parse(f)
}

type rdfSubject struct {
	key         string
	id          string
	description string
	unit        string
	formula     string
	atomic      *bool
	produces    []string
}

// Parse decodes an RDF/XML document.
func (l *RDFLoader) Parse(r io.Reader) (*Graph, error) {
	ns := l.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	subjects, err := decodeSubjects(xml.NewDecoder(r), ns)
	if err != nil {
		return nil, err
	}
	return buildGraph(subjects), nil
}

func decodeSubjects(d *xml.Decoder, ns string) ([]*rdfSubject, error) {
	var (
		order   []*rdfSubject
		byKey   = make(map[string]*rdfSubject)
		current *rdfSubject
		depth   int
	)

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding RDF: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 2:
				key := localName(attr(t, rdfNamespace, "about", "ID"))
				if key == "" {
					current = nil
					continue
				}
				// Several descriptions of one subject merge.
				current = byKey[key]
				if current == nil {
					current = &rdfSubject{key: key}
					byKey[key] = current
					order = append(order, current)
				}
			case depth == 3 && current != nil && t.Name.Space == ns:
				if err := readProperty(d, t, current); err != nil {
					return nil, err
				}
				// readProperty consumed the end element.
				depth--
			}
		case xml.EndElement:
			if depth == 2 {
				current = nil
			}
			depth--
		}
	}
	return order, nil
}

func readProperty(d *xml.Decoder, t xml.StartElement, s *rdfSubject) error {
	if t.Name.Local == "producesKPI" {
		if res := attr(t, rdfNamespace, "resource"); res != "" {
			s.produces = append(s.produces, localName(res))
		}
		return d.Skip()
	}

	var v struct {
		Text string `xml:",chardata"`
	}
	if err := d.DecodeElement(&v, &t); err != nil {
		return fmt.Errorf("decoding %s of %q: %w", t.Name.Local, s.key, err)
	}
	text := strings.TrimSpace(v.Text)

	switch t.Name.Local {
	case "id":
		s.id = text
	case "description":
		s.description = text
	case "unit_measure":
		s.unit = text
	case "formula":
		s.formula = text
	case "atomic":
		b, err := strconv.ParseBool(text)
		if err != nil {
			return fmt.Errorf("atomic flag of %q: %w", s.key, err)
		}
		s.atomic = &b
	}
	return nil
}

func buildGraph(subjects []*rdfSubject) *Graph {
	byKey := make(map[string]*rdfSubject, len(subjects))
	produced := make(map[string]bool)
	for _, s := range subjects {
		byKey[s.key] = s
		for _, k := range s.produces {
			produced[k] = true
		}
	}

	name := func(key string) string {
		if s, ok := byKey[key]; ok && s.id != "" {
			return s.id
		}
		return key
	}

	g := &Graph{}
	seenKPI := make(map[string]bool)
	addKPI := func(key string) {
		if seenKPI[key] {
			return
		}
		seenKPI[key] = true
		k := KPI{ID: name(key)}
		if s, ok := byKey[key]; ok {
			k.Description = s.description
			k.Unit = s.unit
			k.Formula = s.formula
			k.Atomic = s.atomic
		}
		g.KPIs = append(g.KPIs, k)
	}

	for _, s := range subjects {
		switch {
		case len(s.produces) > 0:
			m := Machine{ID: name(s.key), Description: s.description}
			for _, k := range s.produces {
				m.Produces = append(m.Produces, name(k))
			}
			g.Machines = append(g.Machines, m)
		case s.atomic != nil || produced[s.key]:
			addKPI(s.key)
		}
	}
	// Produced KPIs never described in the document.
	for _, s := range subjects {
		for _, k := range s.produces {
			if _, ok := byKey[k]; !ok {
				addKPI(k)
			}
		}
	}
	return g
}

func attr(t xml.StartElement, space string, locals ...string) string {
	for _, a := range t.Attr {
		if a.Name.Space != space {
			continue
		}
		for _, l := range locals {
			if a.Name.Local == l {
				return a.Value
			}
		}
	}
	return ""
}

// localName returns the fragment or last path segment of an IRI.
func localName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/"); i >= 0 {
		return iri[i+1:]
	}
	return iri
}
