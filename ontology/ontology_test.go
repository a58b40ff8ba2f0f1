package ontology

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/querygen/store"
)

const sampleRDF = `<?xml version="1.0"?>
<rdf:RDF xmlns="http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology#"
     xml:base="http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology"
     xmlns:owl="http://www.w3.org/2002/07/owl#"
     xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
     xmlns:xsd="http://www.w3.org/2001/XMLSchema#"
     xmlns:sa-ontology="http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology#">
    <owl:Ontology rdf:about="http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology"/>
    <owl:NamedIndividual rdf:about="http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology#assembly_machine_1">
        <rdf:type rdf:resource="http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology#AssemblyMachine"/>
        <sa-ontology:producesKPI rdf:resource="http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology#working_time"/>
        <sa-ontology:producesKPI rdf:resource="http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology#cycles"/>
        <sa-ontology:id rdf:datatype="http://www.w3.org/2001/XMLSchema#string">Assembly Machine 1</sa-ontology:id>
    </owl:NamedIndividual>
    <owl:NamedIndividual rdf:about="http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology#working_time">
        <sa-ontology:atomic rdf:datatype="http://www.w3.org/2001/XMLSchema#boolean">true</sa-ontology:atomic>
        <sa-ontology:id>working_time</sa-ontology:id>
        <sa-ontology:unit_measure>s</sa-ontology:unit_measure>
    </owl:NamedIndividual>
    <owl:NamedIndividual rdf:about="http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology#utilization">
        <sa-ontology:atomic rdf:datatype="http://www.w3.org/2001/XMLSchema#boolean">false</sa-ontology:atomic>
        <sa-ontology:id>utilization</sa-ontology:id>
        <sa-ontology:formula>working_time / (working_time + idle_time)</sa-ontology:formula>
    </owl:NamedIndividual>
    <owl:NamedIndividual rdf:about="http://www.semanticweb.org/raffi/ontologies/2024/10/sa-ontology#idle_machine">
        <sa-ontology:id>Idle Machine</sa-ontology:id>
    </owl:NamedIndividual>
</rdf:RDF>
`

func TestRDFParse(t *testing.T) {
	g, err := (&RDFLoader{}).Parse(strings.NewReader(sampleRDF))
	require.NoError(t, err)

	require.Len(t, g.Machines, 1)
	assert.Equal(t, "Assembly Machine 1", g.Machines[0].ID)
	assert.Equal(t, []string{"working_time", "cycles"}, g.Machines[0].Produces)

	ids := make([]string, 0, len(g.KPIs))
	for _, k := range g.KPIs {
		ids = append(ids, k.ID)
	}
	assert.Equal(t, []string{"working_time", "utilization", "cycles"}, ids)
	assert.Equal(t, []string{"working_time"}, g.AtomicKPIs())
	// atomic=false still places a KPI in the vocabulary; no flag at all does not.
	assert.Equal(t, []string{"working_time", "utilization"}, g.VocabularyKPIs())
	assert.Nil(t, g.KPIs[2].Atomic)
	assert.Equal(t, "s", g.KPIs[0].Unit)
	assert.NotEmpty(t, g.KPIs[1].Formula)

	// A produced KPI never described is still a node, so the graph is valid.
	assert.NoError(t, g.Validate())
}

func TestRDFParseOtherNamespace(t *testing.T) {
	doc := strings.ReplaceAll(sampleRDF, DefaultNamespace, "http://example.com/plant#")
	g, err := (&RDFLoader{}).Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Empty(t, g.Machines)
	assert.Empty(t, g.KPIs)

	g, err = (&RDFLoader{Namespace: "http://example.com/plant#"}).Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Len(t, g.Machines, 1)
}

func TestRDFParseErrors(t *testing.T) {
	_, err := (&RDFLoader{}).Parse(strings.NewReader("<rdf:RDF><unclosed>"))
	assert.Error(t, err)

	bad := strings.Replace(sampleRDF, ">true<", ">maybe<", 1)
	_, err = (&RDFLoader{}).Parse(strings.NewReader(bad))
	assert.ErrorContains(t, err, "atomic flag")
}

const sampleYAML = `
kpis:
  - id: working_time
    atomic: true
  - id: idle_time
    atomic: true
  - id: utilization
machines:
  - id: Laser Cutter
    produces: [working_time, idle_time]
  - id: Spare Press
`

func TestParseYAML(t *testing.T) {
	g, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"working_time", "idle_time"}, g.AtomicKPIs())
	assert.Equal(t, []string{"Laser Cutter"}, g.ProducingMachines())
	assert.NoError(t, g.Validate())

	_, err = ParseYAML([]byte("kpis: [unterminated"))
	assert.Error(t, err)
}

func TestParseJSONThroughYAML(t *testing.T) {
	g, err := ParseYAML([]byte(`{"kpis": [{"id": "cycles", "atomic": true}], "machines": [{"id": "Mill", "produces": ["cycles"]}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Mill"}, g.ProducingMachines())
}

func writeWorkbook(t *testing.T, kpis, machines [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", SheetKPIs))
	for i, row := range kpis {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(SheetKPIs, cell, &row))
	}
	if machines != nil {
		_, err := f.NewSheet(SheetMachines)
		require.NoError(t, err)
		for i, row := range machines {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(SheetMachines, cell, &row))
		}
	}

	path := filepath.Join(t.TempDir(), "vocab.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestXLSXLoad(t *testing.T) {
	path := writeWorkbook(t,
		[][]any{
			{"ID", "Description", "Atomic", "Unit"},
			{"working_time", "time spent working", "TRUE", "s"},
			{"utilization", "", "false"},
			{"", "orphan row"},
		},
		[][]any{
			{"id", "produces"},
			{"Laser Cutter", "working_time; utilization"},
			{"Spare Press"},
		},
	)

	g, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, g.KPIs, 2)
	assert.True(t, g.KPIs[0].IsAtomic())
	assert.Equal(t, "s", g.KPIs[0].Unit)
	require.NotNil(t, g.KPIs[1].Atomic)
	assert.False(t, *g.KPIs[1].Atomic)
	assert.Equal(t, []string{"working_time", "utilization"}, g.VocabularyKPIs())
	require.Len(t, g.Machines, 2)
	assert.Equal(t, []string{"working_time", "utilization"}, g.Machines[0].Produces)
	assert.Empty(t, g.Machines[1].Produces)
}

func TestXLSXErrors(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"name"}, {"working_time"}}, nil)
	_, err := Load(context.Background(), path)
	assert.ErrorContains(t, err, "missing id column")

	path = writeWorkbook(t, [][]any{{"id", "atomic"}, {"working_time", "perhaps"}}, nil)
	_, err = Load(context.Background(), path)
	assert.ErrorContains(t, err, "row 2")

	path = writeWorkbook(t, [][]any{{"id"}}, nil)
	_, err = Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrEmptyGraph)
}

func TestLoadDispatch(t *testing.T) {
	dir := t.TempDir()

	rdfPath := filepath.Join(dir, "kb.owl")
	require.NoError(t, os.WriteFile(rdfPath, []byte(sampleRDF), 0o644))
	g, err := Load(context.Background(), rdfPath)
	require.NoError(t, err)
	assert.Len(t, g.Machines, 1)

	yamlPath := filepath.Join(dir, "kb.YML")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0o644))
	g, err = Load(context.Background(), yamlPath)
	require.NoError(t, err)
	assert.Len(t, g.Machines, 2)

	_, err = Load(context.Background(), filepath.Join(dir, "kb.csv"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Load(context.Background(), filepath.Join(dir, "missing.rdf"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	g := &Graph{
		KPIs: []KPI{{ID: "a"}, {ID: "a"}, {}},
		Machines: []Machine{
			{ID: "M", Produces: []string{"a", "ghost"}},
			{ID: "M"},
		},
	}
	err := g.Validate()
	require.ErrorIs(t, err, ErrInvalidOntology)
	for _, want := range []string{`kpi "a": duplicate id`, "kpi 2: empty id", `unknown kpi "ghost"`, `machine "M": duplicate id`} {
		assert.ErrorContains(t, err, want)
	}

	assert.ErrorIs(t, (&Graph{}).Validate(), ErrEmptyGraph)
}

type fakeReplacer struct {
	entities []store.Entity
	links    []store.Link
	err      error
}

func (f *fakeReplacer) ReplaceOntology(ctx context.Context, entities []store.Entity, links []store.Link) (store.ReplaceStats, error) {
	if f.err != nil {
		return store.ReplaceStats{}, f.err
	}
	f.entities, f.links = entities, links
	return store.ReplaceStats{Entities: len(entities), Relationships: len(links)}, nil
}

func TestImport(t *testing.T) {
	g, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)
	g.KPIs[2].Unit = "%"

	dst := &fakeReplacer{}
	stats, err := Import(context.Background(), dst, g)
	require.NoError(t, err)
	assert.Equal(t, &ImportStats{Machines: 2, KPIs: 3, AtomicKPIs: 2, Vocabulary: 2, Links: 2}, stats)

	require.Len(t, dst.entities, 5)
	assert.Equal(t, store.EntityKPI, dst.entities[0].EntityType)
	assert.JSONEq(t, `{"unit": "%", "formula": ""}`, dst.entities[2].Metadata)
	assert.Empty(t, dst.entities[0].Metadata)
	assert.True(t, dst.entities[0].HasAtomic)
	assert.False(t, dst.entities[2].HasAtomic)
	assert.Equal(t, store.Link{
		Source: "Laser Cutter", SourceType: store.EntityMachine,
		Target: "working_time", TargetType: store.EntityKPI,
		RelationType: store.RelProducesKPI,
	}, dst.links[0])
}

func TestImportKeepsNonAtomicFlag(t *testing.T) {
	g, err := ParseYAML([]byte("kpis: [{id: utilization, atomic: false}, {id: notes}]\nmachines: [{id: Mill, produces: [utilization]}]\n"))
	require.NoError(t, err)

	dst := &fakeReplacer{}
	stats, err := Import(context.Background(), dst, g)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.AtomicKPIs)
	assert.Equal(t, 1, stats.Vocabulary)

	require.Len(t, dst.entities, 3)
	assert.False(t, dst.entities[0].Atomic)
	assert.True(t, dst.entities[0].HasAtomic)
	assert.False(t, dst.entities[1].HasAtomic)
}

func TestImportRefusesEmptyGraph(t *testing.T) {
	dst := &fakeReplacer{}
	_, err := Import(context.Background(), dst, &Graph{})
	assert.ErrorIs(t, err, ErrEmptyGraph)
	assert.Nil(t, dst.entities)
}

func TestImportStoreError(t *testing.T) {
	g, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)

	boom := errors.New("disk full")
	_, err = Import(context.Background(), &fakeReplacer{err: boom}, g)
	assert.ErrorIs(t, err, boom)
}
