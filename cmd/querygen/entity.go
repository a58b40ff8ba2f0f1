package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/querygen/store"
)

var (
	entityListType    string
	entityDescription string
	entityAtomic      bool
	entityClearYes    bool
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Inspect and edit the stored machines, KPIs and produces-KPI links",
	Long: `Edit the vocabulary one node at a time. A machine is part of the
vocabulary once it produces a KPI; a KPI once it carries an atomic flag
(true or false). Use import to replace the whole ontology instead.`,
}

var entityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored entities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) (any, error) {
			return listEntities(ctx, st, entityListType)
		})
	},
}

var entityGetCmd = &cobra.Command{
	Use:   "get machine|kpi NAME",
	Short: "Show one entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) (any, error) {
			typ, err := parseEntityType(args[0])
			if err != nil {
				return nil, err
			}
			return st.GetEntity(ctx, args[1], typ)
		})
	},
}

var entityAddCmd = &cobra.Command{
	Use:   "add machine|kpi NAME",
	Short: "Create or update an entity",
	Example: `  querygen entity add kpi cycles --atomic
  querygen entity add kpi utilization --atomic=false --description "working over total time"
  querygen entity add machine "Laser Cutter"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var atomic *bool
		if cmd.Flags().Changed("atomic") {
			atomic = &entityAtomic
		}
		return withStore(cmd, func(ctx context.Context, st *store.Store) (any, error) {
			return addEntity(ctx, st, args[0], args[1], entityDescription, atomic)
		})
	},
}

var entityLinkCmd = &cobra.Command{
	Use:   "link MACHINE KPI",
	Short: "Record that MACHINE produces KPI",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) (any, error) {
			return linkEntities(ctx, st, args[0], args[1])
		})
	},
}

var entityLinksCmd = &cobra.Command{
	Use:   "links",
	Short: "List produces-KPI links by name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) (any, error) {
			return listLinks(ctx, st)
		})
	},
}

var entityDeleteCmd = &cobra.Command{
	Use:   "delete machine|kpi NAME",
	Short: "Remove an entity and its links",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) (any, error) {
			typ, err := parseEntityType(args[0])
			if err != nil {
				return nil, err
			}
			if err := st.DeleteEntity(ctx, args[1], typ); err != nil {
				return nil, err
			}
			slog.Info("entity: deleted", "type", typ, "name", args[1])
			return map[string]string{"deleted": args[1], "type": typ}, nil
		})
	},
}

var entityClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every entity and link",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !entityClearYes {
			return errors.New("refusing to clear the ontology without --yes")
		}
		return withStore(cmd, func(ctx context.Context, st *store.Store) (any, error) {
			if err := st.ClearOntology(ctx); err != nil {
				return nil, err
			}
			slog.Warn("entity: ontology cleared")
			return st.DBStats(ctx)
		})
	},
}

func init() {
	entityListCmd.Flags().StringVarP(&entityListType, "type", "t", "", "Only list machine or kpi entities")
	entityAddCmd.Flags().StringVarP(&entityDescription, "description", "d", "", "Entity description")
	entityAddCmd.Flags().BoolVar(&entityAtomic, "atomic", false, "Set the KPI atomic flag (omit to keep the current flag)")
	entityClearCmd.Flags().BoolVar(&entityClearYes, "yes", false, "Confirm deleting the whole ontology")

	entityCmd.AddCommand(entityListCmd, entityGetCmd, entityAddCmd, entityLinkCmd,
		entityLinksCmd, entityDeleteCmd, entityClearCmd)
}

// withStore opens the engine, runs fn against its store and prints the result.
func withStore(cmd *cobra.Command, fn func(context.Context, *store.Store) (any, error)) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	v, err := fn(cmd.Context(), e.Store())
	if err != nil {
		return err
	}
	return printOutput(cmd.OutOrStdout(), outputFmt, v)
}

func parseEntityType(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case store.EntityMachine, "machines":
		return store.EntityMachine, nil
	case store.EntityKPI, "kpis":
		return store.EntityKPI, nil
	default:
		return "", fmt.Errorf("unknown entity type %q: want machine or kpi", s)
	}
}

func listEntities(ctx context.Context, st *store.Store, typ string) ([]store.Entity, error) {
	if typ != "" {
		var err error
		if typ, err = parseEntityType(typ); err != nil {
			return nil, err
		}
	}
	entities, err := st.ListEntities(ctx, typ)
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []store.Entity{}
	}
	return entities, nil
}

// addEntity upserts one entity. A nil atomic keeps an existing KPI's flag
// and leaves a new KPI unflagged; the flag is ignored for machines.
func addEntity(ctx context.Context, st *store.Store, typ, name, description string, atomic *bool) (*store.Entity, error) {
	typ, err := parseEntityType(typ)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty %s name", typ)
	}

	e := store.Entity{Name: name, EntityType: typ, Description: description}
	switch {
	case typ != store.EntityKPI:
	case atomic != nil:
		e.Atomic = *atomic
		e.HasAtomic = true
	default:
		prev, err := st.GetEntity(ctx, name, typ)
		switch {
		case err == nil:
			e.Atomic, e.HasAtomic = prev.Atomic, prev.HasAtomic
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	if _, err := st.UpsertEntity(ctx, e); err != nil {
		return nil, err
	}
	slog.Info("entity: saved", "type", typ, "name", name, "atomic", e.Atomic, "has_atomic", e.HasAtomic)
	return st.GetEntity(ctx, name, typ)
}

func linkEntities(ctx context.Context, st *store.Store, machine, kpi string) (store.Link, error) {
	m, err := st.GetEntity(ctx, machine, store.EntityMachine)
	if err != nil {
		return store.Link{}, err
	}
	k, err := st.GetEntity(ctx, kpi, store.EntityKPI)
	if err != nil {
		return store.Link{}, err
	}
	if _, err := st.InsertRelationship(ctx, store.Relationship{
		SourceEntityID: m.ID,
		TargetEntityID: k.ID,
		RelationType:   store.RelProducesKPI,
	}); err != nil {
		return store.Link{}, fmt.Errorf("linking %q -> %q: %w", machine, kpi, err)
	}
	slog.Info("entity: linked", "machine", machine, "kpi", kpi)
	return store.Link{
		Source:       m.Name,
		SourceType:   store.EntityMachine,
		Target:       k.Name,
		TargetType:   store.EntityKPI,
		RelationType: store.RelProducesKPI,
	}, nil
}

// listLinks returns every relationship with entity IDs replaced by names.
func listLinks(ctx context.Context, st *store.Store) ([]store.Link, error) {
	entities, err := st.ListEntities(ctx, "")
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]store.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	rels, err := st.AllRelationships(ctx)
	if err != nil {
		return nil, err
	}
	links := make([]store.Link, 0, len(rels))
	for _, r := range rels {
		src, dst := byID[r.SourceEntityID], byID[r.TargetEntityID]
		links = append(links, store.Link{
			Source:       src.Name,
			SourceType:   src.EntityType,
			Target:       dst.Name,
			TargetType:   dst.EntityType,
			RelationType: r.RelationType,
		})
	}
	return links, nil
}
