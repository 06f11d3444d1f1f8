package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/model"
	"github.com/jward/depsnap/internal/snapshot"
)

// SaveSnapshot replaces the stored state of the snapshot's project within a
// single transaction. Targets and dependencies keep their order.
func (s *Store) SaveSnapshot(ctx context.Context, snap *snapshot.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteProjectTx(ctx, tx, snap.ProjectPath()); err != nil {
		return err
	}

	active := snap.ActiveTarget()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO projects (path, active_full, active_short, saved_at) VALUES (?, ?, ?, ?)",
		snap.ProjectPath(), active.FullName, active.ShortName, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: save snapshot: project: %w", err)
	}
	projectID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: save snapshot: project id: %w", err)
	}

	depStmt, err := tx.PrepareContext(ctx, `INSERT INTO dependencies (
		target_id, ordinal, provider_type, model_id, kind, original_item_spec, item_spec,
		path, caption, version, resolved, implicit, transitive, hidden,
		diagnostic_level, properties, schema_name, schema_item_type, extra_flags
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: save snapshot: prepare: %w", err)
	}
	defer depStmt.Close()
	idStmt, err := tx.PrepareContext(ctx, "INSERT INTO dependency_ids (dependency_id, ordinal, ref) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("store: save snapshot: prepare: %w", err)
	}
	defer idStmt.Close()

	for i, ts := range snap.Targets() {
		tf := ts.TargetFramework()
		res, err := tx.ExecContext(ctx,
			"INSERT INTO targets (project_id, ordinal, full_name, short_name) VALUES (?, ?, ?, ?)",
			projectID, i, tf.FullName, tf.ShortName)
		if err != nil {
			return fmt.Errorf("store: save snapshot: target %s: %w", tf, err)
		}
		targetID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("store: save snapshot: target id: %w", err)
		}

		j := 0
		for d := range ts.All() {
			m := d.Model()
			res, err := depStmt.ExecContext(ctx,
				targetID, j, m.ProviderType, m.ID, m.Kind.String(), m.OriginalItemSpec, m.ItemSpec,
				m.Path, m.Caption, m.Version, m.Resolved, m.Implicit, m.Transitive, m.Hidden,
				m.DiagnosticLevel.String(), marshalProperties(m.Properties), m.SchemaName, m.SchemaItemType,
				int64(m.ExtraFlags))
			if err != nil {
				return fmt.Errorf("store: save snapshot: dependency %s: %w", d.Key(), err)
			}
			depID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("store: save snapshot: dependency id: %w", err)
			}
			for k, ref := range m.DependencyIDs {
				if _, err := idStmt.ExecContext(ctx, depID, k, ref); err != nil {
					return fmt.Errorf("store: save snapshot: dependency ref %q: %w", ref, err)
				}
			}
			j++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: save snapshot: commit: %w", err)
	}
	return nil
}

// LoadSnapshot rebuilds the stored snapshot of a project. It returns
// ErrNotFound when the project was never saved.
func (s *Store) LoadSnapshot(ctx context.Context, projectPath string) (*snapshot.Snapshot, error) {
	var (
		projectID            int64
		activeFull, activeSh sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, active_full, active_short FROM projects WHERE path = ?", projectPath,
	).Scan(&projectID, &activeFull, &activeSh)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot %q: %w", projectPath, err)
	}

	type targetRow struct {
		id int64
		tf framework.TargetFramework
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, full_name, short_name FROM targets WHERE project_id = ? ORDER BY ordinal", projectID)
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot: targets: %w", err)
	}
	var targetRows []targetRow
	for rows.Next() {
		var (
			r           targetRow
			full, short sql.NullString
		)
		if err := rows.Scan(&r.id, &full, &short); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: load snapshot: scan target: %w", err)
		}
		r.tf = targetFramework(full.String, short.String)
		targetRows = append(targetRows, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load snapshot: targets: %w", err)
	}

	targets := make([]*snapshot.TargetedSnapshot, 0, len(targetRows))
	for _, r := range targetRows {
		deps, err := s.loadDependencies(ctx, r.id, r.tf)
		if err != nil {
			return nil, err
		}
		targets = append(targets, snapshot.NewTargeted(r.tf, nil, deps))
	}
	return snapshot.New(projectPath, targetFramework(activeFull.String, activeSh.String), targets), nil
}

func (s *Store) loadDependencies(ctx context.Context, targetID int64, tf framework.TargetFramework) ([]*model.Dependency, error) {
	refs := make(map[int64][]string)
	rows, err := s.db.QueryContext(ctx, `SELECT i.dependency_id, i.ref FROM dependency_ids i
		JOIN dependencies d ON d.id = i.dependency_id
		WHERE d.target_id = ? ORDER BY i.dependency_id, i.ordinal`, targetID)
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot: dependency refs: %w", err)
	}
	for rows.Next() {
		var (
			id  int64
			ref string
		)
		if err := rows.Scan(&id, &ref); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: load snapshot: scan ref: %w", err)
		}
		refs[id] = append(refs[id], ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load snapshot: dependency refs: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, provider_type, model_id, kind, original_item_spec, item_spec,
		path, caption, version, resolved, implicit, transitive, hidden,
		diagnostic_level, properties, schema_name, schema_item_type, extra_flags
		FROM dependencies WHERE target_id = ? ORDER BY ordinal`, targetID)
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot: dependencies: %w", err)
	}
	defer rows.Close()

	var deps []*model.Dependency
	for rows.Next() {
		var id, extra int64
		var m model.Model
		var kind, itemSpec, path, caption, version sql.NullString
		var level, props, schemaName, schemaItemType sql.NullString
		if err := rows.Scan(&id, &m.ProviderType, &m.ID, &kind, &m.OriginalItemSpec, &itemSpec,
			&path, &caption, &version, &m.Resolved, &m.Implicit, &m.Transitive, &m.Hidden,
			&level, &props, &schemaName, &schemaItemType, &extra); err != nil {
			return nil, fmt.Errorf("store: load snapshot: scan dependency: %w", err)
		}
		m.Kind = model.ParseKind(kind.String)
		m.ItemSpec = itemSpec.String
		m.Path = path.String
		m.Caption = caption.String
		m.Version = version.String
		m.DiagnosticLevel = model.ParseDiagnosticLevel(level.String)
		m.Properties = unmarshalProperties(props.String)
		m.SchemaName = schemaName.String
		m.SchemaItemType = schemaItemType.String
		m.ExtraFlags = model.Flags(extra)
		m.DependencyIDs = refs[id]
		deps = append(deps, model.New(m, tf))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load snapshot: dependencies: %w", err)
	}
	return deps, nil
}

// Projects lists the stored projects ordered by path.
func (s *Store) Projects(ctx context.Context) ([]ProjectInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT p.path, p.active_full, p.active_short, p.saved_at,
		(SELECT COUNT(*) FROM targets t WHERE t.project_id = p.id),
		(SELECT COUNT(*) FROM dependencies d JOIN targets t ON t.id = d.target_id WHERE t.project_id = p.id)
		FROM projects p ORDER BY p.path`)
	if err != nil {
		return nil, fmt.Errorf("store: projects: %w", err)
	}
	defer rows.Close()

	var out []ProjectInfo
	for rows.Next() {
		var (
			info        ProjectInfo
			full, short sql.NullString
			savedAt     sql.NullTime
		)
		if err := rows.Scan(&info.Path, &full, &short, &savedAt, &info.Targets, &info.Dependencies); err != nil {
			return nil, fmt.Errorf("store: projects: scan: %w", err)
		}
		info.ActiveTarget = targetFramework(full.String, short.String).String()
		info.SavedAt = savedAt.Time
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: projects: %w", err)
	}
	return out, nil
}
