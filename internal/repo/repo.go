// Package repo is the SQLite-backed implementation of the graph store
// boundary, plus the event log and API key queries the server needs.
package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lendline/internal/domain"
	"lendline/internal/events"
	"lendline/internal/graph"
)

type Repo struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

// ErrNotFound aliases the store boundary sentinel.
var ErrNotFound = graph.ErrNotFound

// New returns a repo over an open database.
func New(conn *sql.DB) Repo {
	return Repo{
		DB:     conn,
		Events: events.Writer{DB: conn},
		Now:    time.Now,
	}
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

const applicationColumns = `id, applicant_name, primary_applicant, phase, COALESCE(created_from,'') AS created_from, auto_created, created_at, updated_at`

func scanApplication(row *sql.Row) (domain.Application, error) {
	var app domain.Application
	var autoCreated int
	err := row.Scan(&app.ID, &app.ApplicantName, &app.PrimaryApplicant, &app.Phase, &app.CreatedFrom, &autoCreated, &app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return app, ErrNotFound
	}
	app.AutoCreated = autoCreated != 0
	return app, err
}

func (r Repo) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	return scanApplication(r.DB.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id=?`, id))
}

// FindLatestApplicationByName matches by name containment; the most
// recently created application wins when several match.
func (r Repo) FindLatestApplicationByName(ctx context.Context, name string) (domain.Application, error) {
	return scanApplication(r.DB.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE applicant_name LIKE '%'||?||'%' OR primary_applicant LIKE '%'||?||'%'
		 ORDER BY created_at DESC, id DESC LIMIT 1`, name, name))
}

func (r Repo) insertApplicationTx(ctx context.Context, tx *sql.Tx, app domain.Application, actorID string) error {
	autoCreated := 0
	if app.AutoCreated {
		autoCreated = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO applications(id, applicant_name, primary_applicant, phase, created_from, auto_created, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		app.ID, app.ApplicantName, app.PrimaryApplicant, string(app.Phase), nullable(app.CreatedFrom), autoCreated, app.CreatedAt, app.UpdatedAt); err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return r.Events.Append(ctx, tx, "application.created", "application", app.ID, actorID, events.EventPayload{
		"applicant_name": app.ApplicantName,
		"phase":          string(app.Phase),
		"created_from":   app.CreatedFrom,
	})
}

func (r Repo) CreateApplication(ctx context.Context, app domain.Application, actorID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.insertApplicationTx(ctx, tx, app, actorID); err != nil {
		return err
	}
	return tx.Commit()
}

// FindOrCreateApplicationExclusive performs the containment search and, when
// nothing matches, the insert inside one transaction. Serializing the
// read-then-write this way is the single-writer alternative to the default
// best-effort mode.
func (r Repo) FindOrCreateApplicationExclusive(ctx context.Context, name string, app domain.Application, actorID string) (domain.Application, bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE applicant_name LIKE '%'||?||'%' OR primary_applicant LIKE '%'||?||'%'
		 ORDER BY created_at DESC, id DESC LIMIT 1`, name, name)
	existing, err := scanApplication(row)
	if err == nil {
		return existing, false, tx.Commit()
	}
	if err != ErrNotFound {
		return domain.Application{}, false, err
	}
	if err := r.insertApplicationTx(ctx, tx, app, actorID); err != nil {
		return domain.Application{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, false, err
	}
	return app, true, nil
}

func (r Repo) UpdateApplicationPhase(ctx context.Context, id string, phase domain.ApplicationPhase, actorID string) error {
	existing, err := r.GetApplication(ctx, id)
	if err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := r.now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `UPDATE applications SET phase=?, updated_at=? WHERE id=?`,
		string(phase), now, id); err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	if err := r.Events.Append(ctx, tx, "application.phase.changed", "application", id, actorID, events.EventPayload{
		"from": string(existing.Phase),
		"to":   string(phase),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// MergeConversationLink inserts or refreshes the thread link. The primary
// key on thread_id gives merge semantics: repeated links leave one row.
func (r Repo) MergeConversationLink(ctx context.Context, threadID, applicationID, actorID string) error {
	if _, err := r.GetApplication(ctx, applicationID); err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := r.now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversation_threads(thread_id, application_id, linked_at) VALUES (?,?,?)
		 ON CONFLICT(thread_id) DO UPDATE SET application_id=excluded.application_id, linked_at=excluded.linked_at`,
		threadID, applicationID, now); err != nil {
		return fmt.Errorf("merge conversation link: %w", err)
	}
	if err := r.Events.Append(ctx, tx, "conversation.linked", "conversation", threadID, actorID, events.EventPayload{
		"application_id": applicationID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) ListApplications(ctx context.Context) ([]domain.Application, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Application
	for rows.Next() {
		var app domain.Application
		var autoCreated int
		if err := rows.Scan(&app.ID, &app.ApplicantName, &app.PrimaryApplicant, &app.Phase, &app.CreatedFrom, &autoCreated, &app.CreatedAt, &app.UpdatedAt); err != nil {
			return nil, err
		}
		app.AutoCreated = autoCreated != 0
		out = append(out, app)
	}
	return out, rows.Err()
}

// ListThreads returns the conversation threads linked to an application.
func (r Repo) ListThreads(ctx context.Context, applicationID string) ([]domain.ConversationThread, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT thread_id, application_id, linked_at FROM conversation_threads WHERE application_id=? ORDER BY linked_at DESC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ConversationThread
	for rows.Next() {
		var t domain.ConversationThread
		if err := rows.Scan(&t.ThreadID, &t.ApplicationID, &t.LinkedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const eventColumns = `id, ts, type, entity_kind, COALESCE(entity_id,'') AS entity_id, actor_id, payload_json`

func (r Repo) scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListEvents returns the most recent events, newest first.
func (r Repo) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return r.scanEvents(rows)
}

// EventsForEntity returns events for one entity, oldest first.
func (r Repo) EventsForEntity(ctx context.Context, entityKind, entityID string) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE entity_kind=? AND entity_id=? ORDER BY id ASC`, entityKind, entityID)
	if err != nil {
		return nil, err
	}
	return r.scanEvents(rows)
}

// EventsAfter returns up to limit events with id greater than cursor,
// oldest first. Used by the webhook dispatcher.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return r.scanEvents(rows)
}

// LatestEventID returns the highest event id, or 0 for an empty log.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// AppendEvent writes one event outside any caller transaction.
func (r Repo) AppendEvent(ctx context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.Events.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
