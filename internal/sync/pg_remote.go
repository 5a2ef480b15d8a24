package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neveront/medtenance/internal/medication"
)

// PgRemote is the Postgres-backed RemoteStore. Records live in per-user
// namespaces keyed by (user_id, id); synced_at is stamped server-side on
// every upsert.
type PgRemote struct {
	pool *pgxpool.Pool
}

func NewPgRemote(pool *pgxpool.Pool) *PgRemote {
	return &PgRemote{pool: pool}
}

const remoteSchema = `
CREATE TABLE IF NOT EXISTS remote_medications (
	user_id            TEXT        NOT NULL,
	id                 TEXT        NOT NULL,
	name               TEXT        NOT NULL,
	dosage             TEXT        NOT NULL DEFAULT '',
	times              TEXT[]      NOT NULL,
	rule_kind          TEXT        NOT NULL,
	rule_days          INT[],
	rule_interval_days INT,
	start_date         TIMESTAMPTZ NOT NULL,
	notes              TEXT        NOT NULL DEFAULT '',
	active             BOOLEAN     NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	synced_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS remote_dose_events (
	user_id         TEXT        NOT NULL,
	id              TEXT        NOT NULL,
	medication_id   TEXT        NOT NULL,
	medication_name TEXT        NOT NULL DEFAULT '',
	scheduled_at    TIMESTAMPTZ NOT NULL,
	taken_at        TIMESTAMPTZ,
	status          TEXT        NOT NULL,
	notes           TEXT        NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	synced_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, id)
);
`

// EnsureSchema creates the remote tables when missing.
func (r *PgRemote) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, remoteSchema); err != nil {
		return fmt.Errorf("ensure remote schema: %w", err)
	}
	return nil
}

// Helpers

func weekdaysToInts(days []time.Weekday) []int32 {
	if days == nil {
		return nil
	}
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

func intsToWeekdays(days []int32) []time.Weekday {
	if days == nil {
		return nil
	}
	out := make([]time.Weekday, len(days))
	for i, d := range days {
		out[i] = time.Weekday(d)
	}
	return out
}

func scanRemoteMedication(row pgx.Row) (*medication.Medication, error) {
	var m medication.Medication
	var days []int32
	var intervalDays *int32

	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Dosage,
		&m.Times,
		&m.Rule.Kind,
		&days,
		&intervalDays,
		&m.StartDate,
		&m.Notes,
		&m.Active,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Rule.Days = intsToWeekdays(days)
	if intervalDays != nil {
		m.Rule.IntervalDays = int(*intervalDays)
	}
	return &m, nil
}

func scanRemoteDoseEvent(row pgx.Row) (*medication.DoseEvent, error) {
	var ev medication.DoseEvent
	var takenAt *time.Time

	err := row.Scan(
		&ev.ID,
		&ev.MedicationID,
		&ev.MedicationName,
		&ev.ScheduledAt,
		&takenAt,
		&ev.Status,
		&ev.Notes,
		&ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	ev.TakenAt = takenAt
	return &ev, nil
}

// Interface methods

func (r *PgRemote) UpsertMedications(ctx context.Context, userID string, meds []medication.Medication) error {
	if len(meds) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin medication upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range meds {
		var intervalDays *int32
		if m.Rule.Kind == medication.RuleInterval {
			v := int32(m.Rule.IntervalDays)
			intervalDays = &v
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO remote_medications
				(user_id, id, name, dosage, times, rule_kind, rule_days, rule_interval_days,
				 start_date, notes, active, created_at, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
			ON CONFLICT (user_id, id) DO UPDATE SET
				name = EXCLUDED.name,
				dosage = EXCLUDED.dosage,
				times = EXCLUDED.times,
				rule_kind = EXCLUDED.rule_kind,
				rule_days = EXCLUDED.rule_days,
				rule_interval_days = EXCLUDED.rule_interval_days,
				start_date = EXCLUDED.start_date,
				notes = EXCLUDED.notes,
				active = EXCLUDED.active,
				created_at = EXCLUDED.created_at,
				synced_at = now()
		`, userID, m.ID, m.Name, m.Dosage, m.Times, m.Rule.Kind, weekdaysToInts(m.Rule.Days),
			intervalDays, m.StartDate, m.Notes, m.Active, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert medication %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit medication upsert: %w", err)
	}
	return nil
}

func (r *PgRemote) UpsertDoseEvents(ctx context.Context, userID string, events []medication.DoseEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dose event upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO remote_dose_events
				(user_id, id, medication_id, medication_name, scheduled_at, taken_at,
				 status, notes, created_at, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
			ON CONFLICT (user_id, id) DO UPDATE SET
				medication_id = EXCLUDED.medication_id,
				medication_name = EXCLUDED.medication_name,
				scheduled_at = EXCLUDED.scheduled_at,
				taken_at = EXCLUDED.taken_at,
				status = EXCLUDED.status,
				notes = EXCLUDED.notes,
				created_at = EXCLUDED.created_at,
				synced_at = now()
		`, userID, ev.ID, ev.MedicationID, ev.MedicationName, ev.ScheduledAt, ev.TakenAt,
			ev.Status, ev.Notes, ev.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert dose event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit dose event upsert: %w", err)
	}
	return nil
}

func (r *PgRemote) FetchMedications(ctx context.Context, userID string) ([]medication.Medication, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, dosage, times, rule_kind, rule_days, rule_interval_days,
		       start_date, notes, active, created_at
		FROM remote_medications
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch remote medications: %w", err)
	}
	defer rows.Close()

	var result []medication.Medication
	for rows.Next() {
		m, err := scanRemoteMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan remote medication: %w", err)
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRemote) FetchDoseEvents(ctx context.Context, userID string) ([]medication.DoseEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, medication_id, medication_name, scheduled_at, taken_at,
		       status, notes, created_at
		FROM remote_dose_events
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch remote dose events: %w", err)
	}
	defer rows.Close()

	var result []medication.DoseEvent
	for rows.Next() {
		ev, err := scanRemoteDoseEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan remote dose event: %w", err)
		}
		result = append(result, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
