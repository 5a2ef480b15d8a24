package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neveront/medtenance/internal/medication"
	"github.com/neveront/medtenance/internal/schedule"
	"github.com/neveront/medtenance/internal/store"
	medsync "github.com/neveront/medtenance/internal/sync"
)

// Deps carries what the handlers need. Now is injectable so the schedule
// endpoints are testable against a fixed clock.
type Deps struct {
	Store      *store.LocalStore
	Reconciler *medsync.Reconciler
	Now        func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

const dateLayout = "2006-01-02"

// parseDateParam reads a YYYY-MM-DD query param, defaulting to today.
func parseDateParam(r *http.Request, now time.Time) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return now, nil
	}
	d, err := time.ParseInLocation(dateLayout, raw, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return d, nil
}

func ruleFromRequest(req RuleRequest) medication.Rule {
	rule := medication.Rule{
		Kind:         medication.RuleKind(req.Kind),
		IntervalDays: req.IntervalDays,
	}
	for _, d := range req.Days {
		rule.Days = append(rule.Days, time.Weekday(d))
	}
	return rule
}

// Medications

func createMedicationHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MedicationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		now := deps.now()
		startDate := schedule.StartOfDay(now)
		if req.StartDate != "" {
			parsed, err := time.ParseInLocation(dateLayout, req.StartDate, now.Location())
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be YYYY-MM-DD")
				return
			}
			startDate = parsed
		}

		active := true
		if req.Active != nil {
			active = *req.Active
		}

		med := medication.Medication{
			ID:        uuid.NewString(),
			Name:      req.Name,
			Dosage:    req.Dosage,
			Times:     req.Times,
			Rule:      ruleFromRequest(req.Rule),
			StartDate: startDate,
			Notes:     req.Notes,
			Active:    active,
			CreatedAt: now,
		}

		if err := deps.Store.AddMedication(r.Context(), med); err != nil {
			handleStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, med)
	}
}

func listMedicationsHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meds, err := deps.Store.Medications(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, meds)
	}
}

func getMedicationHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		meds, err := deps.Store.Medications(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		for _, m := range meds {
			if m.ID == id {
				writeJSON(w, http.StatusOK, m)
				return
			}
		}
		writeError(w, http.StatusNotFound, "medication_not_found", "no medication with id "+id)
	}
}

func updateMedicationHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req MedicationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		meds, err := deps.Store.Medications(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		var existing *medication.Medication
		for i := range meds {
			if meds[i].ID == id {
				existing = &meds[i]
				break
			}
		}
		if existing == nil {
			writeError(w, http.StatusNotFound, "medication_not_found", "no medication with id "+id)
			return
		}

		now := deps.now()
		updated := *existing
		updated.Name = req.Name
		updated.Dosage = req.Dosage
		updated.Times = req.Times
		updated.Rule = ruleFromRequest(req.Rule)
		updated.Notes = req.Notes
		if req.StartDate != "" {
			parsed, err := time.ParseInLocation(dateLayout, req.StartDate, now.Location())
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be YYYY-MM-DD")
				return
			}
			updated.StartDate = parsed
		}
		if req.Active != nil {
			updated.Active = *req.Active
		}

		ok, err := deps.Store.UpdateMedication(r.Context(), updated)
		if err != nil {
			handleStoreError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "medication_not_found", "no medication with id "+id)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteMedicationHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ok, err := deps.Store.DeleteMedication(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "medication_not_found", "no medication with id "+id)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Schedule and adherence

func scheduleHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := parseDateParam(r, deps.now())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		meds, err := deps.Store.Medications(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		events, err := deps.Store.DoseEventsByDate(r.Context(), date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		slots := schedule.ForDate(meds, events, date)
		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{
				MedicationID: s.Medication.ID,
				Name:         s.Medication.Name,
				Dosage:       s.Medication.Dosage,
				Date:         s.Date.Format(dateLayout),
				Time:         s.Time,
				Status:       string(s.Status),
				EventID:      s.EventID,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func weeklyAdherenceHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := parseDateParam(r, deps.now())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		meds, err := deps.Store.Medications(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		events, err := deps.Store.DoseEvents(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, WeeklyAdherenceResponse{
			ReferenceDate: schedule.StartOfDay(date).Format(dateLayout),
			Percentages:   schedule.WeeklyAdherence(meds, events, date),
		})
	}
}

func adherenceSummaryHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := deps.Store.DoseEvents(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		since := schedule.StartOfDay(deps.now()).AddDate(0, 0, -6)
		writeJSON(w, http.StatusOK, schedule.Summarize(events, since))
	}
}

// Dose logs

func listLogsHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") == "" {
			events, err := deps.Store.DoseEvents(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
			writeJSON(w, http.StatusOK, events)
			return
		}

		date, err := parseDateParam(r, deps.now())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
		events, err := deps.Store.DoseEventsByDate(r.Context(), date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func createLogHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateLogRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if !medication.ValidTimeOfDay(req.Time) {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}

		now := deps.now()
		day := schedule.StartOfDay(now)
		if req.Date != "" {
			parsed, err := time.ParseInLocation(dateLayout, req.Date, now.Location())
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			day = parsed
		}

		meds, err := deps.Store.Medications(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		var med *medication.Medication
		for i := range meds {
			if meds[i].ID == req.MedicationID {
				med = &meds[i]
				break
			}
		}
		if med == nil {
			writeError(w, http.StatusNotFound, "medication_not_found", "no medication with id "+req.MedicationID)
			return
		}

		hour := int(req.Time[0]-'0')*10 + int(req.Time[1]-'0')
		minute := int(req.Time[3]-'0')*10 + int(req.Time[4]-'0')
		y, m, d := day.Date()
		scheduledAt := time.Date(y, m, d, hour, minute, 0, 0, day.Location())

		ev := medication.DoseEvent{
			ID:             uuid.NewString(),
			MedicationID:   med.ID,
			MedicationName: medication.Snapshot(*med),
			ScheduledAt:    scheduledAt,
			Status:         medication.DoseTaken,
			Notes:          req.Notes,
			CreatedAt:      now,
		}
		switch req.Status {
		case "", string(medication.DoseTaken):
			ev.MarkTaken(now)
		case string(medication.DoseMissed):
			ev.MarkMissed()
		default:
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be taken or missed")
			return
		}

		if err := deps.Store.AddDoseEvent(r.Context(), ev); err != nil {
			handleStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ev)
	}
}

func transitionLogHandler(deps Deps, to medication.DoseStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		events, err := deps.Store.DoseEvents(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		var ev *medication.DoseEvent
		for i := range events {
			if events[i].ID == id {
				ev = &events[i]
				break
			}
		}
		if ev == nil {
			writeError(w, http.StatusNotFound, "log_not_found", "no dose event with id "+id)
			return
		}

		switch to {
		case medication.DoseTaken:
			ev.MarkTaken(deps.now())
		case medication.DoseMissed:
			ev.MarkMissed()
		}

		ok, err := deps.Store.UpdateDoseEvent(r.Context(), *ev)
		if err != nil {
			handleStoreError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "log_not_found", "no dose event with id "+id)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// Sync

func syncHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Reconciler.Sync(r.Context())
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, SyncResponse{Status: "complete", SyncedAt: deps.now()})
		case errors.Is(err, medsync.ErrSyncInFlight):
			writeError(w, http.StatusConflict, "sync_in_flight", "a sync cycle is already running")
		case errors.Is(err, medsync.ErrNotConnected):
			writeError(w, http.StatusServiceUnavailable, "not_connected", "remote store is not reachable")
		default:
			writeError(w, http.StatusBadGateway, "sync_failed", err.Error())
		}
	}
}

func handleStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, medication.ErrInvalidMedication),
		errors.Is(err, medication.ErrInvalidDoseEvent):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, store.ErrDuplicateID):
		writeError(w, http.StatusConflict, "duplicate_id", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
