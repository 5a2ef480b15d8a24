package api

import "time"

type RuleRequest struct {
	Kind         string `json:"kind"`
	Days         []int  `json:"days,omitempty"`
	IntervalDays int    `json:"interval_days,omitempty"`
}

type MedicationRequest struct {
	Name      string      `json:"name"`
	Dosage    string      `json:"dosage"`
	Times     []string    `json:"times"`
	Rule      RuleRequest `json:"rule"`
	StartDate string      `json:"start_date,omitempty"` // YYYY-MM-DD, defaults to today
	Notes     string      `json:"notes,omitempty"`
	Active    *bool       `json:"active,omitempty"` // defaults to true
}

type CreateLogRequest struct {
	MedicationID string `json:"medication_id"`
	Date         string `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
	Time         string `json:"time"`           // "HH:MM" slot the dose was due
	Status       string `json:"status,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

type SlotResponse struct {
	MedicationID string `json:"medication_id"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Status       string `json:"status"`
	EventID      string `json:"event_id,omitempty"`
}

type WeeklyAdherenceResponse struct {
	ReferenceDate string `json:"reference_date"`
	Percentages   []int  `json:"percentages"` // oldest first
}

type SyncResponse struct {
	Status   string    `json:"status"`
	SyncedAt time.Time `json:"synced_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
