// Package domain holds the JSON payloads of the HTTP API.
package domain

import "time"

// RunRequest starts a background recommendation run.
type RunRequest struct {
	Branch string `json:"branch"`
	View   string `json:"view"`
}

type BranchFailure struct {
	Branch string `json:"branch"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type BranchDiagnostics struct {
	BlankGroupIDs        int      `json:"blank_group_ids"`
	SkippedValues        int      `json:"skipped_values"`
	ClampedNegatives     int      `json:"clamped_negatives"`
	OutOfWindowLines     int      `json:"out_of_window_lines"`
	DroppedOrderGroups   []string `json:"dropped_order_groups,omitempty"`
	DroppedInvoiceGroups []string `json:"dropped_invoice_groups,omitempty"`
	MissingPolicies      int      `json:"missing_policies"`
	DurationMs           int64    `json:"duration_ms"`
}

// Table rows are keyed by column name; null cells are JSON null.
type Table struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

type RecommendationResponse struct {
	Branches    []string                     `json:"branches"`
	View        string                       `json:"view"`
	Periods     map[string][]string          `json:"periods"`
	Complete    bool                         `json:"complete"`
	Failures    []BranchFailure              `json:"failures"`
	Diagnostics map[string]BranchDiagnostics `json:"diagnostics"`
	GeneratedAt time.Time                    `json:"generated_at"`
	Table
}

type RunResponse struct {
	ID          string                  `json:"id"`
	Status      string                  `json:"status"`
	Branches    []string                `json:"branches"`
	View        string                  `json:"view"`
	Progress    map[string]string       `json:"progress"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Result      *RecommendationResponse `json:"result,omitempty"`
}

type AnalysisResponse struct {
	Branches    []string        `json:"branches"`
	Months      int             `json:"months"`
	Since       time.Time       `json:"since"`
	Failures    []BranchFailure `json:"failures"`
	GeneratedAt time.Time       `json:"generated_at"`
	Table
}

type BranchesResponse struct {
	Branches []string `json:"branches"`
	Views    []string `json:"views"`
	Periods  []int    `json:"analysis_periods"`
}
