package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// AuditRecord captures one resolved request end to end.
type AuditRecord struct {
	ID               string
	Tenant           string
	ConversationID   string
	CreatedAt        time.Time
	NormText         string
	Tier             string
	Intent           string
	Confidence       float64
	ProductIDs       string // JSON array stored as text
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Cost             float64
	Reason           string
}

// DailyUsage aggregates audit records for one tenant on one UTC day.
type DailyUsage struct {
	Tenant       string
	Day          string // YYYY-MM-DD, UTC
	Requests     int
	Tier2        int
	Tier3        int
	TotalTokens  int
	TotalCost    float64
	AvgLatencyMS float64
}
