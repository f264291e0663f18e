// Package store is the opaque data-access layer spec.md §6.4 describes:
// users, api_keys_new, user_plans, plans, usage_records,
// chat_completion_requests, model_pricing, models_catalog,
// pricing_sync_log. Backed by gorm with postgres/mysql/sqlite drivers,
// matching the teacher's model package persistence style (plain gorm
// structs, explicit table names, no active-record helpers beyond small
// query methods).
package store

import (
	"time"
)

// UserRow backs the `users` table.
type UserRow struct {
	ID                   int64  `gorm:"primaryKey"`
	Tier                 string `gorm:"size:32;index"`
	CreditsMicros        int64  // credits stored as micro-USD (1e-6) integer to avoid float drift at rest
	StripeSubscriptionID string `gorm:"size:128"`
	SubscriptionStatus   string `gorm:"size:32"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (UserRow) TableName() string { return "users" }

// APIKeyRow backs `api_keys_new`.
type APIKeyRow struct {
	ID        int64  `gorm:"primaryKey"`
	UserID    int64  `gorm:"index"`
	KeyHash   string `gorm:"size:128;uniqueIndex"`
	Name      string `gorm:"size:128"`
	Disabled  bool
	CreatedAt time.Time
}

func (APIKeyRow) TableName() string { return "api_keys_new" }

// PlanRow backs `plans`, one row per tier.
type PlanRow struct {
	Tier              string `gorm:"primaryKey;size:32"`
	DailyRequestCap   int64
	MonthlyRequestCap int64
	DailyTokenCap     int64
	MonthlyTokenCap   int64
	FeaturesCSV       string `gorm:"size:512"`
	IsAdmin           bool
}

func (PlanRow) TableName() string { return "plans" }

// UserPlanRow backs `user_plans` — the assignment of a plan to a user,
// distinct from PlanRow so a plan change event can be recorded and the
// §4.7 cache invalidated for that user specifically.
type UserPlanRow struct {
	UserID     int64 `gorm:"primaryKey"`
	Tier       string `gorm:"size:32"`
	AssignedAt time.Time
	ExpiresAt  *time.Time
}

func (UserPlanRow) TableName() string { return "user_plans" }

// UsageRecordRow backs `usage_records`.
type UsageRecordRow struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	UserID      int64 `gorm:"index"`
	APIKeyID    int64 `gorm:"index"`
	Model       string `gorm:"size:256;index"`
	TotalTokens int64
	CostMicros  int64
	LatencyMS   int64
	Timestamp   time.Time `gorm:"index"`
}

func (UsageRecordRow) TableName() string { return "usage_records" }

// ChatCompletionRequestRow backs `chat_completion_requests` — spec.md §8
// invariant 2 requires this row to exist with matching request_id and
// non-null status for every request that is admitted.
type ChatCompletionRequestRow struct {
	RequestID        string `gorm:"primaryKey;size:64"`
	UserID           int64  `gorm:"index"`
	APIKeyID         int64  `gorm:"index"`
	Model            string `gorm:"size:256"`
	Provider         string `gorm:"size:128"`
	InputTokens      int64
	OutputTokens     int64
	ProcessingTimeMS int64
	Status           string `gorm:"size:16;not null"`
	ErrorMessage     string `gorm:"size:1024"`
	CreatedAt        time.Time `gorm:"index"`
}

func (ChatCompletionRequestRow) TableName() string { return "chat_completion_requests" }

// TrialRow backs `trials` — one row per user on a trial plan, tracking
// consumption against the trial's caps (spec.md §4.7 "trial validation").
type TrialRow struct {
	UserID       int64 `gorm:"primaryKey"`
	TrialEndDate time.Time
	UsedTokens   int64
	UsedRequests int64
	UsedCreditsMicros int64
	MaxTokens    int64
	MaxRequests  int64
	CreditCapMicros int64
}

func (TrialRow) TableName() string { return "trials" }

// ModelPricingRow backs `model_pricing` — the manual pricing overlay
// store SPEC_FULL.md supplements §4.3's "manual-pricing overlay" with.
type ModelPricingRow struct {
	ModelID           string `gorm:"primaryKey;size:256"`
	PromptMicros      *int64
	CompletionMicros  *int64
	UpdatedAt         time.Time
	UpdatedBy         string `gorm:"size:128"`
}

func (ModelPricingRow) TableName() string { return "model_pricing" }

// ModelsCatalogRow backs `models_catalog` — the most recent successful
// snapshot per provider, used as §4.3's fallback source when a fetcher
// cannot reach its provider.
type ModelsCatalogRow struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	SourceGateway string `gorm:"size:128;index"`
	ModelID       string `gorm:"size:256;index"`
	RawJSON       string `gorm:"type:text"`
	FetchedAt     time.Time `gorm:"index"`
}

func (ModelsCatalogRow) TableName() string { return "models_catalog" }

// PricingSyncLogRow backs `pricing_sync_log`, an append-only audit trail
// of catalog sync runs (success/failure, counts) referenced by §4.4/§9.
type PricingSyncLogRow struct {
	ID            int64 `gorm:"primaryKey;autoIncrement"`
	SourceGateway string `gorm:"size:128;index"`
	Success       bool
	ModelsFetched int
	ErrorMessage  string `gorm:"size:1024"`
	RanAt         time.Time `gorm:"index"`
}

func (PricingSyncLogRow) TableName() string { return "pricing_sync_log" }

// AllModels lists every gorm model for AutoMigrate.
func AllModels() []any {
	return []any{
		&UserRow{}, &APIKeyRow{}, &PlanRow{}, &UserPlanRow{}, &TrialRow{},
		&UsageRecordRow{}, &ChatCompletionRequestRow{},
		&ModelPricingRow{}, &ModelsCatalogRow{}, &PricingSyncLogRow{},
	}
}
