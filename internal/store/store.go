package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
)

const microsPerUSD = 1_000_000

func toMicros(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(microsPerUSD)).Round(0).IntPart()
}

func fromMicros(m int64) decimal.Decimal {
	return decimal.NewFromInt(m).Div(decimal.NewFromInt(microsPerUSD))
}

// Store wraps the gorm connection and every query the pipeline needs.
// Grounded on the teacher's model.DB + per-entity query functions, but
// collapsed into one repository type because this module's surface is
// intentionally narrower than one-api's full admin CRUD set.
type Store struct {
	DB *gorm.DB
}

// Open selects a gorm dialect from the DSN scheme/prefix, connects, and
// runs AutoMigrate — mirroring the teacher's common.UsingMySQL /
// UsingPostgreSQL / UsingSQLite dialect switch in model/main.go-style
// init code.
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	case strings.HasPrefix(dsn, "mysql://") || strings.Contains(dsn, "@tcp("):
		dialector = mysql.Open(strings.TrimPrefix(dsn, "mysql://"))
	case dsn == "":
		dialector = sqlite.Open("file::memory:?cache=shared")
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, errors.Wrap(err, "automigrate")
	}
	return &Store{DB: db}, nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var row UserRow
	if err := s.DB.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return domain.User{}, errors.Wrapf(err, "get user %d", id)
	}
	return domain.User{
		ID:                   row.ID,
		Credits:              fromMicros(row.CreditsMicros),
		Tier:                 domain.UserTier(row.Tier),
		StripeSubscriptionID: row.StripeSubscriptionID,
		SubscriptionStatus:   row.SubscriptionStatus,
	}, nil
}

// GetAPIKeyUserID resolves a hashed API key to its owning user and key id.
func (s *Store) GetAPIKeyUserID(ctx context.Context, keyHash string) (userID, apiKeyID int64, err error) {
	var row APIKeyRow
	if err := s.DB.WithContext(ctx).First(&row, "key_hash = ? AND disabled = ?", keyHash, false).Error; err != nil {
		return 0, 0, errors.Wrap(err, "lookup api key")
	}
	return row.UserID, row.ID, nil
}

// GetPlan loads entitlements for a tier.
func (s *Store) GetPlan(ctx context.Context, tier domain.UserTier) (domain.Plan, error) {
	var row PlanRow
	if err := s.DB.WithContext(ctx).First(&row, "tier = ?", string(tier)).Error; err != nil {
		return domain.Plan{}, errors.Wrapf(err, "get plan %s", tier)
	}
	var features []string
	if row.FeaturesCSV != "" {
		features = strings.Split(row.FeaturesCSV, ",")
	}
	return domain.Plan{
		Tier:              domain.UserTier(row.Tier),
		DailyRequestCap:   row.DailyRequestCap,
		MonthlyRequestCap: row.MonthlyRequestCap,
		DailyTokenCap:     row.DailyTokenCap,
		MonthlyTokenCap:   row.MonthlyTokenCap,
		Features:          features,
		IsAdmin:           row.IsAdmin,
	}, nil
}

// DeductCredits atomically subtracts cost from a user's balance.
func (s *Store) DeductCredits(ctx context.Context, userID int64, cost decimal.Decimal) error {
	micros := toMicros(cost)
	res := s.DB.WithContext(ctx).Model(&UserRow{}).
		Where("id = ?", userID).
		Update("credits_micros", gorm.Expr("credits_micros - ?", micros))
	if res.Error != nil {
		return errors.Wrap(res.Error, "deduct credits")
	}
	return nil
}

// InsertUsageRecord appends a billed-usage ledger line.
func (s *Store) InsertUsageRecord(ctx context.Context, rec domain.UsageRecord) error {
	row := UsageRecordRow{
		UserID:      rec.UserID,
		APIKeyID:    rec.APIKeyID,
		Model:       rec.Model,
		TotalTokens: rec.TotalTokens,
		CostMicros:  toMicros(rec.CostUSD),
		LatencyMS:   rec.LatencyMS,
		Timestamp:   rec.Timestamp,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "insert usage record")
	}
	return nil
}

// UpsertChatCompletionRequest writes or updates the per-request audit row
// (spec.md §8 invariant 2).
func (s *Store) UpsertChatCompletionRequest(ctx context.Context, rec domain.ChatRequestRecord) error {
	row := ChatCompletionRequestRow{
		RequestID:        rec.RequestID,
		UserID:           rec.UserID,
		APIKeyID:         rec.APIKeyID,
		Model:            rec.Model,
		Provider:         rec.Provider,
		InputTokens:      rec.InputTokens,
		OutputTokens:     rec.OutputTokens,
		ProcessingTimeMS: rec.ProcessingTimeMS,
		Status:           string(rec.Status),
		ErrorMessage:     rec.ErrorMessage,
		CreatedAt:        rec.CreatedAt,
	}
	err := s.DB.WithContext(ctx).Save(&row).Error
	return errors.Wrap(err, "upsert chat completion request")
}

// GetTrialRecord loads a user's trial consumption row. gorm.ErrRecordNotFound
// is surfaced unwrapped so callers can treat "no trial row" as "not a
// trial user" via errors.Is.
func (s *Store) GetTrialRecord(ctx context.Context, userID int64) (domain.TrialRecord, error) {
	var row TrialRow
	if err := s.DB.WithContext(ctx).First(&row, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TrialRecord{}, err
		}
		return domain.TrialRecord{}, errors.Wrap(err, "get trial record")
	}
	return domain.TrialRecord{
		IsTrial:      true,
		TrialEndDate: row.TrialEndDate,
		UsedTokens:   row.UsedTokens,
		UsedRequests: row.UsedRequests,
		UsedCredits:  fromMicros(row.UsedCreditsMicros),
		MaxTokens:    row.MaxTokens,
		MaxRequests:  row.MaxRequests,
		CreditCap:    fromMicros(row.CreditCapMicros),
	}, nil
}

// TrackTrialUsage accumulates a trial user's consumption after one
// request (spec.md §4.7 "Charging: Trial users").
func (s *Store) TrackTrialUsage(ctx context.Context, userID int64, tokens int64, cost decimal.Decimal) error {
	res := s.DB.WithContext(ctx).Model(&TrialRow{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"used_tokens":         gorm.Expr("used_tokens + ?", tokens),
			"used_requests":       gorm.Expr("used_requests + 1"),
			"used_credits_micros": gorm.Expr("used_credits_micros + ?", toMicros(cost)),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "track trial usage")
	}
	return nil
}

// GetPricingOverlay returns the manual pricing overlay for a model id, if any.
func (s *Store) GetPricingOverlay(ctx context.Context, modelID string) (prompt, completion *decimal.Decimal, ok bool, err error) {
	var row ModelPricingRow
	e := s.DB.WithContext(ctx).First(&row, "model_id = ?", modelID).Error
	if errors.Is(e, gorm.ErrRecordNotFound) {
		return nil, nil, false, nil
	}
	if e != nil {
		return nil, nil, false, errors.Wrap(e, "get pricing overlay")
	}
	if row.PromptMicros != nil {
		v := fromMicros(*row.PromptMicros)
		prompt = &v
	}
	if row.CompletionMicros != nil {
		v := fromMicros(*row.CompletionMicros)
		completion = &v
	}
	return prompt, completion, true, nil
}

// UpsertPricingOverlay writes (or clears, with nil) a manual pricing
// override for a model id — the admin-facing half of SPEC_FULL.md's
// pricing overlay supplement.
func (s *Store) UpsertPricingOverlay(ctx context.Context, modelID string, prompt, completion *decimal.Decimal, updatedBy string) error {
	row := ModelPricingRow{ModelID: modelID, UpdatedAt: time.Now(), UpdatedBy: updatedBy}
	if prompt != nil {
		v := toMicros(*prompt)
		row.PromptMicros = &v
	}
	if completion != nil {
		v := toMicros(*completion)
		row.CompletionMicros = &v
	}
	err := s.DB.WithContext(ctx).Save(&row).Error
	return errors.Wrap(err, "upsert pricing overlay")
}

// LatestCatalogSnapshot returns the most recent successful ModelRecord
// rows persisted for a source gateway — the §4.3 fallback source used
// when a fetcher cannot reach its provider.
func (s *Store) LatestCatalogSnapshot(ctx context.Context, sourceGateway string) ([]domain.ModelRecord, error) {
	var rows []ModelsCatalogRow
	if err := s.DB.WithContext(ctx).
		Where("source_gateway = ?", sourceGateway).
		Order("fetched_at desc").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load catalog snapshot")
	}

	seen := make(map[string]bool)
	out := make([]domain.ModelRecord, 0, len(rows))
	for _, row := range rows {
		if seen[row.ModelID] {
			continue
		}
		seen[row.ModelID] = true
		var rec domain.ModelRecord
		if err := json.Unmarshal([]byte(row.RawJSON), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveCatalogSnapshot persists the latest successful fetch for a
// gateway, one row per model, for later fallback use.
func (s *Store) SaveCatalogSnapshot(ctx context.Context, sourceGateway string, records []domain.ModelRecord, fetchedAt time.Time) error {
	rows := make([]ModelsCatalogRow, 0, len(records))
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		rows = append(rows, ModelsCatalogRow{
			SourceGateway: sourceGateway,
			ModelID:       rec.ID,
			RawJSON:       string(raw),
			FetchedAt:     fetchedAt,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.DB.WithContext(ctx).Create(&rows).Error; err != nil {
		return errors.Wrap(err, "save catalog snapshot")
	}
	return nil
}

// LogPricingSync appends a §4.3/§4.4 fetch-run audit row.
func (s *Store) LogPricingSync(ctx context.Context, sourceGateway string, success bool, modelsFetched int, errMsg string) error {
	row := PricingSyncLogRow{
		SourceGateway: sourceGateway,
		Success:       success,
		ModelsFetched: modelsFetched,
		ErrorMessage:  errMsg,
		RanAt:         time.Now(),
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "log pricing sync")
	}
	return nil
}
