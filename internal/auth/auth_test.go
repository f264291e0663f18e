package auth

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/cache"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/config"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
)

type fakeStore struct {
	users       map[int64]domain.User
	apiKeys     map[string]int64 // keyHash -> userID
	plans       map[domain.UserTier]domain.Plan
	trials      map[int64]domain.TrialRecord
	lookupErr   error
	deductCalls []decimal.Decimal
	usageRecs   []domain.UsageRecord
	trialUsage  []int64
}

func (f *fakeStore) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return f.users[id], nil
}
func (f *fakeStore) GetAPIKeyUserID(ctx context.Context, keyHash string) (int64, int64, error) {
	if f.lookupErr != nil {
		return 0, 0, f.lookupErr
	}
	return f.apiKeys[keyHash], 1, nil
}
func (f *fakeStore) GetPlan(ctx context.Context, tier domain.UserTier) (domain.Plan, error) {
	return f.plans[tier], nil
}
func (f *fakeStore) GetTrialRecord(ctx context.Context, userID int64) (domain.TrialRecord, error) {
	rec, ok := f.trials[userID]
	if !ok {
		return domain.TrialRecord{}, assert.AnError
	}
	return rec, nil
}
func (f *fakeStore) TrackTrialUsage(ctx context.Context, userID int64, tokens int64, cost decimal.Decimal) error {
	f.trialUsage = append(f.trialUsage, userID)
	return nil
}
func (f *fakeStore) DeductCredits(ctx context.Context, userID int64, cost decimal.Decimal) error {
	f.deductCalls = append(f.deductCalls, cost)
	return nil
}
func (f *fakeStore) InsertUsageRecord(ctx context.Context, rec domain.UsageRecord) error {
	f.usageRecs = append(f.usageRecs, rec)
	return nil
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		PlanCacheTTL: time.Minute, TrialActiveCacheTTL: time.Minute,
		TrialInactiveCacheTTL: time.Minute, APIKeyLookupRetries: 2,
	}
}

func TestResolveUserBypassKeys(t *testing.T) {
	svc := New(&fakeStore{}, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)

	user, apiKeyID, err := svc.ResolveUser(context.Background(), "local-dev-bypass-key")
	require.NoError(t, err)
	assert.Equal(t, domain.TierAdmin, user.Tier)
	assert.Zero(t, apiKeyID)

	user, _, err = svc.ResolveUser(context.Background(), "anonymous")
	require.NoError(t, err)
	assert.Equal(t, domain.TierAdmin, user.Tier)
}

func TestResolveUserLooksUpAndCaches(t *testing.T) {
	store := &fakeStore{
		users:   map[int64]domain.User{7: {ID: 7, Tier: domain.TierPro, Credits: decimal.NewFromInt(10)}},
		apiKeys: map[string]int64{hashAPIKey("sk-test"): 7},
	}
	svc := New(store, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)

	user, apiKeyID, err := svc.ResolveUser(context.Background(), "sk-test")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, int64(1), apiKeyID)

	// Second call should hit the cache, not the store, for the user load.
	store.users = map[int64]domain.User{}
	user2, _, err := svc.ResolveUser(context.Background(), "sk-test")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user2.ID)
}

func TestResolveUserRetriesThenFails(t *testing.T) {
	store := &fakeStore{lookupErr: assert.AnError}
	svc := New(store, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)

	_, _, err := svc.ResolveUser(context.Background(), "sk-bad")
	assert.Error(t, err)
}

func TestInvalidateUserDropsCache(t *testing.T) {
	store := &fakeStore{users: map[int64]domain.User{7: {ID: 7, Tier: domain.TierPro}}}
	kv := cache.NewMemoryStore(time.Minute)
	svc := New(store, kv, testAuthConfig(), config.EnvLive)

	_, err := svc.cachedUser(context.Background(), 7)
	require.NoError(t, err)

	svc.InvalidateUser(context.Background(), 7)
	_, ok, _ := kv.GetString(context.Background(), userCacheKey(7))
	assert.False(t, ok)
}

func TestGetPlanAdminIsUnlimited(t *testing.T) {
	store := &fakeStore{plans: map[domain.UserTier]domain.Plan{
		domain.TierAdmin: {Tier: domain.TierAdmin, IsAdmin: true, DailyTokenCap: 1000},
	}}
	svc := New(store, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)

	plan, err := svc.GetPlan(context.Background(), domain.TierAdmin)
	require.NoError(t, err)
	assert.EqualValues(t, -1, plan.DailyTokenCap)
	assert.EqualValues(t, -1, plan.MonthlyRequestCap)
}

func TestGetPlanNonLiveEnvironmentHalves(t *testing.T) {
	store := &fakeStore{plans: map[domain.UserTier]domain.Plan{
		domain.TierPro: {Tier: domain.TierPro, DailyRequestCap: 1000, DailyTokenCap: 100_000},
	}}
	svc := New(store, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvDevelopment)

	plan, err := svc.GetPlan(context.Background(), domain.TierPro)
	require.NoError(t, err)
	assert.EqualValues(t, 500, plan.DailyRequestCap)
	assert.EqualValues(t, 50_000, plan.DailyTokenCap)
}

func TestGetPlanLiveEnvironmentFloorsDailyTokenCap(t *testing.T) {
	store := &fakeStore{plans: map[domain.UserTier]domain.Plan{
		domain.TierTrial: {Tier: domain.TierTrial, DailyTokenCap: 1000},
	}}
	svc := New(store, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)

	plan, err := svc.GetPlan(context.Background(), domain.TierTrial)
	require.NoError(t, err)
	assert.EqualValues(t, 25_000, plan.DailyTokenCap)
}

func TestValidateTrialAdminBypasses(t *testing.T) {
	svc := New(&fakeStore{}, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)
	_, active, err := svc.ValidateTrial(context.Background(), domain.User{Tier: domain.TierAdmin})
	require.NoError(t, err)
	assert.False(t, active)
}

func TestValidateTrialActiveSubscriptionBypassesEvenIfFlaggedTrial(t *testing.T) {
	svc := New(&fakeStore{}, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)
	user := domain.User{Tier: domain.TierTrial, StripeSubscriptionID: "sub_1", SubscriptionStatus: "active"}
	_, active, err := svc.ValidateTrial(context.Background(), user)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestValidateTrialActiveRecord(t *testing.T) {
	store := &fakeStore{trials: map[int64]domain.TrialRecord{
		9: {IsTrial: true, TrialEndDate: time.Now().Add(time.Hour), MaxTokens: 1000, UsedTokens: 10},
	}}
	svc := New(store, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)

	_, active, err := svc.ValidateTrial(context.Background(), domain.User{ID: 9, Tier: domain.TierTrial})
	require.NoError(t, err)
	assert.True(t, active)
}

func TestValidateTrialNoRowMeansNotOnTrial(t *testing.T) {
	svc := New(&fakeStore{trials: map[int64]domain.TrialRecord{}}, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)
	_, active, err := svc.ValidateTrial(context.Background(), domain.User{ID: 123, Tier: domain.TierTrial})
	require.NoError(t, err)
	assert.False(t, active)
}

func TestPreflightCheckRejectsInsufficientCredits(t *testing.T) {
	svc := New(&fakeStore{}, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)
	user := domain.User{Tier: domain.TierPro, Credits: decimal.NewFromFloat(0.01)}

	err := svc.PreflightCheck(user, decimal.NewFromFloat(1.0))
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestPreflightCheckAdminAlwaysPasses(t *testing.T) {
	svc := New(&fakeStore{}, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)
	user := domain.User{Tier: domain.TierAdmin, Credits: decimal.Zero}

	err := svc.PreflightCheck(user, decimal.NewFromFloat(1000))
	assert.NoError(t, err)
}

func TestChargePaidDeductsAndRecords(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)

	rec := domain.UsageRecord{UserID: 7, CostUSD: decimal.NewFromFloat(0.05)}
	err := svc.ChargePaid(context.Background(), rec)
	require.NoError(t, err)
	assert.Len(t, store.deductCalls, 1)
	assert.Len(t, store.usageRecs, 1)
}

func TestChargeTrialTracksUsage(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, cache.NewMemoryStore(time.Minute), testAuthConfig(), config.EnvLive)

	err := svc.ChargeTrial(context.Background(), 7, 100, decimal.NewFromFloat(0.01))
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, store.trialUsage)
}
