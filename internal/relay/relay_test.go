package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/auth"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/cache"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/circuitbreaker"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/config"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/pricing"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/providerapi"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/router"
)

func hashAPIKeyForTest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

var assertErrRelay = errors.New("provider unavailable")

type fakeAuthStore struct {
	users     map[int64]domain.User
	apiKeys   map[string]int64
	plans     map[domain.UserTier]domain.Plan
	charges   []decimal.Decimal
	records   []domain.UsageRecord
	deductErr error
}

func (f *fakeAuthStore) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return f.users[id], nil
}
func (f *fakeAuthStore) GetAPIKeyUserID(ctx context.Context, keyHash string) (int64, int64, error) {
	return f.apiKeys[keyHash], 1, nil
}
func (f *fakeAuthStore) GetPlan(ctx context.Context, tier domain.UserTier) (domain.Plan, error) {
	return f.plans[tier], nil
}
func (f *fakeAuthStore) GetTrialRecord(ctx context.Context, userID int64) (domain.TrialRecord, error) {
	return domain.TrialRecord{}, nil
}
func (f *fakeAuthStore) TrackTrialUsage(ctx context.Context, userID int64, tokens int64, cost decimal.Decimal) error {
	return nil
}
func (f *fakeAuthStore) DeductCredits(ctx context.Context, userID int64, cost decimal.Decimal) error {
	f.charges = append(f.charges, cost)
	return f.deductErr
}
func (f *fakeAuthStore) InsertUsageRecord(ctx context.Context, rec domain.UsageRecord) error {
	f.records = append(f.records, rec)
	return nil
}

type fakeCatalogLookup struct{ rec domain.ModelRecord }

func (f fakeCatalogLookup) Lookup(modelID string) (domain.ModelRecord, bool) { return f.rec, true }

type fakeRegistry struct{ providers []string }

func (f fakeRegistry) ProvidersFor(modelID string) []string { return f.providers }
func (f fakeRegistry) NativeModelID(modelID, providerSlug string) (string, bool) {
	return modelID, true
}

type fakeProvider struct {
	slug        string
	usage       domain.Usage
	err         error
	streamErr   error
	chunks      []domain.InternalStreamChunk
	neverCloses bool
}

func (f fakeProvider) Slug() string { return f.slug }
func (f fakeProvider) ChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (domain.InternalChatResponse, error) {
	if f.err != nil {
		return domain.InternalChatResponse{}, f.err
	}
	return domain.InternalChatResponse{Model: nativeModelID, Usage: f.usage}, nil
}
func (f fakeProvider) StreamChatCompletion(ctx context.Context, nativeModelID string, req domain.InternalChatRequest) (<-chan domain.InternalStreamChunk, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	ch := make(chan domain.InternalStreamChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	if !f.neverCloses {
		close(ch)
	}
	return ch, nil
}

type fakeRequestStore struct {
	mu   sync.Mutex
	recs []domain.ChatRequestRecord
}

func (f *fakeRequestStore) UpsertChatCompletionRequest(ctx context.Context, rec domain.ChatRequestRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeRequestStore) snapshot() []domain.ChatRequestRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ChatRequestRecord, len(f.recs))
	copy(out, f.recs)
	return out
}

func newTestHandler(t *testing.T, provider fakeProvider, authStore *fakeAuthStore) (*Handler, *fakeRequestStore) {
	t.Helper()

	authSvc := auth.New(authStore, cache.NewMemoryStore(time.Minute), config.AuthConfig{
		PlanCacheTTL: time.Minute, TrialActiveCacheTTL: time.Minute, TrialInactiveCacheTTL: time.Minute, APIKeyLookupRetries: 1,
	}, config.EnvLive)

	pricingSvc := pricing.New(nil, fakeCatalogLookup{rec: domain.ModelRecord{
		Pricing: domain.Pricing{
			Prompt:     decPtrRelay("0.000005"),
			Completion: decPtrRelay("0.000015"),
		},
	}}, decimal.NewFromFloat(0.01))

	r := router.New(fakeRegistry{providers: []string{provider.slug}}, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()),
		map[string]providerapi.ChatProvider{provider.slug: provider}, provider.slug)

	store := &fakeRequestStore{}
	return New(authSvc, pricingSvc, r, store, false), store
}

func decPtrRelay(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestChatCompletionChargesAndPersistsOnSuccess(t *testing.T) {
	authStore := &fakeAuthStore{
		users:   map[int64]domain.User{7: {ID: 7, Tier: domain.TierPro, Credits: decimal.NewFromInt(100)}},
		apiKeys: map[string]int64{},
		plans:   map[domain.UserTier]domain.Plan{},
	}
	authStore.apiKeys[hashAPIKeyForTest("sk-test")] = 7

	provider := fakeProvider{slug: "openai", usage: domain.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}}
	h, store := newTestHandler(t, provider, authStore)

	resp, err := h.ChatCompletion(context.Background(), "sk-test", domain.InternalChatRequest{Model: "openai/gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.ProviderUsed)
	assert.True(t, resp.CostUSD.GreaterThan(decimal.Zero))
	require.Len(t, authStore.charges, 1)

	recs := store.snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.StatusCompleted, recs[0].Status)
}

func TestChatCompletionFailsClosedWhenProviderErrors(t *testing.T) {
	authStore := &fakeAuthStore{
		users:   map[int64]domain.User{7: {ID: 7, Tier: domain.TierPro, Credits: decimal.NewFromInt(100)}},
		apiKeys: map[string]int64{},
	}
	authStore.apiKeys[hashAPIKeyForTest("sk-test")] = 7

	provider := fakeProvider{slug: "openai", err: assertErrRelay}
	h, store := newTestHandler(t, provider, authStore)

	_, err := h.ChatCompletion(context.Background(), "sk-test", domain.InternalChatRequest{Model: "openai/gpt-4o"})
	assert.Error(t, err)

	recs := store.snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.StatusFailed, recs[0].Status)
}

func TestChatCompletionSurfacesChargeFailureAsFailedRecord(t *testing.T) {
	authStore := &fakeAuthStore{
		users:     map[int64]domain.User{7: {ID: 7, Tier: domain.TierPro, Credits: decimal.NewFromInt(100)}},
		apiKeys:   map[string]int64{},
		deductErr: errors.New("ledger unavailable"),
	}
	authStore.apiKeys[hashAPIKeyForTest("sk-test")] = 7

	provider := fakeProvider{slug: "openai", usage: domain.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}}
	h, store := newTestHandler(t, provider, authStore)

	_, err := h.ChatCompletion(context.Background(), "sk-test", domain.InternalChatRequest{Model: "openai/gpt-4o"})
	assert.ErrorIs(t, err, ErrChargeFailed)

	recs := store.snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.StatusFailed, recs[0].Status)
	assert.NotEmpty(t, recs[0].ErrorMessage)
}

func TestChatCompletionRejectsMissingUsage(t *testing.T) {
	authStore := &fakeAuthStore{
		users:   map[int64]domain.User{7: {ID: 7, Tier: domain.TierPro, Credits: decimal.NewFromInt(100)}},
		apiKeys: map[string]int64{},
	}
	authStore.apiKeys[hashAPIKeyForTest("sk-test")] = 7

	provider := fakeProvider{slug: "openai", usage: domain.Usage{}}
	h, _ := newTestHandler(t, provider, authStore)

	_, err := h.ChatCompletion(context.Background(), "sk-test", domain.InternalChatRequest{Model: "openai/gpt-4o"})
	assert.ErrorIs(t, err, ErrMissingUsage)
}
