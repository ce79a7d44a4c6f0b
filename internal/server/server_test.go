package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/gemloyalty/internal/config"
	"github.com/dukerupert/gemloyalty/internal/database"
	"github.com/dukerupert/gemloyalty/internal/ledger"
	"github.com/dukerupert/gemloyalty/internal/model"
)

const adminToken = "front-desk-token"

func setupServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash admin token: %v", err)
	}

	cfg := &config.Config{
		Ledger:            ledger.DefaultConfig(),
		AnalyticsInterval: time.Hour,
		AdminTokenHash:    string(hash),
		RedeemRateLimit:   3,
	}
	srv, err := New(db, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	h := setupServer(t)
	rec := do(t, h, "GET", "/health", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec)["status"]; got != "ok" {
		t.Errorf("status = %v, want ok", got)
	}
}

func TestSurveyRedeemFlow(t *testing.T) {
	h := setupServer(t)

	for _, ref := range []string{"s-1", "s-2"} {
		rec := do(t, h, "POST", "/api/events/survey-completed", map[string]string{
			"account_id": "u1", "survey_type": "exhibit_feedback", "survey_ref": ref,
		})
		expectStatus(t, rec, http.StatusCreated)
	}

	rec := do(t, h, "GET", "/api/accounts/u1/summary", nil)
	expectStatus(t, rec, http.StatusOK)
	summary := decode[model.Summary](t, rec)
	if summary.Balance != 40 || summary.Badge != model.BadgeExplorer {
		t.Errorf("summary = %d/%s, want 40/Explorer", summary.Balance, summary.Badge)
	}

	rec = do(t, h, "POST", "/api/events/redemption-requested", map[string]string{
		"account_id": "u1", "reward_name": "Sticker Sheet",
	})
	expectStatus(t, rec, http.StatusCreated)
	if got := decode[model.RedeemResult](t, rec).NewBalance; got != 0 {
		t.Errorf("new balance = %d, want 0", got)
	}

	rec = do(t, h, "POST", "/api/events/redemption-requested", map[string]string{
		"account_id": "u1", "reward_name": "Sticker Sheet",
	})
	expectStatus(t, rec, http.StatusConflict)
	if got := decode[map[string]string](t, rec)["code"]; got != "insufficient_balance" {
		t.Errorf("code = %q, want insufficient_balance", got)
	}

	rec = do(t, h, "GET", "/api/accounts/u1/redemptions?limit=5", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]model.Redemption](t, rec); len(got) != 1 || got[0].RewardName != "Sticker Sheet" {
		t.Errorf("redemptions = %+v", got)
	}

	rec = do(t, h, "GET", "/api/accounts/u1/transactions", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]model.Transaction](t, rec); len(got) != 3 {
		t.Errorf("transactions = %d, want 3", len(got))
	}

	rec = do(t, h, "GET", "/api/accounts/u1/verify", nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestErrorMapping(t *testing.T) {
	h := setupServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed", "POST", "/api/events/survey-completed", map[string]string{"account_id": "u1"}, http.StatusBadRequest, "malformed_reference"},
		{"unknown reward", "POST", "/api/events/redemption-requested", map[string]string{"account_id": "u1", "reward_name": "Golden Scarab"}, http.StatusNotFound, "reward_not_found"},
		{"not enrolled", "POST", "/api/events/redemption-requested", map[string]string{"account_id": "ghost", "reward_name": "Postcard"}, http.StatusNotFound, "account_not_enrolled"},
		{"self referral", "POST", "/api/events/referral-completed", map[string]string{"referrer_id": "u1", "referred_id": "u1"}, http.StatusBadRequest, "self_referral"},
		{"no summary", "GET", "/api/accounts/ghost/summary", nil, http.StatusNotFound, "account_not_enrolled"},
		{"unknown code", "POST", "/api/referrals/NOPE/complete", nil, http.StatusNotFound, "referral_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			expectStatus(t, rec, tt.status)
			if got := decode[map[string]string](t, rec)["code"]; got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}

	rec := do(t, h, "POST", "/api/events/profile-completed", nil)
	expectStatus(t, rec, http.StatusBadRequest)

	req := httptest.NewRequest("POST", "/api/events/profile-completed", strings.NewReader(`{"account_id":"u1","extra":1}`))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestReferralRoutes(t *testing.T) {
	h := setupServer(t)

	rec := do(t, h, "POST", "/api/referrals", map[string]string{"referrer_id": "u1", "referred_id": "u2", "code": "HELLO"})
	expectStatus(t, rec, http.StatusCreated)

	rec = do(t, h, "POST", "/api/referrals", map[string]string{"referrer_id": "u1", "referred_id": "u2"})
	expectStatus(t, rec, http.StatusConflict)

	rec = do(t, h, "GET", "/api/accounts/u1/pending-referrals", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]model.ReferralLink](t, rec); len(got) != 1 || got[0].Code != "HELLO" {
		t.Errorf("pending = %+v", got)
	}

	rec = do(t, h, "POST", "/api/referrals/HELLO/complete", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.AwardResult](t, rec).NewBalance; got != 30 {
		t.Errorf("new balance = %d, want 30", got)
	}

	rec = do(t, h, "POST", "/api/events/referral-completed", map[string]string{"referrer_id": "u1", "referred_id": "u2"})
	expectStatus(t, rec, http.StatusConflict)
	if got := decode[map[string]string](t, rec)["code"]; got != "already_completed" {
		t.Errorf("code = %q, want already_completed", got)
	}
}

func TestProfileAndAvailableRewards(t *testing.T) {
	h := setupServer(t)

	rec := do(t, h, "POST", "/api/accounts/u1/enroll", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = do(t, h, "POST", "/api/events/profile-completed", map[string]string{"account_id": "u1"})
	expectStatus(t, rec, http.StatusCreated)
	rec = do(t, h, "POST", "/api/events/profile-completed", map[string]string{"account_id": "u1"})
	expectStatus(t, rec, http.StatusConflict)

	rec = do(t, h, "GET", "/api/accounts/u1/rewards", nil)
	expectStatus(t, rec, http.StatusOK)
	avail := decode[model.AvailableRewards](t, rec)
	if avail.Balance != 40 {
		t.Errorf("balance = %d, want 40", avail.Balance)
	}
	for _, r := range avail.Rewards {
		if r.CanAfford != (r.Cost <= 40) {
			t.Errorf("%s: can_afford = %t with cost %d", r.Name, r.CanAfford, r.Cost)
		}
	}

	rec = do(t, h, "GET", "/api/rewards", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]model.Reward](t, rec); len(got) != 12 {
		t.Errorf("catalog size = %d, want 12", len(got))
	}
}

func TestRedemptionRateLimitedPerAccount(t *testing.T) {
	h := setupServer(t)
	body := map[string]string{"account_id": "u1", "reward_name": "Postcard"}

	for i := 0; i < 3; i++ {
		rec := do(t, h, "POST", "/api/events/redemption-requested", body)
		expectStatus(t, rec, http.StatusNotFound)
	}
	rec := do(t, h, "POST", "/api/events/redemption-requested", body)
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	rec = do(t, h, "POST", "/api/events/redemption-requested", map[string]string{"account_id": "u2", "reward_name": "Postcard"})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestAdminCatalog(t *testing.T) {
	h := setupServer(t)
	auth := []string{"Authorization", "Bearer " + adminToken}

	rec := do(t, h, "POST", "/admin/rewards", map[string]any{"name": "Tote Bag", "category": "Medium-Cost", "cost": 70})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = do(t, h, "POST", "/admin/rewards", map[string]any{"name": "Tote Bag", "category": "Medium-Cost", "cost": 70}, auth...)
	expectStatus(t, rec, http.StatusCreated)
	tote := decode[model.Reward](t, rec)
	if !tote.Active {
		t.Error("new reward should default to active")
	}

	rec = do(t, h, "POST", "/admin/rewards", map[string]any{"name": "Tote Bag", "category": "Medium-Cost", "cost": 70}, auth...)
	expectStatus(t, rec, http.StatusConflict)

	rec = do(t, h, "POST", "/admin/rewards", map[string]any{"name": "Free", "category": "Medium-Cost", "cost": 0}, auth...)
	expectStatus(t, rec, http.StatusBadRequest)

	path := "/admin/rewards/" + strconv.FormatInt(tote.ID, 10)
	rec = do(t, h, "PUT", path, map[string]any{"name": "Canvas Tote", "category": "Medium-Cost", "cost": 75}, auth...)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Reward](t, rec); got.Name != "Canvas Tote" || got.Cost != 75 {
		t.Errorf("updated = %+v", got)
	}

	rec = do(t, h, "POST", path+"/active", map[string]any{"active": false}, auth...)
	expectStatus(t, rec, http.StatusOK)

	rec = do(t, h, "POST", "/api/events/redemption-requested", map[string]string{"account_id": "u1", "reward_name": "Canvas Tote"})
	expectStatus(t, rec, http.StatusBadRequest)
	if got := decode[map[string]string](t, rec)["code"]; got != "reward_inactive" {
		t.Errorf("code = %q, want reward_inactive", got)
	}

	rec = do(t, h, "GET", "/admin/rewards", nil, auth...)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]model.Reward](t, rec); len(got) != 13 {
		t.Errorf("admin list = %d, want 13", len(got))
	}

	rec = do(t, h, "DELETE", path, nil, auth...)
	expectStatus(t, rec, http.StatusNoContent)
	rec = do(t, h, "DELETE", path, nil, auth...)
	expectStatus(t, rec, http.StatusNotFound)
	rec = do(t, h, "DELETE", "/admin/rewards/abc", nil, auth...)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestBackupRoutesDisabled(t *testing.T) {
	h := setupServer(t)
	auth := []string{"Authorization", "Bearer " + adminToken}

	rec := do(t, h, "GET", "/admin/backups/status", nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = do(t, h, "GET", "/admin/backups/status", nil, auth...)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec)["state"]; got != "disabled" {
		t.Errorf("state = %v, want disabled", got)
	}

	rec = do(t, h, "POST", "/admin/backups", nil, auth...)
	expectStatus(t, rec, http.StatusServiceUnavailable)

	rec = do(t, h, "GET", "/admin/backups", nil, auth...)
	expectStatus(t, rec, http.StatusServiceUnavailable)
}

func TestAnalyticsRoute(t *testing.T) {
	h := setupServer(t)

	rec := do(t, h, "POST", "/api/events/survey-completed", map[string]string{
		"account_id": "u1", "survey_type": "t", "survey_ref": "s",
	})
	expectStatus(t, rec, http.StatusCreated)

	rec = do(t, h, "GET", "/api/analytics", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Snapshot](t, rec); got.UsersEnrolled != 1 || got.TotalDistributed != 20 {
		t.Errorf("snapshot = %d users / %d points", got.UsersEnrolled, got.TotalDistributed)
	}

	rec = do(t, h, "POST", "/api/events/survey-completed", map[string]string{
		"account_id": "u2", "survey_type": "t", "survey_ref": "s",
	})
	expectStatus(t, rec, http.StatusCreated)

	// The cached snapshot is served until a fresh one is asked for.
	rec = do(t, h, "GET", "/api/analytics", nil)
	if got := decode[model.Snapshot](t, rec); got.UsersEnrolled != 1 {
		t.Errorf("cached users = %d, want 1", got.UsersEnrolled)
	}
	rec = do(t, h, "GET", "/api/analytics?fresh=1", nil)
	if got := decode[model.Snapshot](t, rec); got.UsersEnrolled != 2 {
		t.Errorf("fresh users = %d, want 2", got.UsersEnrolled)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupServer(t)
	do(t, h, "POST", "/api/events/survey-completed", map[string]string{
		"account_id": "u1", "survey_type": "t", "survey_ref": "s",
	})

	rec := do(t, h, "GET", "/metrics", nil)
	expectStatus(t, rec, http.StatusOK)
	for _, name := range []string{"loyalty_points_awarded_total", "loyalty_operations_total", "loyalty_http_requests_total"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("metrics missing %s", name)
		}
	}
}
