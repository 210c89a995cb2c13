package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/authz"
	"github.com/theheadmen/studfund/internal/dbconnector"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/gateway"
	"github.com/theheadmen/studfund/internal/images"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"github.com/theheadmen/studfund/internal/mailer"
	"github.com/theheadmen/studfund/internal/models"
	"github.com/theheadmen/studfund/internal/service"
	"gorm.io/gorm"
)

const testBaseURL = "http://localhost:8080"

// stubStorage serves users and campaigns from memory. Other methods panic
// through the nil embedded interface.
type stubStorage struct {
	service.Storage

	mu        sync.Mutex
	pingErr   error
	users      map[uint]dbconnector.User
	campaigns  map[uint]dbconnector.Campaign
	highlights []dbconnector.StudentHighlight
}

func (s *stubStorage) Ping(context.Context) error { return s.pingErr }

func (s *stubStorage) GetUserByUserID(_ context.Context, id uint, user *dbconnector.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	*user = u
	return nil
}

func (s *stubStorage) GetCampaignByID(_ context.Context, id uint, campaign *dbconnector.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	*campaign = c
	return nil
}

func (s *stubStorage) MutateCampaign(_ context.Context, id uint, fn func(c *dbconnector.Campaign) (bool, error)) (*dbconnector.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	changed, err := fn(&c)
	if err != nil {
		return nil, err
	}
	if changed {
		s.campaigns[id] = c
	}
	return &c, nil
}

func (s *stubStorage) UpdateUser(_ context.Context, user *dbconnector.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	s.users[user.ID] = *user
	return nil
}

func (s *stubStorage) AddCampaign(_ context.Context, campaign *dbconnector.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign.ID = uint(len(s.campaigns) + 1)
	s.campaigns[campaign.ID] = *campaign
	return nil
}

func (s *stubStorage) ReplaceHighlight(_ context.Context, highlight *dbconnector.StudentHighlight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	highlight.ID = uint(len(s.highlights) + 1)
	s.highlights = append(s.highlights, *highlight)
	return nil
}

func (s *stubStorage) DonorCounts(context.Context, []uint) (map[uint]int64, error) {
	return map[uint]int64{}, nil
}

type testServer struct {
	ls      *ServerSystem
	store   *stubStorage
	handler http.Handler
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := &stubStorage{
		users: map[uint]dbconnector.User{
			1: {Model: dbconnector.Model{ID: 1}, Email: "student@example.com", Role: lifecycle.RoleStudent, Status: lifecycle.UserActive},
			2: {Model: dbconnector.Model{ID: 2}, Email: "donor@example.com", Role: lifecycle.RoleDonor, Status: lifecycle.UserActive},
			3: {Model: dbconnector.Model{ID: 3}, Email: "gone@example.com", Role: lifecycle.RoleDonor, Status: lifecycle.UserSuspended},
			4: {Model: dbconnector.Model{ID: 4}, Email: "staff@example.com", Role: lifecycle.RoleAdmin, Status: lifecycle.UserActive},
		},
		campaigns: map[uint]dbconnector.Campaign{
			1: {
				Model:          dbconnector.Model{ID: 1},
				UserID:         1,
				Title:          "Lab equipment",
				Description:    "Microscope for my thesis",
				GoalAmount:     decimal.NewFromInt(500),
				CurrentAmount:  decimal.Zero,
				Status:         lifecycle.CampaignActive,
				DurationMonths: 1,
			},
		},
	}
	local, err := images.NewLocalStore(t.TempDir(), testBaseURL)
	require.NoError(t, err)
	svc := service.New(store, mailer.LogMailer{}, images.NewService(local, 1<<20), gateway.NewSimulated(0), nil,
		auth.NewTokenIssuer("server-secret", time.Hour), service.Settings{BaseURL: testBaseURL})
	ls := NewServerSystem(svc, authz.DefaultPolicy(), opts)
	return &testServer{ls: ls, store: store, handler: ls.Handler()}
}

func (ts *testServer) token(t *testing.T, id uint) string {
	t.Helper()
	u := ts.store.users[id]
	token, err := ts.ls.Service.Tokens.Issue(int64(u.ID), u.Role, u.Email)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGuard(t *testing.T) {
	ts := newTestServer(t, Options{})

	testCases := []struct {
		name       string
		method     string
		path       string
		body       string
		token      string
		wantStatus int
		wantCode   string
	}{
		{name: "public read", method: "GET", path: "/api/v1/campaigns/1", wantStatus: http.StatusOK},
		{name: "public read ignores bad token", method: "GET", path: "/api/v1/campaigns/1", token: "garbage", wantStatus: http.StatusOK},
		{name: "missing campaign", method: "GET", path: "/api/v1/campaigns/42", wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "anonymous create", method: "POST", path: "/api/v1/campaigns", body: "{}", wantStatus: http.StatusUnauthorized, wantCode: "AUTH_ERROR"},
		{name: "bad token on protected route", method: "POST", path: "/api/v1/campaigns", body: "{}", token: "garbage", wantStatus: http.StatusUnauthorized, wantCode: "AUTH_ERROR"},
		{name: "donor cannot create campaigns", method: "POST", path: "/api/v1/campaigns", body: "{}", token: ts.token(t, 2), wantStatus: http.StatusForbidden, wantCode: "AUTHORIZATION_ERROR"},
		{name: "student is not admin", method: "GET", path: "/api/v1/admin/stats", token: ts.token(t, 1), wantStatus: http.StatusForbidden, wantCode: "AUTHORIZATION_ERROR"},
		{name: "suspended account", method: "GET", path: "/api/v1/auth/me", token: ts.token(t, 3), wantStatus: http.StatusForbidden, wantCode: "AUTHORIZATION_ERROR"},
		{name: "donor cannot approve", method: "POST", path: "/api/v1/campaigns/1/approve", token: ts.token(t, 2), wantStatus: http.StatusForbidden, wantCode: "AUTHORIZATION_ERROR"},
		{name: "unknown route", method: "GET", path: "/api/v1/nowhere", wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := ts.do(req)
			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.wantCode != "" {
				resp := decodeError(t, rec)
				assert.Equal(t, tc.wantCode, resp.ErrorCode)
				assert.Equal(t, tc.wantStatus, resp.StatusCode)
			}
			if tc.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestGetCampaignDecorates(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(httptest.NewRequest("GET", "/api/v1/campaigns/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Lab equipment", resp["title"])
	assert.Equal(t, "active", resp["status"])
	assert.Contains(t, resp, "progress_percentage")
	assert.Contains(t, resp, "donor_count")
}

func TestMalformedRequests(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader("{")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).ErrorCode)

	rec = ts.do(httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader("")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(httptest.NewRequest("DELETE", "/api/v1/campaigns/featured", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","database":"connected"}`, rec.Body.String())

	ts.store.pingErr = errors.New("connection refused")
	rec = ts.do(httptest.NewRequest("GET", "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","database":"disconnected"}`, rec.Body.String())
}

func TestTrustedHosts(t *testing.T) {
	ts := newTestServer(t, Options{TrustedHosts: []string{"api.studfund.test"}})

	req := httptest.NewRequest("GET", "/health", nil)
	req.Host = "evil.test"
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)

	req = httptest.NewRequest("GET", "/health", nil)
	req.Host = "api.studfund.test:443"
	assert.Equal(t, http.StatusOK, ts.do(req).Code)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(httptest.NewRequest("GET", "/health", nil))
	assert.Len(t, rec.Header().Get(requestIDHeader), 26)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(requestIDHeader, "trace-me")
	assert.Equal(t, "trace-me", ts.do(req).Header().Get(requestIDHeader))
}

func TestWriteError(t *testing.T) {
	testCases := []struct {
		err        error
		wantStatus int
		wantMsg    string
	}{
		{apperr.Validation("title is required"), http.StatusUnprocessableEntity, "title is required"},
		{apperr.ErrMissingToken, http.StatusUnauthorized, apperr.ErrMissingToken.Message},
		{apperr.ErrNotOwner, http.StatusForbidden, apperr.ErrNotOwner.Message},
		{apperr.NotFound("payment not found"), http.StatusNotFound, "payment not found"},
		{apperr.Payment("card declined"), http.StatusPaymentRequired, "card declined"},
		{apperr.Campaign("campaign is not accepting donations"), http.StatusBadRequest, "campaign is not accepting donations"},
		{apperr.Conflict("user already exists"), http.StatusConflict, "user already exists"},
		{apperr.RateLimited("slow down"), http.StatusTooManyRequests, "slow down"},
		{apperr.Internal(errors.New("pq: relation missing"), "failed to access user"), http.StatusInternalServerError, "internal server error"},
		{errors.New("raw failure"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest("GET", "/", nil), tc.err)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantMsg, decodeError(t, rec).Error)
		})
	}
}

func TestWriteErrorLogsCaller(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	writeError(httptest.NewRecorder(), req, errors.New("anonymous failure"))
	require.NotNil(t, hook.LastEntry())
	assert.NotContains(t, hook.LastEntry().Data, "user_id")

	p := auth.Principal{UserID: 7, Role: lifecycle.RoleDonor, Email: "d@example.com"}
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	writeError(httptest.NewRecorder(), req, errors.New("donor failure"))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, int64(7), entry.Data["user_id"])
	assert.Equal(t, lifecycle.RoleDonor, entry.Data["role"])
}

func TestWriteErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := apperr.ErrInvalidOTP.WithDetails(map[string]interface{}{"remaining_attempts": 2})
	writeError(rec, httptest.NewRequest("POST", "/", nil), err)

	resp := decodeError(t, rec)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, float64(2), resp.Details["remaining_attempts"])
}

func pngFile(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 200))
	for x := 0; x < 320; x++ {
		for y := 0; y < 200; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

// formBody builds a multipart form with text fields and an optional file part.
func formBody(t *testing.T, fields map[string]string, fileField, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestCreateCampaignWithImage(t *testing.T) {
	fields := func(goal string) map[string]string {
		return map[string]string{
			"title":           "Robotics kit",
			"description":     "Parts for the robotics club",
			"goal_amount":     goal,
			"duration_months": "3",
			"category":        "technology",
			"image_url":       "http://cdn.example.com/kit.png",
		}
	}
	testCases := []struct {
		name       string
		fields     map[string]string
		file       bool
		user       uint
		wantStatus int
		wantImage  string
	}{
		{name: "with image file", fields: fields("750.50"), file: true, user: 1, wantStatus: http.StatusCreated, wantImage: testBaseURL + "/api/v1/static/images/campaigns/"},
		{name: "image url only", fields: fields("750.50"), user: 1, wantStatus: http.StatusCreated, wantImage: "http://cdn.example.com/kit.png"},
		{name: "bad goal", fields: fields("lots"), file: true, user: 1, wantStatus: http.StatusUnprocessableEntity},
		{name: "zero goal", fields: fields("0"), file: true, user: 1, wantStatus: http.StatusUnprocessableEntity},
		{name: "donor", fields: fields("750.50"), file: true, user: 2, wantStatus: http.StatusForbidden},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, Options{MaxUploadSize: 1 << 20})
			fileField := ""
			if tc.file {
				fileField = "image_file"
			}
			body, contentType := formBody(t, tc.fields, fileField, "kit.png", pngFile(t))
			req := httptest.NewRequest("POST", "/api/v1/campaigns/with-image", body)
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("Authorization", "Bearer "+ts.token(t, tc.user))
			rec := ts.do(req)
			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.wantStatus != http.StatusCreated {
				assert.Len(t, ts.store.campaigns, 1)
				return
			}

			var campaign models.CampaignResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &campaign))
			assert.Equal(t, "Robotics kit", campaign.Title)
			assert.True(t, decimal.RequireFromString("750.50").Equal(campaign.GoalAmount))
			assert.Equal(t, lifecycle.CampaignDraft, campaign.Status)
			assert.True(t, strings.HasPrefix(campaign.ImageURL, tc.wantImage), campaign.ImageURL)
			assert.Equal(t, campaign.ImageURL, ts.store.campaigns[campaign.ID].ImageURL)
		})
	}
}

func TestCreateHighlightFromForm(t *testing.T) {
	ts := newTestServer(t, Options{MaxUploadSize: 1 << 20})

	body, contentType := formBody(t, map[string]string{
		"user_id":     "1",
		"achievement": "Won the regional hackathon",
		"image_url":   "http://cdn.example.com/old.png",
	}, "image_file", "trophy.png", pngFile(t))
	req := httptest.NewRequest("POST", "/api/v1/highlights/create", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 4))
	rec := ts.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, ts.store.highlights, 1)
	assert.True(t, strings.HasPrefix(ts.store.highlights[0].ImageURL, testBaseURL+"/api/v1/static/images/highlights/"))
	assert.Equal(t, uint(1), ts.store.highlights[0].UserID)

	req = httptest.NewRequest("POST", "/api/v1/highlights/create",
		strings.NewReader(`{"user_id":1,"achievement":"Dean's list","image_url":"http://cdn.example.com/a.png"}`))
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 4))
	rec = ts.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, ts.store.highlights, 2)
	assert.Equal(t, "http://cdn.example.com/a.png", ts.store.highlights[1].ImageURL)

	body, contentType = formBody(t, map[string]string{"user_id": "x", "achievement": "a"}, "", "", nil)
	req = httptest.NewRequest("POST", "/api/v1/highlights/create", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 4))
	assert.Equal(t, http.StatusUnprocessableEntity, ts.do(req).Code)
}

func TestSetCampaignStatusRoutes(t *testing.T) {
	ts := newTestServer(t, Options{})
	admin := ts.token(t, 4)

	req := httptest.NewRequest("POST", "/api/v1/admin/campaigns/1/status/paused", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, lifecycle.CampaignPaused, ts.store.campaigns[1].Status)

	req = httptest.NewRequest("PUT", "/api/v1/admin/campaigns/1/status", strings.NewReader(`{"status":"active"}`))
	req.Header.Set("Authorization", "Bearer "+admin)
	require.Equal(t, http.StatusOK, ts.do(req).Code)
	assert.Equal(t, lifecycle.CampaignActive, ts.store.campaigns[1].Status)

	req = httptest.NewRequest("POST", "/api/v1/admin/campaigns/1/status/archived", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	assert.Equal(t, http.StatusUnprocessableEntity, ts.do(req).Code)

	req = httptest.NewRequest("POST", "/api/v1/admin/campaigns/1/status/paused", nil)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 1))
	assert.Equal(t, http.StatusForbidden, ts.do(req).Code)
}

func TestUpdateProfileRoute(t *testing.T) {
	ts := newTestServer(t, Options{})

	req := httptest.NewRequest("PUT", "/api/v1/auth/me", strings.NewReader(`{"first_name":"Dana","phone":"555-0100"}`))
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 2))
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Dana", ts.store.users[2].FirstName)
	assert.Equal(t, "555-0100", ts.store.users[2].Phone)
	assert.NotContains(t, rec.Body.String(), "password")

	req = httptest.NewRequest("PUT", "/api/v1/auth/me", strings.NewReader(`{"first_name":""}`))
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 2))
	assert.Equal(t, http.StatusUnprocessableEntity, ts.do(req).Code)

	req = httptest.NewRequest("PUT", "/api/v1/auth/me", strings.NewReader(`{"first_name":"Eve"}`))
	assert.Equal(t, http.StatusUnauthorized, ts.do(req).Code)
}

func TestUploadAndServeCampaignImage(t *testing.T) {
	ts := newTestServer(t, Options{MaxUploadSize: 1 << 20})

	body, contentType := multipartBody(t, "file", "poster.png", pngFile(t))
	req := httptest.NewRequest("POST", "/api/v1/campaigns/1/image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 1))
	rec := ts.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var upload images.Upload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))
	assert.Equal(t, "poster.png", upload.OriginalFilename)
	assert.Equal(t, upload.URL, ts.store.campaigns[1].ImageURL)
	require.Contains(t, upload.Thumbnails, "150x150")

	rec = ts.do(httptest.NewRequest("GET", strings.TrimPrefix(upload.URL, testBaseURL), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	thumb := "/api/v1/static/images/campaigns/" + upload.StoredFilename + "/thumbnails/300x300"
	rec = ts.do(httptest.NewRequest("GET", thumb, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = ts.do(httptest.NewRequest("GET", "/api/v1/static/images/campaigns/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRejections(t *testing.T) {
	ts := newTestServer(t, Options{MaxUploadSize: 1 << 20})

	body, contentType := multipartBody(t, "file", "poster.png", pngFile(t))
	req := httptest.NewRequest("POST", "/api/v1/campaigns/1/image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 2))
	assert.Equal(t, http.StatusForbidden, ts.do(req).Code)

	body, contentType = multipartBody(t, "upload", "poster.png", pngFile(t))
	req = httptest.NewRequest("POST", "/api/v1/campaigns/1/image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 1))
	assert.Equal(t, http.StatusUnprocessableEntity, ts.do(req).Code)

	body, contentType = multipartBody(t, "file", "script.exe", []byte("MZ"))
	req = httptest.NewRequest("POST", "/api/v1/campaigns/1/image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, 1))
	assert.Equal(t, http.StatusUnprocessableEntity, ts.do(req).Code)
}

type countingSweeper struct {
	expired atomic.Int32
	cleaned atomic.Int32
	windows atomic.Int32
}

func (c *countingSweeper) CleanupRateLimits() int {
	c.windows.Add(1)
	return 3
}

func (c *countingSweeper) ExpireCampaigns(context.Context) (int64, error) {
	c.expired.Add(1)
	return 1, nil
}

func (c *countingSweeper) CleanupOTPs(context.Context) (int64, error) {
	c.cleaned.Add(1)
	return 0, errors.New("otp table locked")
}

func TestMakeGorutineToSweep(t *testing.T) {
	sweeper := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	done := MakeGorutineToSweep(ctx, sweeper, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return sweeper.expired.Load() >= 2 && sweeper.cleaned.Load() >= 2 && sweeper.windows.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

// stuckSweeper blocks until its context ends.
type stuckSweeper struct {
	started chan struct{}
}

func (s *stuckSweeper) ExpireCampaigns(ctx context.Context) (int64, error) {
	close(s.started)
	<-ctx.Done()
	return 0, ctx.Err()
}

func (s *stuckSweeper) CleanupOTPs(context.Context) (int64, error) { return 0, nil }

func (s *stuckSweeper) CleanupRateLimits() int { return 0 }

func TestSweepStopsOnShutdown(t *testing.T) {
	sweeper := &stuckSweeper{started: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	done := MakeGorutineToSweep(ctx, sweeper, time.Millisecond)

	select {
	case <-sweeper.started:
	case <-time.After(time.Second):
		t.Fatal("sweep never started")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a running sweep held up shutdown")
	}
}
