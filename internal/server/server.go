package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/authz"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/models"
	"github.com/theheadmen/studfund/internal/service"
)

const requestIDHeader = "X-Request-ID"

// Options are the transport settings taken from configuration.
type Options struct {
	AllowedOrigins []string
	TrustedHosts   []string
	MaxUploadSize  int64
}

type ServerSystem struct {
	Service *service.Service
	Policy  *authz.Policy
	Options Options
}

func NewServerSystem(svc *service.Service, policy *authz.Policy, opts Options) *ServerSystem {
	if policy == nil {
		policy = authz.DefaultPolicy()
	}
	return &ServerSystem{Service: svc, Policy: policy, Options: opts}
}

// handlerFunc is a route handler that receives the already authorized caller.
type handlerFunc func(w http.ResponseWriter, r *http.Request, p auth.Principal)

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// guard resolves the caller and checks the policy for (resource, action) before
// running h. On routes open to anonymous callers a bad token is ignored.
func (ls *ServerSystem) guard(resource authz.Resource, action authz.Action, h handlerFunc) http.HandlerFunc {
	public := ls.Policy.Allow(resource, action, authz.Anonymous)
	return func(w http.ResponseWriter, r *http.Request) {
		p := auth.Principal{Role: authz.Anonymous}
		if token := bearerToken(r); token != "" {
			got, err := ls.Service.AuthenticateLogic(r.Context(), token)
			switch {
			case err == nil:
				p = got
			case !public:
				writeError(w, r, err)
				return
			}
		}
		if err := ls.Policy.Check(resource, action, p.Role); err != nil {
			writeError(w, r, err)
			return
		}
		h(w, r.WithContext(auth.WithPrincipal(r.Context(), p)), p)
	}
}

func (ls *ServerSystem) MakeRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", ls.HealthHandler).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", ls.HealthHandler).Methods("GET")

	api.HandleFunc("/auth/register", ls.guard(authz.Auth, authz.Public, ls.RegisterUserHandler)).Methods("POST")
	api.HandleFunc("/auth/login", ls.guard(authz.Auth, authz.Public, ls.LoginUserHandler)).Methods("POST")
	api.HandleFunc("/auth/verify-otp", ls.guard(authz.Auth, authz.Public, ls.VerifyOTPHandler)).Methods("POST")
	api.HandleFunc("/auth/resend-verification", ls.guard(authz.Auth, authz.Public, ls.ResendVerificationHandler)).Methods("POST")
	api.HandleFunc("/auth/forgot-password-otp", ls.guard(authz.Auth, authz.Public, ls.ForgotPasswordHandler)).Methods("POST")
	api.HandleFunc("/auth/reset-password-otp", ls.guard(authz.Auth, authz.Public, ls.ResetPasswordHandler)).Methods("POST")
	api.HandleFunc("/auth/me", ls.guard(authz.Auth, authz.Profile, ls.ProfileHandler)).Methods("GET")
	api.HandleFunc("/auth/me", ls.guard(authz.Auth, authz.Profile, ls.UpdateProfileHandler)).Methods("PUT")

	api.HandleFunc("/otp/send-otp", ls.guard(authz.OTP, authz.Public, ls.SendOTPHandler)).Methods("POST")
	api.HandleFunc("/otp/verify-otp", ls.guard(authz.OTP, authz.Public, ls.VerifyEmailOTPHandler)).Methods("POST")
	api.HandleFunc("/otp/resend-otp", ls.guard(authz.OTP, authz.Public, ls.ResendOTPHandler)).Methods("POST")
	api.HandleFunc("/otp/otp-status/{email}", ls.guard(authz.OTP, authz.Public, ls.OTPStatusHandler)).Methods("GET")

	api.HandleFunc("/campaigns", ls.guard(authz.Campaigns, authz.Read, ls.ListCampaignsHandler)).Methods("GET")
	api.HandleFunc("/campaigns", ls.guard(authz.Campaigns, authz.Create, ls.CreateCampaignHandler)).Methods("POST")
	api.HandleFunc("/campaigns/with-image", ls.guard(authz.Campaigns, authz.Create, ls.CreateCampaignWithImageHandler)).Methods("POST")
	api.HandleFunc("/campaigns/featured", ls.guard(authz.Campaigns, authz.Read, ls.FeaturedCampaignsHandler)).Methods("GET")
	api.HandleFunc("/campaigns/spotlight", ls.guard(authz.Campaigns, authz.Read, ls.SpotlightCampaignsHandler)).Methods("GET")
	api.HandleFunc("/campaigns/admin/pending-approval", ls.guard(authz.Campaigns, authz.Approve, ls.PendingApprovalHandler)).Methods("GET")
	api.HandleFunc("/campaigns/user/{user_id:[0-9]+}", ls.guard(authz.Campaigns, authz.Read, ls.UserCampaignsHandler)).Methods("GET")
	api.HandleFunc("/campaigns/{id:[0-9]+}", ls.guard(authz.Campaigns, authz.Read, ls.GetCampaignHandler)).Methods("GET")
	api.HandleFunc("/campaigns/{id:[0-9]+}", ls.guard(authz.Campaigns, authz.Update, ls.UpdateCampaignHandler)).Methods("PUT")
	api.HandleFunc("/campaigns/{id:[0-9]+}", ls.guard(authz.Campaigns, authz.Delete, ls.DeleteCampaignHandler)).Methods("DELETE")
	api.HandleFunc("/campaigns/{id:[0-9]+}/start", ls.guard(authz.Campaigns, authz.Start, ls.StartCampaignHandler)).Methods("POST")
	api.HandleFunc("/campaigns/{id:[0-9]+}/approve", ls.guard(authz.Campaigns, authz.Approve, ls.ApproveCampaignHandler)).Methods("POST")
	api.HandleFunc("/campaigns/{id:[0-9]+}/image", ls.guard(authz.Campaigns, authz.Upload, ls.UploadCampaignImageHandler)).Methods("POST")

	api.HandleFunc("/referrals", ls.guard(authz.Referrals, authz.Create, ls.CreateReferralHandler)).Methods("POST")
	api.HandleFunc("/referrals/campaign/{id:[0-9]+}", ls.guard(authz.Referrals, authz.Read, ls.CampaignReferralsHandler)).Methods("GET")
	api.HandleFunc("/referrals/stats/{id:[0-9]+}", ls.guard(authz.Referrals, authz.Read, ls.ReferralStatsHandler)).Methods("GET")
	api.HandleFunc("/referrals/accept/{token}", ls.guard(authz.Referrals, authz.Accept, ls.AcceptReferralHandler)).Methods("POST")

	api.HandleFunc("/payments", ls.guard(authz.Payments, authz.Create, ls.CreatePaymentHandler)).Methods("POST")
	api.HandleFunc("/payments/campaign/{id:[0-9]+}", ls.guard(authz.Payments, authz.Public, ls.CampaignPaymentsHandler)).Methods("GET")
	api.HandleFunc("/payments/user/{user_id:[0-9]+}", ls.guard(authz.Payments, authz.Read, ls.UserPaymentsHandler)).Methods("GET")
	api.HandleFunc("/payments/{id:[0-9]+}", ls.guard(authz.Payments, authz.Read, ls.GetPaymentHandler)).Methods("GET")
	api.HandleFunc("/payments/{id:[0-9]+}/process", ls.guard(authz.Payments, authz.Process, ls.ProcessPaymentHandler)).Methods("POST")
	api.HandleFunc("/payments/{id:[0-9]+}/refund", ls.guard(authz.Payments, authz.Refund, ls.RefundPaymentHandler)).Methods("POST")

	api.HandleFunc("/receipts/payment/{id:[0-9]+}", ls.guard(authz.Receipts, authz.Read, ls.PaymentReceiptHandler)).Methods("GET")
	api.HandleFunc("/receipts/user/{user_id:[0-9]+}", ls.guard(authz.Receipts, authz.Read, ls.UserReceiptsHandler)).Methods("GET")

	api.HandleFunc("/milestones", ls.guard(authz.Milestones, authz.Create, ls.CreateMilestoneHandler)).Methods("POST")
	api.HandleFunc("/milestones/campaign/{id:[0-9]+}", ls.guard(authz.Milestones, authz.Read, ls.CampaignMilestonesHandler)).Methods("GET")

	api.HandleFunc("/shoutouts", ls.guard(authz.Shoutouts, authz.Create, ls.CreateShoutoutHandler)).Methods("POST")
	api.HandleFunc("/shoutouts/campaign/{id:[0-9]+}", ls.guard(authz.Shoutouts, authz.Read, ls.CampaignShoutoutsHandler)).Methods("GET")

	api.HandleFunc("/companies", ls.guard(authz.Companies, authz.Read, ls.ListCompaniesHandler)).Methods("GET")
	api.HandleFunc("/companies", ls.guard(authz.Companies, authz.Create, ls.CreateCompanyHandler)).Methods("POST")
	api.HandleFunc("/companies/{id:[0-9]+}/partnership", ls.guard(authz.Companies, authz.Create, ls.CreatePartnershipHandler)).Methods("POST")
	api.HandleFunc("/partnership/request", ls.guard(authz.Partnership, authz.Public, ls.PartnershipRequestHandler)).Methods("POST")

	api.HandleFunc("/highlights/current", ls.guard(authz.Highlights, authz.Read, ls.CurrentHighlightHandler)).Methods("GET")
	api.HandleFunc("/highlights/donors", ls.guard(authz.Highlights, authz.Read, ls.HighlightDonorsHandler)).Methods("GET")
	api.HandleFunc("/highlights/weekly", ls.guard(authz.Highlights, authz.Read, ls.WeeklyHighlightsHandler)).Methods("GET")
	api.HandleFunc("/highlights/student/{user_id:[0-9]+}", ls.guard(authz.Highlights, authz.Read, ls.StudentHighlightsHandler)).Methods("GET")
	api.HandleFunc("/highlights/create", ls.guard(authz.Highlights, authz.Create, ls.CreateHighlightHandler)).Methods("POST")
	api.HandleFunc("/highlights/{id:[0-9]+}/image", ls.guard(authz.Highlights, authz.Upload, ls.UploadHighlightImageHandler)).Methods("POST")

	api.HandleFunc("/admin/stats", ls.guard(authz.Admin, authz.Manage, ls.AdminStatsHandler)).Methods("GET")
	api.HandleFunc("/admin/campaigns", ls.guard(authz.Admin, authz.Manage, ls.AdminCampaignsHandler)).Methods("GET")
	api.HandleFunc("/admin/campaigns/{id:[0-9]+}/feature", ls.guard(authz.Admin, authz.Manage, ls.FeatureCampaignHandler)).Methods("POST")
	api.HandleFunc("/admin/campaigns/{id:[0-9]+}/close", ls.guard(authz.Admin, authz.Manage, ls.CloseCampaignHandler)).Methods("POST")
	api.HandleFunc("/admin/campaigns/{id:[0-9]+}/status", ls.guard(authz.Admin, authz.Manage, ls.SetCampaignStatusHandler)).Methods("PUT")
	api.HandleFunc("/admin/campaigns/{id:[0-9]+}/status/{status}", ls.guard(authz.Admin, authz.Manage, ls.SetCampaignStatusHandler)).Methods("POST")
	api.HandleFunc("/admin/users", ls.guard(authz.Admin, authz.Manage, ls.AdminCreateUserHandler)).Methods("POST")
	api.HandleFunc("/admin/{entity}", ls.guard(authz.Admin, authz.Manage, ls.AdminListHandler)).Methods("GET")
	api.HandleFunc("/admin/{entity}/{id:[0-9]+}", ls.guard(authz.Admin, authz.Manage, ls.AdminGetHandler)).Methods("GET")
	api.HandleFunc("/admin/{entity}/{id:[0-9]+}", ls.guard(authz.Admin, authz.Manage, ls.AdminUpdateHandler)).Methods("PUT")
	api.HandleFunc("/admin/{entity}/{id:[0-9]+}", ls.guard(authz.Admin, authz.Manage, ls.AdminDeleteHandler)).Methods("DELETE")

	api.HandleFunc("/static/images/{category}/{filename}", ls.guard(authz.Static, authz.Read, ls.ImageHandler)).Methods("GET")
	api.HandleFunc("/static/images/{category}/{filename}/thumbnails/{size}", ls.guard(authz.Static, authz.Read, ls.ThumbnailHandler)).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.NotFound("route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody(http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED", nil))
	})
	return r
}

// Handler wraps the router with the middleware chain.
func (ls *ServerSystem) Handler() http.Handler {
	var h http.Handler = ls.MakeRouter()
	h = trustedHosts(ls.Options.TrustedHosts, h)

	corsOpts := []handlers.CORSOption{
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", requestIDHeader}),
		handlers.ExposedHeaders([]string{requestIDHeader}),
	}
	if len(ls.Options.AllowedOrigins) > 0 {
		corsOpts = append(corsOpts, handlers.AllowedOrigins(ls.Options.AllowedOrigins), handlers.AllowCredentials())
	}
	h = handlers.CORS(corsOpts...)(h)
	h = handlers.CombinedLoggingHandler(log.StandardLogger().WriterLevel(log.InfoLevel), h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(log.StandardLogger()), handlers.PrintRecoveryStack(true))(h)
	return requestID(h)
}

func (ls *ServerSystem) MakeServer(serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      ls.Handler(),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = ulid.Make().String()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// trustedHosts rejects requests whose Host is not listed. An empty list or "*" allows all.
func trustedHosts(hosts []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		if h == "*" {
			return next
		}
		allowed[strings.ToLower(h)] = true
	}
	if len(allowed) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if !allowed[strings.ToLower(host)] {
			writeJSON(w, http.StatusBadRequest, errorBody(http.StatusBadRequest, "invalid host header", "INVALID_HOST", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (ls *ServerSystem) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := ls.Service.Storage.Ping(ctx); err != nil {
		log.WithError(err).Warn("health check: database unreachable")
		writeJSON(w, http.StatusServiceUnavailable, models.HealthResponse{Status: "unhealthy", Database: "disconnected"})
		return
	}
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "healthy", Database: "connected"})
}
