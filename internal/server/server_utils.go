package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/authz"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/models"
)

const maxJSONBody = 1 << 20

var kindStatus = map[apperr.Kind]int{
	apperr.KindInternal:    http.StatusInternalServerError,
	apperr.KindValidation:  http.StatusUnprocessableEntity,
	apperr.KindAuth:        http.StatusUnauthorized,
	apperr.KindForbidden:   http.StatusForbidden,
	apperr.KindNotFound:    http.StatusNotFound,
	apperr.KindPayment:     http.StatusPaymentRequired,
	apperr.KindCampaign:    http.StatusBadRequest,
	apperr.KindConflict:    http.StatusConflict,
	apperr.KindRateLimited: http.StatusTooManyRequests,
}

func statusOf(kind apperr.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

func errorBody(status int, message, code string, details map[string]interface{}) models.ErrorResponse {
	return models.ErrorResponse{Error: message, ErrorCode: code, StatusCode: status, Details: details}
}

// writeError is the only place where error kinds become HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	tagged, ok := apperr.As(err)
	if !ok {
		tagged = apperr.Internal(err, "internal server error")
	}
	status := statusOf(tagged.Kind)
	message := tagged.Message
	details := tagged.Details

	entry := log.WithFields(log.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"status":     status,
		"request_id": r.Header.Get(requestIDHeader),
	})
	if p, ok := auth.PrincipalFrom(r.Context()); ok && p.Role != authz.Anonymous {
		entry = entry.WithFields(log.Fields{"user_id": p.UserID, "role": p.Role})
	}
	if tagged.Kind == apperr.KindInternal {
		entry.WithError(err).Error("request failed")
		message = "internal server error"
		details = nil
	} else {
		entry.Debug(tagged.Message)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, errorBody(status, message, tagged.Kind.String(), details))
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.MessageResponse{Message: message})
}

// decodeJSON reads the request body into dst, rejecting unknown shapes as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty")
		}
		return apperr.Wrap(apperr.KindValidation, err, "invalid request body")
	}
	return nil
}

func pathID(r *http.Request, name string) (uint, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return uint(id), nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return n, nil
}

func listParams(r *http.Request) (models.ListParams, error) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return models.ListParams{}, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return models.ListParams{}, err
	}
	q := r.URL.Query()
	return models.ListParams{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// Sweeper is the part of the service the periodic sweep needs.
type Sweeper interface {
	ExpireCampaigns(ctx context.Context) (int64, error)
	CleanupOTPs(ctx context.Context) (int64, error)
	CleanupRateLimits() int
}

func sweep(ctx context.Context, s Sweeper) {
	expired, err := s.ExpireCampaigns(ctx)
	if err != nil {
		log.WithError(err).Error("failed to expire campaigns")
	} else if expired > 0 {
		log.WithField("count", expired).Info("campaigns expired")
	}
	removed, err := s.CleanupOTPs(ctx)
	if err != nil {
		log.WithError(err).Error("failed to clean up otp codes")
	} else if removed > 0 {
		log.WithField("count", removed).Debug("stale otp codes removed")
	}
	if windows := s.CleanupRateLimits(); windows > 0 {
		log.WithField("count", windows).Debug("finished rate limit windows dropped")
	}
}

// MakeGorutineToSweep periodically expires finished campaigns, drops stale
// OTP codes and clears finished rate limit windows until ctx is cancelled.
// Cancelling ctx also aborts a sweep in progress.
func MakeGorutineToSweep(ctx context.Context, s Sweeper, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ticker.Stop()
				sweep(ctx, s)
				ticker.Reset(interval)
			}
		}
	}()
	return done
}
