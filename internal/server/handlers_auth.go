package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/models"
)

func (ls *ServerSystem) RegisterUserHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := ls.Service.RegisterLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewUserResponse(user))
}

func (ls *ServerSystem) LoginUserHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := ls.Service.LoginLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Authorization", "Bearer "+token.AccessToken)
	writeJSON(w, http.StatusOK, token)
}

func (ls *ServerSystem) ProfileHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	profile, err := ls.Service.ProfileLogic(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (ls *ServerSystem) UpdateProfileHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req models.ProfileUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := ls.Service.UpdateProfileLogic(r.Context(), p, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := models.NewUserResponse(user)
	if p.IsConfigAdmin() {
		resp.ID = auth.ConfigAdminID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ls *ServerSystem) VerifyOTPHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.VerifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := ls.Service.VerifyOTPLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ls *ServerSystem) ResendVerificationHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := ls.Service.ResendVerificationLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ls *ServerSystem) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := ls.Service.ForgotPasswordLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ls *ServerSystem) ResetPasswordHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := ls.Service.ResetPasswordLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ls *ServerSystem) SendOTPHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := ls.Service.SendOTPLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ls *ServerSystem) ResendOTPHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := ls.Service.ResendOTPLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ls *ServerSystem) VerifyEmailOTPHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.VerifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := ls.Service.VerifyEmailOTPLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ls *ServerSystem) OTPStatusHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	resp, err := ls.Service.OTPStatusLogic(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
