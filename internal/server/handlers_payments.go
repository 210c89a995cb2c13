package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/models"
)

func (ls *ServerSystem) CreateReferralHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req models.ReferralRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	referral, err := ls.Service.CreateReferralLogic(r.Context(), p, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, referral)
}

func (ls *ServerSystem) CampaignReferralsHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	referrals, err := ls.Service.CampaignReferralsLogic(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, referrals)
}

func (ls *ServerSystem) ReferralStatsHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := ls.Service.ReferralStatsLogic(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (ls *ServerSystem) AcceptReferralHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	resp, err := ls.Service.AcceptReferralLogic(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ls *ServerSystem) CreatePaymentHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req models.PaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	payment, err := ls.Service.CreatePaymentLogic(r.Context(), p, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (ls *ServerSystem) GetPaymentHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	payment, err := ls.Service.GetPaymentLogic(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (ls *ServerSystem) CampaignPaymentsHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	donations, err := ls.Service.CampaignPaymentsLogic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, donations)
}

func (ls *ServerSystem) UserPaymentsHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	payments, err := ls.Service.UserPaymentsLogic(r.Context(), p, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (ls *ServerSystem) ProcessPaymentHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := ls.Service.ProcessPaymentLogic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (ls *ServerSystem) RefundPaymentHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	payment, err := ls.Service.RefundPaymentLogic(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (ls *ServerSystem) PaymentReceiptHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := ls.Service.PaymentReceiptLogic(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (ls *ServerSystem) UserReceiptsHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	receipts, err := ls.Service.UserReceiptsLogic(r.Context(), p, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}
