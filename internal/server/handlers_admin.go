package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/models"
)

func (ls *ServerSystem) AdminStatsHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	stats, err := ls.Service.AdminStatsLogic(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (ls *ServerSystem) AdminCampaignsHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	params, err := listParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	campaigns, err := ls.Service.AdminCampaignsLogic(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (ls *ServerSystem) FeatureCampaignHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := models.FeatureRequest{IsFeatured: true}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	campaign, err := ls.Service.FeatureCampaignLogic(r.Context(), id, req.IsFeatured)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (ls *ServerSystem) CloseCampaignHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	campaign, err := ls.Service.CloseCampaignLogic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (ls *ServerSystem) SetCampaignStatusHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.StatusRequest
	if status, ok := mux.Vars(r)["status"]; ok {
		req.Status = status
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	campaign, err := ls.Service.SetCampaignStatusLogic(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (ls *ServerSystem) AdminCreateUserHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.AdminUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := ls.Service.AdminCreateUserLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewUserResponse(user))
}

func (ls *ServerSystem) AdminListHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	params, err := listParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := ls.Service.AdminListLogic(r.Context(), mux.Vars(r)["entity"], params.Limit, params.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (ls *ServerSystem) AdminGetHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	row, err := ls.Service.AdminGetLogic(r.Context(), mux.Vars(r)["entity"], id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (ls *ServerSystem) AdminUpdateHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var fields map[string]interface{}
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, r, err)
		return
	}
	row, err := ls.Service.AdminUpdateLogic(r.Context(), mux.Vars(r)["entity"], id, fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (ls *ServerSystem) AdminDeleteHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	entity := mux.Vars(r)["entity"]
	if err := ls.Service.AdminDeleteLogic(r.Context(), entity, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, entity+" record deleted")
}
