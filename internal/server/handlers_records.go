package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/theheadmen/studfund/internal/auth"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/images"
	"github.com/theheadmen/studfund/internal/models"
	"github.com/theheadmen/studfund/internal/service"
)

func (ls *ServerSystem) CreateMilestoneHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req models.MilestoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	milestone, err := ls.Service.CreateMilestoneLogic(r.Context(), p, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, milestone)
}

func (ls *ServerSystem) CampaignMilestonesHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	milestones, err := ls.Service.CampaignMilestonesLogic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, milestones)
}

func (ls *ServerSystem) CreateShoutoutHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req models.ShoutoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	shoutout, err := ls.Service.CreateShoutoutLogic(r.Context(), p, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, shoutout)
}

func (ls *ServerSystem) CampaignShoutoutsHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	shoutouts, err := ls.Service.CampaignShoutoutsLogic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shoutouts)
}

func (ls *ServerSystem) ListCompaniesHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	companies, err := ls.Service.ListCompaniesLogic(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, companies)
}

func (ls *ServerSystem) CreateCompanyHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.CompanyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	company, err := ls.Service.CreateCompanyLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, company)
}

func (ls *ServerSystem) CreatePartnershipHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.PartnershipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	partnership, err := ls.Service.CreatePartnershipLogic(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, partnership)
}

func (ls *ServerSystem) PartnershipRequestHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.PartnershipInquiry
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := ls.Service.PartnershipRequestLogic(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateHighlightHandler accepts JSON or a multipart form with an optional image_file.
func (ls *ServerSystem) CreateHighlightHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req models.HighlightRequest
	var image *service.ImageFile
	if isMultipart(r) {
		var release func()
		var err error
		image, release, err = ls.readImageForm(w, r)
		defer release()
		if err != nil {
			writeError(w, r, err)
			return
		}
		userID, err := strconv.ParseUint(strings.TrimSpace(r.FormValue("user_id")), 10, 32)
		if err != nil {
			writeError(w, r, apperr.Validation("invalid user_id"))
			return
		}
		req = models.HighlightRequest{
			UserID:      uint(userID),
			Achievement: r.FormValue("achievement"),
			Description: r.FormValue("description"),
			ImageURL:    r.FormValue("image_url"),
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	highlight, err := ls.Service.CreateHighlightWithImageLogic(r.Context(), req, image)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, highlight)
}

func (ls *ServerSystem) CurrentHighlightHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	highlight, err := ls.Service.CurrentHighlightLogic(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, highlight)
}

func (ls *ServerSystem) HighlightDonorsHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	donors, err := ls.Service.HighlightDonorsLogic(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, donors)
}

func (ls *ServerSystem) WeeklyHighlightsHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	highlights, err := ls.Service.WeeklyHighlightsLogic(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, highlights)
}

func (ls *ServerSystem) StudentHighlightsHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	highlights, err := ls.Service.StudentHighlightsLogic(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, highlights)
}

func (ls *ServerSystem) UploadHighlightImageHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ls.handleUpload(w, r, func(filename string, size int64, file io.Reader) (*images.Upload, error) {
		return ls.Service.UploadHighlightImageLogic(r.Context(), id, filename, size, file)
	})
}
