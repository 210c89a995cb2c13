package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/auth"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/images"
	"github.com/theheadmen/studfund/internal/models"
	"github.com/theheadmen/studfund/internal/service"
)

// multipartOverhead leaves room for form boundaries around the file part.
const multipartOverhead = 64 << 10

// maxFormMemory is how much of a multipart form is kept in memory before
// parts spill to temp files.
const maxFormMemory = 8 << 20

type uploadFunc func(filename string, size int64, file io.Reader) (*images.Upload, error)

// handleUpload reads the "file" form field and hands it to store.
func (ls *ServerSystem) handleUpload(w http.ResponseWriter, r *http.Request, store uploadFunc) {
	if ls.Options.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, ls.Options.MaxUploadSize+multipartOverhead)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "a file must be sent in the \"file\" form field"))
		return
	}
	defer file.Close()

	upload, err := store(header.Filename, header.Size, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

// readImageForm parses a multipart form whose "image_file" part is optional.
// The returned close func releases the part and any spooled form files.
func (ls *ServerSystem) readImageForm(w http.ResponseWriter, r *http.Request) (*service.ImageFile, func(), error) {
	if ls.Options.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, ls.Options.MaxUploadSize+multipartOverhead)
	}
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return nil, func() {}, apperr.Wrap(apperr.KindValidation, err, "invalid multipart form")
	}
	release := func() { r.MultipartForm.RemoveAll() }
	file, header, err := r.FormFile("image_file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, release, nil
	}
	if err != nil {
		return nil, release, apperr.Wrap(apperr.KindValidation, err, "invalid image_file part")
	}
	if header.Filename == "" {
		file.Close()
		return nil, release, nil
	}
	return &service.ImageFile{Filename: header.Filename, Size: header.Size, Body: file}, func() {
		file.Close()
		release()
	}, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func (ls *ServerSystem) ListCampaignsHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	params, err := listParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	campaigns, err := ls.Service.ListCampaignsLogic(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (ls *ServerSystem) FeaturedCampaignsHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	limit, err := queryInt(r, "limit", 6)
	if err != nil {
		writeError(w, r, err)
		return
	}
	campaigns, err := ls.Service.FeaturedCampaignsLogic(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (ls *ServerSystem) SpotlightCampaignsHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	limit, err := queryInt(r, "limit", 6)
	if err != nil {
		writeError(w, r, err)
		return
	}
	campaigns, err := ls.Service.SpotlightCampaignsLogic(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (ls *ServerSystem) PendingApprovalHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	campaigns, err := ls.Service.PendingApprovalLogic(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (ls *ServerSystem) UserCampaignsHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	campaigns, err := ls.Service.UserCampaignsLogic(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (ls *ServerSystem) CreateCampaignHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req models.CampaignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	campaign, err := ls.Service.CreateCampaignLogic(r.Context(), p, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

// CreateCampaignWithImageHandler creates a campaign from a multipart form,
// storing image_file when one is attached.
func (ls *ServerSystem) CreateCampaignWithImageHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	image, release, err := ls.readImageForm(w, r)
	defer release()
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := campaignForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	campaign, err := ls.Service.CreateCampaignWithImageLogic(r.Context(), p, req, image)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func campaignForm(r *http.Request) (models.CampaignRequest, error) {
	goal, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("goal_amount")))
	if err != nil {
		return models.CampaignRequest{}, apperr.Validation("invalid goal_amount")
	}
	months, err := strconv.Atoi(strings.TrimSpace(r.FormValue("duration_months")))
	if err != nil {
		return models.CampaignRequest{}, apperr.Validation("invalid duration_months")
	}
	return models.CampaignRequest{
		Title:          r.FormValue("title"),
		Description:    r.FormValue("description"),
		GoalAmount:     goal,
		DurationMonths: months,
		Category:       r.FormValue("category"),
		ImageURL:       r.FormValue("image_url"),
		VideoURL:       r.FormValue("video_url"),
		Story:          r.FormValue("story"),
	}, nil
}

func (ls *ServerSystem) GetCampaignHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	campaign, err := ls.Service.GetCampaignLogic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (ls *ServerSystem) UpdateCampaignHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.CampaignUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	campaign, err := ls.Service.UpdateCampaignLogic(r.Context(), p, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (ls *ServerSystem) DeleteCampaignHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := ls.Service.DeleteCampaignLogic(r.Context(), p, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "campaign deleted")
}

func (ls *ServerSystem) StartCampaignHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	campaign, err := ls.Service.StartCampaignLogic(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (ls *ServerSystem) ApproveCampaignHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	campaign, err := ls.Service.ApproveCampaignLogic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (ls *ServerSystem) UploadCampaignImageHandler(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ls.handleUpload(w, r, func(filename string, size int64, file io.Reader) (*images.Upload, error) {
		return ls.Service.UploadCampaignImageLogic(r.Context(), p, id, filename, size, file)
	})
}

func (ls *ServerSystem) serveImage(w http.ResponseWriter, r *http.Request, obj *images.Object) {
	defer obj.Close()
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		log.WithError(err).WithField("image", obj.Name).Warn("failed to stream image")
	}
}

func (ls *ServerSystem) ImageHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	vars := mux.Vars(r)
	obj, err := ls.Service.Images.Open(r.Context(), vars["category"], vars["filename"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	ls.serveImage(w, r, obj)
}

func (ls *ServerSystem) ThumbnailHandler(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	vars := mux.Vars(r)
	obj, err := ls.Service.Images.OpenThumbnail(r.Context(), vars["category"], vars["filename"], vars["size"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	ls.serveImage(w, r, obj)
}
