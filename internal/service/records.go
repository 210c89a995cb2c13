package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/dbconnector"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/images"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"github.com/theheadmen/studfund/internal/mailer"
	"github.com/theheadmen/studfund/internal/models"
)

const (
	highlightDonorsLimit = 10
	highlightWeek        = 7 * 24 * time.Hour
)

// requireText trims s and checks it is non-empty and at most max runes long.
func requireText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperr.Validation(field + " is required")
	}
	if len([]rune(s)) > max {
		return "", apperr.Validation(fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return s, nil
}

func optionalText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if len([]rune(s)) > max {
		return "", apperr.Validation(fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return s, nil
}

func (s *Service) CreateMilestoneLogic(ctx context.Context, p auth.Principal, req models.MilestoneRequest) (*dbconnector.Milestone, error) {
	title, err := requireText("title", req.Title, 200)
	if err != nil {
		return nil, err
	}
	if !req.ThresholdAmount.IsPositive() {
		return nil, apperr.Validation("threshold amount must be positive")
	}
	campaign, err := s.campaignForOwner(ctx, p, req.CampaignID)
	if err != nil {
		return nil, err
	}

	milestone := &dbconnector.Milestone{
		CampaignID:      campaign.ID,
		Title:           title,
		ThresholdAmount: req.ThresholdAmount.Round(2),
		IsAuto:          req.IsAuto,
	}
	// a milestone already below the raised amount counts as reached
	if campaign.CurrentAmount.GreaterThanOrEqual(milestone.ThresholdAmount) {
		now := s.Now()
		milestone.AchievedAt = &now
	}
	if err := s.Storage.AddMilestone(ctx, milestone); err != nil {
		return nil, storageError(err, "milestone")
	}
	return milestone, nil
}

func (s *Service) CampaignMilestonesLogic(ctx context.Context, campaignID uint) ([]dbconnector.Milestone, error) {
	if _, err := s.loadCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	var milestones []dbconnector.Milestone
	if err := s.Storage.GetMilestonesByCampaign(ctx, campaignID, &milestones); err != nil {
		return nil, storageError(err, "milestones")
	}
	return milestones, nil
}

func (s *Service) CreateShoutoutLogic(ctx context.Context, p auth.Principal, req models.ShoutoutRequest) (*dbconnector.Shoutout, error) {
	message, err := requireText("message", req.Message, 512)
	if err != nil {
		return nil, err
	}
	campaign, err := s.loadCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	user, err := s.ActingUser(ctx, p)
	if err != nil {
		return nil, err
	}
	name := req.DisplayName
	if strings.TrimSpace(name) == "" {
		name = user.FirstName + " " + user.LastName
	}
	if name, err = requireText("display name", name, 191); err != nil {
		return nil, err
	}

	shoutout := &dbconnector.Shoutout{
		CampaignID:  campaign.ID,
		DonorID:     &user.ID,
		DisplayName: name,
		Message:     message,
		Visible:     true,
	}
	if err := s.Storage.AddShoutout(ctx, shoutout); err != nil {
		return nil, storageError(err, "shoutout")
	}
	return shoutout, nil
}

func (s *Service) CampaignShoutoutsLogic(ctx context.Context, campaignID uint) ([]dbconnector.Shoutout, error) {
	if _, err := s.loadCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	var shoutouts []dbconnector.Shoutout
	if err := s.Storage.GetVisibleShoutouts(ctx, campaignID, &shoutouts); err != nil {
		return nil, storageError(err, "shoutouts")
	}
	return shoutouts, nil
}

func (s *Service) CreateCompanyLogic(ctx context.Context, req models.CompanyRequest) (*dbconnector.Company, error) {
	name, err := requireText("name", req.Name, 191)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(req.ContactEmail)
	if err != nil {
		return nil, err
	}
	website, err := optionalText("website", req.Website, 1024)
	if err != nil {
		return nil, err
	}
	logo, err := optionalText("logo url", req.LogoURL, 1024)
	if err != nil {
		return nil, err
	}

	company := &dbconnector.Company{
		Name:         name,
		ContactEmail: email,
		Website:      website,
		LogoURL:      logo,
		Description:  strings.TrimSpace(req.Description),
	}
	if err := s.Storage.AddCompany(ctx, company); err != nil {
		return nil, storageError(err, "company")
	}
	log.WithField("company_id", company.ID).Info("company created")
	return company, nil
}

func (s *Service) ListCompaniesLogic(ctx context.Context) ([]dbconnector.Company, error) {
	var companies []dbconnector.Company
	if err := s.Storage.GetCompanies(ctx, &companies); err != nil {
		return nil, storageError(err, "companies")
	}
	return companies, nil
}

// CreatePartnershipLogic records a partnership and marks the company as a partner of that tier.
func (s *Service) CreatePartnershipLogic(ctx context.Context, companyID uint, req models.PartnershipRequest) (*dbconnector.Partnership, error) {
	kind, err := lifecycle.ParsePartnershipType(req.PartnershipType)
	if err != nil {
		return nil, err
	}
	if req.DurationMonths <= 0 {
		return nil, apperr.Validation("duration must be at least one month")
	}
	if req.Cost.IsNegative() {
		return nil, apperr.Validation("cost cannot be negative")
	}
	position, err := optionalText("banner position", req.BannerPosition, 64)
	if err != nil {
		return nil, err
	}

	start := s.Now()
	end := start.AddDate(0, req.DurationMonths, 0)
	partnership := &dbconnector.Partnership{
		CompanyID:       companyID,
		PartnershipType: kind,
		Cost:            req.Cost.Round(2),
		DurationMonths:  req.DurationMonths,
		BannerURL:       strings.TrimSpace(req.BannerURL),
		BannerPosition:  position,
		IsActive:        true,
		StartDate:       start,
		EndDate:         &end,
	}
	if err := s.Storage.AddPartnership(ctx, partnership); err != nil {
		return nil, storageError(err, "company")
	}
	log.WithField("company_id", companyID).WithField("type", kind).Info("partnership created")
	return partnership, nil
}

// PartnershipRequestLogic forwards an inquiry to the partnerships inbox. Unlike
// the other notifications, a delivery failure is reported to the caller.
func (s *Service) PartnershipRequestLogic(ctx context.Context, req models.PartnershipInquiry) (*models.MessageResponse, error) {
	company, err := requireText("company name", req.CompanyName, 191)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(req.ContactEmail)
	if err != nil {
		return nil, err
	}
	kind, err := lifecycle.ParsePartnershipType(req.PartnershipType)
	if err != nil {
		return nil, err
	}
	if s.Settings.PartnershipEmail == "" || s.Mailer == nil {
		return nil, apperr.Internal(nil, "partnership inbox is not configured")
	}

	msg := mailer.PartnershipRequestMessage(s.Settings.PartnershipEmail, company, email, string(kind), strings.TrimSpace(req.Message))
	if err := s.Mailer.Send(ctx, msg); err != nil {
		return nil, apperr.Internal(err, "failed to send partnership request")
	}
	return &models.MessageResponse{Message: "Partnership request sent successfully"}, nil
}

func (s *Service) highlightResponse(ctx context.Context, h dbconnector.StudentHighlight) models.HighlightResponse {
	resp := models.HighlightResponse{StudentHighlight: h}
	var user dbconnector.User
	if err := s.Storage.GetUserByUserID(ctx, h.UserID, &user); err == nil {
		resp.StudentName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	return resp
}

// CreateHighlightLogic makes the given student the current highlight, retiring the previous one.
func (s *Service) CreateHighlightLogic(ctx context.Context, req models.HighlightRequest) (*models.HighlightResponse, error) {
	achievement, err := requireText("achievement", req.Achievement, 200)
	if err != nil {
		return nil, err
	}
	imageURL, err := optionalText("image url", req.ImageURL, 1024)
	if err != nil {
		return nil, err
	}
	var student dbconnector.User
	if err := s.Storage.GetUserByUserID(ctx, req.UserID, &student); err != nil {
		return nil, storageError(err, "user")
	}

	highlight := &dbconnector.StudentHighlight{
		UserID:      student.ID,
		Achievement: achievement,
		Description: strings.TrimSpace(req.Description),
		ImageURL:    imageURL,
		FeaturedAt:  s.Now(),
	}
	if err := s.Storage.ReplaceHighlight(ctx, highlight); err != nil {
		return nil, storageError(err, "highlight")
	}
	log.WithField("highlight_id", highlight.ID).WithField("user_id", student.ID).Info("student highlighted")
	resp := s.highlightResponse(ctx, *highlight)
	return &resp, nil
}

// CreateHighlightWithImageLogic is CreateHighlightLogic with an optional
// uploaded image replacing image_url.
func (s *Service) CreateHighlightWithImageLogic(ctx context.Context, req models.HighlightRequest, image *ImageFile) (*models.HighlightResponse, error) {
	if image == nil {
		return s.CreateHighlightLogic(ctx, req)
	}
	if _, err := requireText("achievement", req.Achievement, 200); err != nil {
		return nil, err
	}
	upload, err := s.Images.Upload(ctx, "highlights", image.Filename, image.Size, image.Body)
	if err != nil {
		return nil, err
	}
	req.ImageURL = upload.URL
	return s.CreateHighlightLogic(ctx, req)
}

func (s *Service) CurrentHighlightLogic(ctx context.Context) (*models.HighlightResponse, error) {
	var highlight dbconnector.StudentHighlight
	if err := s.Storage.GetCurrentHighlight(ctx, &highlight); err != nil {
		return nil, storageError(err, "highlight")
	}
	resp := s.highlightResponse(ctx, highlight)
	return &resp, nil
}

// HighlightDonorsLogic lists the latest named donations.
func (s *Service) HighlightDonorsLogic(ctx context.Context) ([]models.HighlightDonor, error) {
	var payments []dbconnector.Payment
	if err := s.Storage.GetRecentPublicDonations(ctx, highlightDonorsLimit, &payments); err != nil {
		return nil, storageError(err, "payments")
	}
	donors := make([]models.HighlightDonor, 0, len(payments))
	for _, pm := range payments {
		donatedAt := pm.CreatedAt
		if pm.ProcessedAt != nil {
			donatedAt = *pm.ProcessedAt
		}
		name := pm.DonorName
		if name == "" {
			name = "Anonymous"
		}
		donors = append(donors, models.HighlightDonor{
			DonorName:  name,
			Amount:     pm.Amount,
			CampaignID: pm.CampaignID,
			Message:    pm.Message,
			DonatedAt:  donatedAt,
		})
	}
	return donors, nil
}

func (s *Service) highlightList(ctx context.Context, highlights []dbconnector.StudentHighlight) []models.HighlightResponse {
	out := make([]models.HighlightResponse, 0, len(highlights))
	for _, h := range highlights {
		out = append(out, s.highlightResponse(ctx, h))
	}
	return out
}

func (s *Service) WeeklyHighlightsLogic(ctx context.Context) ([]models.HighlightResponse, error) {
	var highlights []dbconnector.StudentHighlight
	if err := s.Storage.GetHighlightsSince(ctx, s.Now().Add(-highlightWeek), &highlights); err != nil {
		return nil, storageError(err, "highlights")
	}
	return s.highlightList(ctx, highlights), nil
}

func (s *Service) StudentHighlightsLogic(ctx context.Context, userID uint) ([]models.HighlightResponse, error) {
	var highlights []dbconnector.StudentHighlight
	if err := s.Storage.GetHighlightsByUser(ctx, userID, &highlights); err != nil {
		return nil, storageError(err, "highlights")
	}
	return s.highlightList(ctx, highlights), nil
}

func (s *Service) UploadHighlightImageLogic(ctx context.Context, id uint, filename string, size int64, r io.Reader) (*images.Upload, error) {
	var highlight dbconnector.StudentHighlight
	if err := s.Storage.GetHighlightByID(ctx, id, &highlight); err != nil {
		return nil, storageError(err, "highlight")
	}
	upload, err := s.Images.Upload(ctx, "highlights", filename, size, r)
	if err != nil {
		return nil, err
	}
	if err := s.Storage.UpdateHighlightImage(ctx, id, upload.URL); err != nil {
		return nil, storageError(err, "highlight")
	}
	return upload, nil
}
