package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/dbconnector"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/images"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"github.com/theheadmen/studfund/internal/models"
)

var maxGoal = decimal.NewFromInt(lifecycle.MaxGoalAmount)

func validateGoal(goal decimal.Decimal) error {
	if !goal.IsPositive() {
		return apperr.Validation("goal amount must be positive")
	}
	if goal.GreaterThan(maxGoal) {
		return apperr.Validation(fmt.Sprintf("goal amount cannot exceed %d", lifecycle.MaxGoalAmount))
	}
	if !goal.Equal(goal.Round(2)) {
		return apperr.Validation("goal amount has at most two decimal places")
	}
	return nil
}

func validateCampaignText(title, description string) error {
	if len(strings.TrimSpace(title)) < lifecycle.MinTitleLength {
		return apperr.Validation(fmt.Sprintf("title must be at least %d characters", lifecycle.MinTitleLength))
	}
	if len(strings.TrimSpace(description)) < lifecycle.MinDescription {
		return apperr.Validation(fmt.Sprintf("description must be at least %d characters", lifecycle.MinDescription))
	}
	return nil
}

func validateDuration(months int) error {
	if !lifecycle.ValidDuration(months) {
		return apperr.Validation("duration must be 1, 3, 6 or 12 months")
	}
	return nil
}

// decorate adds progress, remaining days and donor counts to campaigns.
func (s *Service) decorate(ctx context.Context, campaigns []dbconnector.Campaign) ([]models.CampaignResponse, error) {
	ids := make([]uint, 0, len(campaigns))
	for _, c := range campaigns {
		ids = append(ids, c.ID)
	}
	counts, err := s.Storage.DonorCounts(ctx, ids)
	if err != nil {
		return nil, storageError(err, "donor counts")
	}

	now := s.Now()
	out := make([]models.CampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, models.CampaignResponse{
			Campaign:           c,
			ProgressPercentage: lifecycle.Progress(c.CurrentAmount, c.GoalAmount),
			DaysRemaining:      lifecycle.DaysRemaining(c.EndDate, now),
			DonorCount:         counts[c.ID],
		})
	}
	return out, nil
}

func (s *Service) decorateOne(ctx context.Context, c *dbconnector.Campaign) (*models.CampaignResponse, error) {
	out, err := s.decorate(ctx, []dbconnector.Campaign{*c})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *Service) loadCampaign(ctx context.Context, id uint) (*dbconnector.Campaign, error) {
	var campaign dbconnector.Campaign
	if err := s.Storage.GetCampaignByID(ctx, id, &campaign); err != nil {
		return nil, storageError(err, "campaign")
	}
	return &campaign, nil
}

// CreateCampaignLogic opens a draft campaign owned by the caller.
func (s *Service) CreateCampaignLogic(ctx context.Context, p auth.Principal, req models.CampaignRequest) (*models.CampaignResponse, error) {
	if err := validateCampaignText(req.Title, req.Description); err != nil {
		return nil, err
	}
	if err := validateGoal(req.GoalAmount); err != nil {
		return nil, err
	}
	if err := validateDuration(req.DurationMonths); err != nil {
		return nil, err
	}

	owner, err := s.ActingUser(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.Settings.CreationPolicy.CanCreate(p.Role, owner.ReferralCount, s.Settings.MinReferrals); err != nil {
		return nil, err
	}

	campaign := &dbconnector.Campaign{
		UserID:         owner.ID,
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		GoalAmount:     req.GoalAmount,
		CurrentAmount:  decimal.Zero,
		Status:         lifecycle.CampaignDraft,
		DurationMonths: req.DurationMonths,
		Category:       strings.TrimSpace(req.Category),
		ImageURL:       req.ImageURL,
		VideoURL:       req.VideoURL,
		Story:          req.Story,
	}
	if err := s.Storage.AddCampaign(ctx, campaign); err != nil {
		return nil, storageError(err, "campaign")
	}
	log.WithField("campaign_id", campaign.ID).WithField("user_id", owner.ID).Info("campaign created")
	return s.decorateOne(ctx, campaign)
}

func (s *Service) GetCampaignLogic(ctx context.Context, id uint) (*models.CampaignResponse, error) {
	campaign, err := s.loadCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decorateOne(ctx, campaign)
}

func (s *Service) listCampaigns(ctx context.Context, filter dbconnector.CampaignFilter) ([]models.CampaignResponse, error) {
	var campaigns []dbconnector.Campaign
	if err := s.Storage.ListCampaigns(ctx, filter, &campaigns); err != nil {
		return nil, storageError(err, "campaigns")
	}
	return s.decorate(ctx, campaigns)
}

// ListCampaignsLogic lists campaigns, active ones unless a status is given.
func (s *Service) ListCampaignsLogic(ctx context.Context, params models.ListParams) ([]models.CampaignResponse, error) {
	status := lifecycle.CampaignActive
	if params.Status != "" {
		parsed, err := lifecycle.ParseCampaignStatus(params.Status)
		if err != nil {
			return nil, err
		}
		status = parsed
	}
	limit, offset := clampPage(params.Limit, params.Offset)
	return s.listCampaigns(ctx, dbconnector.CampaignFilter{
		Status:   string(status),
		Category: params.Category,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Service) FeaturedCampaignsLogic(ctx context.Context, limit int) ([]models.CampaignResponse, error) {
	limit, _ = clampPage(limit, 0)
	featured := true
	return s.listCampaigns(ctx, dbconnector.CampaignFilter{
		Status:   string(lifecycle.CampaignActive),
		Featured: &featured,
		Limit:    limit,
	})
}

// SpotlightCampaignsLogic returns active campaigns closest to their goal.
func (s *Service) SpotlightCampaignsLogic(ctx context.Context, limit int) ([]models.CampaignResponse, error) {
	limit, _ = clampPage(limit, 0)
	var campaigns []dbconnector.Campaign
	if err := s.Storage.GetSpotlightCampaigns(ctx, limit, &campaigns); err != nil {
		return nil, storageError(err, "campaigns")
	}
	return s.decorate(ctx, campaigns)
}

func (s *Service) UserCampaignsLogic(ctx context.Context, userID uint) ([]models.CampaignResponse, error) {
	return s.listCampaigns(ctx, dbconnector.CampaignFilter{UserID: &userID})
}

// UpdateCampaignLogic edits a campaign. Durations move the end date of running campaigns.
func (s *Service) UpdateCampaignLogic(ctx context.Context, p auth.Principal, id uint, req models.CampaignUpdateRequest) (*models.CampaignResponse, error) {
	campaign, err := s.Storage.MutateCampaign(ctx, id, func(c *dbconnector.Campaign) (bool, error) {
		if err := requireOwner(p, c.UserID); err != nil {
			return false, err
		}
		if err := lifecycle.CampaignEditable(c.Status); err != nil {
			return false, err
		}

		title, description := c.Title, c.Description
		if req.Title != nil {
			title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			description = strings.TrimSpace(*req.Description)
		}
		if err := validateCampaignText(title, description); err != nil {
			return false, err
		}
		c.Title, c.Description = title, description

		if req.GoalAmount != nil {
			if err := validateGoal(*req.GoalAmount); err != nil {
				return false, err
			}
			c.GoalAmount = *req.GoalAmount
		}
		if req.DurationMonths != nil {
			if err := validateDuration(*req.DurationMonths); err != nil {
				return false, err
			}
			c.DurationMonths = *req.DurationMonths
			if c.StartDate != nil {
				_, end := lifecycle.CampaignDates(*c.StartDate, c.DurationMonths)
				c.EndDate = &end
			}
		}
		if req.Category != nil {
			c.Category = strings.TrimSpace(*req.Category)
		}
		if req.ImageURL != nil {
			c.ImageURL = *req.ImageURL
		}
		if req.VideoURL != nil {
			c.VideoURL = *req.VideoURL
		}
		if req.Story != nil {
			c.Story = *req.Story
		}
		return true, nil
	})
	if err != nil {
		return nil, storageError(err, "campaign")
	}
	return s.decorateOne(ctx, campaign)
}

func (s *Service) DeleteCampaignLogic(ctx context.Context, p auth.Principal, id uint) error {
	campaign, err := s.loadCampaign(ctx, id)
	if err != nil {
		return err
	}
	if err := requireOwner(p, campaign.UserID); err != nil {
		return err
	}
	if err := s.Storage.DeleteCampaign(ctx, id); err != nil {
		return storageError(err, "campaign")
	}
	log.WithField("campaign_id", id).Info("campaign deleted")
	return nil
}

// StartCampaignLogic moves a draft straight to active under the configured start policy.
func (s *Service) StartCampaignLogic(ctx context.Context, p auth.Principal, id uint) (*models.CampaignResponse, error) {
	now := s.Now()
	campaign, err := s.Storage.MutateCampaign(ctx, id, func(c *dbconnector.Campaign) (bool, error) {
		if err := requireOwner(p, c.UserID); err != nil {
			return false, err
		}
		if err := s.Settings.StartPolicy.CanStart(c.Status, c.ReferralCount, s.Settings.MinReferrals); err != nil {
			return false, err
		}
		start, end := lifecycle.CampaignDates(now, c.DurationMonths)
		c.Status = lifecycle.CampaignActive
		c.StartDate, c.EndDate = &start, &end
		return true, nil
	})
	if err != nil {
		return nil, storageError(err, "campaign")
	}
	log.WithField("campaign_id", id).Info("campaign started")
	return s.decorateOne(ctx, campaign)
}

func (s *Service) PendingApprovalLogic(ctx context.Context) ([]models.CampaignResponse, error) {
	return s.listCampaigns(ctx, dbconnector.CampaignFilter{Status: string(lifecycle.CampaignPendingApproval)})
}

// ApproveCampaignLogic activates a pending campaign with a fresh start date.
func (s *Service) ApproveCampaignLogic(ctx context.Context, id uint) (*models.CampaignResponse, error) {
	now := s.Now()
	campaign, err := s.Storage.MutateCampaign(ctx, id, func(c *dbconnector.Campaign) (bool, error) {
		if err := lifecycle.CanApprove(c.Status); err != nil {
			return false, err
		}
		start, end := lifecycle.CampaignDates(now, c.DurationMonths)
		c.Status = lifecycle.CampaignActive
		c.StartDate, c.EndDate = &start, &end
		return true, nil
	})
	if err != nil {
		return nil, storageError(err, "campaign")
	}
	log.WithField("campaign_id", id).Info("campaign approved")
	return s.decorateOne(ctx, campaign)
}

func (s *Service) UploadCampaignImageLogic(ctx context.Context, p auth.Principal, id uint, filename string, size int64, r io.Reader) (*images.Upload, error) {
	campaign, err := s.loadCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(p, campaign.UserID); err != nil {
		return nil, err
	}
	upload, err := s.Images.Upload(ctx, "campaigns", filename, size, r)
	if err != nil {
		return nil, err
	}
	_, err = s.Storage.MutateCampaign(ctx, id, func(c *dbconnector.Campaign) (bool, error) {
		c.ImageURL = upload.URL
		return true, nil
	})
	if err != nil {
		return nil, storageError(err, "campaign")
	}
	return upload, nil
}

// ImageFile is an image sent alongside a create form.
type ImageFile struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// CreateCampaignWithImageLogic stores the optional image first and creates the
// campaign pointing at it. The form is validated before anything is stored.
func (s *Service) CreateCampaignWithImageLogic(ctx context.Context, p auth.Principal, req models.CampaignRequest, image *ImageFile) (*models.CampaignResponse, error) {
	if image == nil {
		return s.CreateCampaignLogic(ctx, p, req)
	}
	if err := validateCampaignText(req.Title, req.Description); err != nil {
		return nil, err
	}
	if err := validateGoal(req.GoalAmount); err != nil {
		return nil, err
	}
	if err := validateDuration(req.DurationMonths); err != nil {
		return nil, err
	}
	upload, err := s.Images.Upload(ctx, "campaigns", image.Filename, image.Size, image.Body)
	if err != nil {
		return nil, err
	}
	req.ImageURL = upload.URL
	return s.CreateCampaignLogic(ctx, p, req)
}

// ExpireCampaigns marks active campaigns past their end date as expired.
func (s *Service) ExpireCampaigns(ctx context.Context) (int64, error) {
	n, err := s.Storage.ExpireCampaigns(ctx, s.Now())
	return n, storageError(err, "campaigns")
}
