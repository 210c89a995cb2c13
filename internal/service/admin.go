package service

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/dbconnector"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"github.com/theheadmen/studfund/internal/models"
)

func (s *Service) AdminStatsLogic(ctx context.Context) (*models.AdminStatsResponse, error) {
	stats, err := s.Storage.GetAdminStats(ctx)
	if err != nil {
		return nil, storageError(err, "stats")
	}
	return &models.AdminStatsResponse{
		TotalUsers:       stats.TotalUsers,
		TotalCampaigns:   stats.TotalCampaigns,
		ActiveCampaigns:  stats.ActiveCampaigns,
		PendingApprovals: stats.PendingApprovals,
		TotalPayments:    stats.TotalPayments,
		TotalDonations:   stats.TotalDonations,
	}, nil
}

// AdminCampaignsLogic lists campaigns of every status unless one is requested.
func (s *Service) AdminCampaignsLogic(ctx context.Context, params models.ListParams) ([]models.CampaignResponse, error) {
	if params.Status != "" {
		if _, err := lifecycle.ParseCampaignStatus(params.Status); err != nil {
			return nil, err
		}
	}
	limit, offset := clampPage(params.Limit, params.Offset)
	return s.listCampaigns(ctx, dbconnector.CampaignFilter{
		Status:   params.Status,
		Category: params.Category,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Service) FeatureCampaignLogic(ctx context.Context, id uint, featured bool) (*models.CampaignResponse, error) {
	campaign, err := s.Storage.MutateCampaign(ctx, id, func(c *dbconnector.Campaign) (bool, error) {
		if c.IsFeatured == featured {
			return false, nil
		}
		c.IsFeatured = featured
		return true, nil
	})
	if err != nil {
		return nil, storageError(err, "campaign")
	}
	return s.decorateOne(ctx, campaign)
}

// CloseCampaignLogic closes a campaign for good and drops it from the featured list.
// Closing a closed campaign succeeds without writing.
func (s *Service) CloseCampaignLogic(ctx context.Context, id uint) (*models.CampaignResponse, error) {
	campaign, err := s.Storage.MutateCampaign(ctx, id, func(c *dbconnector.Campaign) (bool, error) {
		if c.Status == lifecycle.CampaignClosed {
			return false, nil
		}
		c.Status = lifecycle.CampaignClosed
		c.IsFeatured = false
		return true, nil
	})
	if err != nil {
		return nil, storageError(err, "campaign")
	}
	log.WithField("campaign_id", id).Info("campaign closed")
	return s.decorateOne(ctx, campaign)
}

// SetCampaignStatusLogic forces any status. Activating a campaign that never ran stamps its dates.
func (s *Service) SetCampaignStatusLogic(ctx context.Context, id uint, raw string) (*models.CampaignResponse, error) {
	status, err := lifecycle.ParseCampaignStatus(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	now := s.Now()
	campaign, err := s.Storage.MutateCampaign(ctx, id, func(c *dbconnector.Campaign) (bool, error) {
		if c.Status == status {
			return false, nil
		}
		c.Status = status
		if status == lifecycle.CampaignActive && c.StartDate == nil {
			start, end := lifecycle.CampaignDates(now, c.DurationMonths)
			c.StartDate, c.EndDate = &start, &end
		}
		return true, nil
	})
	if err != nil {
		return nil, storageError(err, "campaign")
	}
	log.WithField("campaign_id", id).WithField("status", status).Info("campaign status set")
	return s.decorateOne(ctx, campaign)
}

// AdminCreateUserLogic creates an account of any role, optionally pre-verified.
func (s *Service) AdminCreateUserLogic(ctx context.Context, req models.AdminUserRequest) (*dbconnector.User, error) {
	role := lifecycle.RoleStudent
	if req.Role != "" {
		parsed, err := lifecycle.ParseRole(strings.ToLower(req.Role))
		if err != nil {
			return nil, err
		}
		role = parsed
	}
	user, err := s.newUser(ctx, req.RegisterRequest, role)
	if err != nil {
		return nil, err
	}
	user.IsVerified = req.IsVerified
	if err := s.Storage.AddUser(ctx, user); err != nil {
		if dbconnector.IsUniqueViolation(err) {
			return nil, apperr.ErrEmailTaken
		}
		return nil, storageError(err, "user")
	}
	log.WithField("user_id", user.ID).WithField("role", role).Info("user created by admin")
	return user, nil
}

func (s *Service) AdminListLogic(ctx context.Context, entity string, limit, offset int) (interface{}, error) {
	limit, offset = clampPage(limit, offset)
	out, err := s.Storage.AdminList(ctx, entity, limit, offset)
	if err != nil {
		return nil, storageError(err, entity)
	}
	return out, nil
}

func (s *Service) AdminGetLogic(ctx context.Context, entity string, id uint) (interface{}, error) {
	out, err := s.Storage.AdminGet(ctx, entity, id)
	if err != nil {
		return nil, storageError(err, entity)
	}
	return out, nil
}

// checkAdminFields rejects enum columns holding values outside their enum.
func checkAdminFields(entity string, fields map[string]interface{}) error {
	for name, value := range fields {
		str, isString := value.(string)
		var err error
		switch {
		case entity == "users" && name == "role":
			_, err = lifecycle.ParseRole(str)
		case entity == "users" && name == "status":
			switch lifecycle.UserStatus(str) {
			case lifecycle.UserActive, lifecycle.UserInactive, lifecycle.UserSuspended:
			default:
				err = apperr.Validation(fmt.Sprintf("invalid user status: %q", str))
			}
		case entity == "campaigns" && name == "status":
			_, err = lifecycle.ParseCampaignStatus(str)
		default:
			continue
		}
		if !isString {
			return apperr.Validation(fmt.Sprintf("%s must be a string", name))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) AdminUpdateLogic(ctx context.Context, entity string, id uint, fields map[string]interface{}) (interface{}, error) {
	if err := checkAdminFields(entity, fields); err != nil {
		return nil, err
	}
	out, err := s.Storage.AdminUpdate(ctx, entity, id, fields)
	if err != nil {
		return nil, storageError(err, entity)
	}
	log.WithField("entity", entity).WithField("id", id).Info("admin update")
	return out, nil
}

func (s *Service) AdminDeleteLogic(ctx context.Context, entity string, id uint) error {
	if err := s.Storage.AdminDelete(ctx, entity, id); err != nil {
		return storageError(err, entity)
	}
	log.WithField("entity", entity).WithField("id", id).Info("admin delete")
	return nil
}
