package main

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/authz"
	"github.com/theheadmen/studfund/internal/dbconnector"
	"github.com/theheadmen/studfund/internal/gateway"
	"github.com/theheadmen/studfund/internal/images"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"github.com/theheadmen/studfund/internal/mailer"
	"github.com/theheadmen/studfund/internal/ratelimit"
	"github.com/theheadmen/studfund/internal/server"
	"github.com/theheadmen/studfund/internal/service"
	"github.com/theheadmen/studfund/internal/serverconfig"
)

// FundraisingSystem holds everything built from one configuration.
type FundraisingSystem struct {
	DB      *dbconnector.DBConnector
	Service *service.Service
	Server  *server.ServerSystem

	closers []io.Closer
}

func setupLogging(configStore *serverconfig.ConfigStore) {
	log.SetOutput(os.Stdout)
	if configStore.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(configStore.LogLevel)
	if err != nil {
		log.WithError(err).Warn("unknown LOG_LEVEL, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func newImageStore(ctx context.Context, configStore *serverconfig.ConfigStore) (images.Store, error) {
	if configStore.S3Bucket == "" {
		local, err := images.NewLocalStore(configStore.FlagUploadDir, configStore.FlagBaseURL)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
	remote, err := images.NewS3Store(ctx, images.S3Config{
		Bucket:          configStore.S3Bucket,
		Endpoint:        configStore.S3Endpoint,
		Region:          configStore.S3Region,
		AccessKeyID:     configStore.S3AccessKeyID,
		SecretAccessKey: configStore.S3SecretAccessKey,
		PublicURL:       configStore.S3PublicURL,
		FallbackURL:     configStore.FlagBaseURL,
	})
	if err != nil {
		return nil, err
	}
	return remote, nil
}

func newGateway(configStore *serverconfig.ConfigStore) gateway.Gateway {
	router := gateway.NewRouter(gateway.NewSimulated(configStore.PaymentDelay))
	if configStore.PaymentGateway == "stripe" {
		router.Route(lifecycle.MethodCreditCard, gateway.NewStripe(configStore.StripeSecretKey))
	}
	return router
}

func (fs *FundraisingSystem) newLimiter(ctx context.Context, configStore *serverconfig.ConfigStore) ratelimit.Limiter {
	if configStore.OTPSendLimit <= 0 {
		return ratelimit.Unlimited{}
	}
	if configStore.RedisAddr != "" {
		client, err := ratelimit.NewRedisClient(ctx, configStore.RedisAddr, configStore.RedisPassword, configStore.RedisDB)
		if err == nil {
			fs.closers = append(fs.closers, client)
			return ratelimit.NewRedisLimiter(client, configStore.OTPSendLimit, configStore.OTPSendWindow)
		}
		log.WithError(err).Warn("redis unavailable, falling back to in-memory otp limits")
	}
	return ratelimit.NewMemoryLimiter(configStore.OTPSendLimit, configStore.OTPSendWindow)
}

// NewFundraisingSystem wires storage, collaborators, the service and the HTTP layer.
func NewFundraisingSystem(ctx context.Context, configStore *serverconfig.ConfigStore, db *dbconnector.DBConnector) (*FundraisingSystem, error) {
	fs := &FundraisingSystem{DB: db}

	store, err := newImageStore(ctx, configStore)
	if err != nil {
		return nil, errors.Wrap(err, "image storage")
	}
	m := mailer.New(mailer.SMTPConfig{
		Host:     configStore.SMTPHost,
		Port:     configStore.SMTPPort,
		Username: configStore.SMTPUsername,
		Password: configStore.SMTPPassword,
		From:     configStore.SMTPFrom,
	})

	fs.Service = service.New(
		db,
		m,
		images.NewService(store, configStore.MaxFileSize).WithMaxPixels(configStore.MaxImagePixels),
		newGateway(configStore),
		fs.newLimiter(ctx, configStore),
		auth.NewTokenIssuer(configStore.JWTSecret, configStore.JWTTTL),
		service.Settings{
			BaseURL:           configStore.FlagBaseURL,
			AdminEmail:        configStore.AdminEmail,
			AdminPasswordHash: configStore.AdminPasswordHash,
			PartnershipEmail:  configStore.PartnershipEmail,
			MinReferrals:      configStore.MinReferrals,
			CreationPolicy:    configStore.CreationPolicy,
			StartPolicy:       configStore.StartPolicy,
		},
	)
	fs.Server = server.NewServerSystem(fs.Service, authz.DefaultPolicy(), server.Options{
		AllowedOrigins: configStore.AllowedOrigins,
		TrustedHosts:   configStore.TrustedHosts,
		MaxUploadSize:  configStore.MaxFileSize,
	})
	return fs, nil
}

func (fs *FundraisingSystem) Close() {
	for _, c := range fs.closers {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("failed to close resource")
		}
	}
	if err := fs.DB.Close(); err != nil {
		log.WithError(err).Warn("failed to close database")
	}
}
