package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/betternotes/internal/config"
	"github.com/MarcoPoloResearchLab/betternotes/internal/database"
	"github.com/MarcoPoloResearchLab/betternotes/internal/logging"
	"github.com/MarcoPoloResearchLab/betternotes/internal/notes"
	"github.com/MarcoPoloResearchLab/betternotes/internal/storage/files"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const flushTimeout = 10 * time.Second

// appRuntime owns the wired store and everything that must be released on exit.
type appRuntime struct {
	config     config.AppConfig
	logger     *zap.Logger
	store      *notes.Store
	controller *notes.Controller
	closers    []func() error
}

func openRuntime(ctx context.Context) (*appRuntime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return nil, err
	}

	runtime := &appRuntime{config: appConfig, logger: logger}

	gateway, err := runtime.openGateway()
	if err != nil {
		runtime.release()
		return nil, err
	}

	store, err := notes.NewStore(notes.StoreConfig{
		Gateway: gateway,
		Clock:   time.Now,
		Logger:  logger,
	})
	if err != nil {
		runtime.release()
		return nil, err
	}

	idProvider := notes.NewTimestampIDProvider(time.Now)
	if appConfig.IDStrategy == config.IDStrategyUUID {
		idProvider = notes.NewUUIDProvider()
	}

	controller, err := notes.NewController(notes.ControllerConfig{
		Store:      store,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		runtime.release()
		return nil, err
	}

	report := store.Initialize(ctx)
	logger.Debug("notes loaded",
		zap.String("driver", appConfig.StorageDriver),
		zap.Int("loaded", report.Loaded),
		zap.Int("repaired", report.Repaired),
		zap.Int("skipped", report.Skipped),
		zap.Bool("bootstrapped", report.Bootstrapped),
		zap.Bool("fallback", report.Fallback),
	)

	runtime.store = store
	runtime.controller = controller
	return runtime, nil
}

func (r *appRuntime) openGateway() (notes.Gateway, error) {
	switch r.config.StorageDriver {
	case config.StorageDriverSQLite:
		db, err := database.OpenSQLite(r.config.DatabasePath, r.logger)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, sqlDB.Close)
		return database.NewGateway(database.GatewayConfig{
			Database: db,
			Clock:    time.Now,
			Logger:   r.logger,
		})
	case config.StorageDriverFiles:
		return files.NewGateway(files.Config{
			Dir:    r.config.StoragePath,
			Clock:  time.Now,
			Logger: r.logger,
		})
	default:
		return nil, fmt.Errorf("storage driver %q is not supported", r.config.StorageDriver)
	}
}

// close flushes in-flight gateway calls before releasing resources.
func (r *appRuntime) close() error {
	var flushErr error
	if r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := r.store.Wait(ctx); err != nil {
			r.logger.Warn("pending note writes did not finish", zap.Int("pending", r.store.Pending()), zap.Error(err))
			flushErr = err
		}
	}
	r.release()
	return flushErr
}

func (r *appRuntime) release() {
	for index := len(r.closers) - 1; index >= 0; index-- {
		if err := r.closers[index](); err != nil {
			r.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
	r.closers = nil
	_ = r.logger.Sync()
}
