package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/i474232898/weather-predictor/internal/config"
	"github.com/i474232898/weather-predictor/internal/features"
	"github.com/i474232898/weather-predictor/internal/history"
	"github.com/i474232898/weather-predictor/internal/model"
	"github.com/i474232898/weather-predictor/internal/prediction"
)

// App owns everything loaded at startup. Nothing in it is reloaded.
type App struct {
	Features  *features.Store // nil when the table failed to load
	Model     *model.Artifact // never nil; may be unavailable
	History   *history.Journal
	Predictor *prediction.Service

	logger *zap.Logger
}

// New loads the feature table and the model artifact once. Load failures are
// logged and leave the corresponding artifact unavailable; queries then
// answer with an explanatory message instead of the process exiting.
func New(cfg *config.AppConfig, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}

	policy, err := features.ParsePolicyFrom(cfg.ParsePolicy)
	if err != nil {
		logger.Warn("falling back to truncate parse policy", zap.Error(err))
		policy = features.PolicyTruncate
	}
	store, err := features.LoadFile(cfg.FeaturesPath, features.Options{
		Policy: policy,
		Logger: logger.Named("features"),
	})
	if err != nil {
		logger.Error("error initializing feature table",
			zap.String("path", cfg.FeaturesPath), zap.Error(err))
	} else {
		st := store.Stats()
		logger.Info("feature table loaded",
			zap.String("path", cfg.FeaturesPath),
			zap.Int("cities", store.Len()),
			zap.Int("rows", st.Rows),
			zap.Int("skipped", st.Skipped),
			zap.Int("dropped", st.Dropped),
			zap.Int("bad_fields", st.BadFields),
		)
		a.Features = store
	}

	artifact, err := model.Load(cfg.ModelPath, model.Options{
		ONNXRuntimeLib: cfg.ONNXRuntimeLib,
		IntraOpThreads: cfg.IntraOpThreads,
		Logger:         logger.Named("model"),
	})
	if err != nil {
		fields := []zap.Field{zap.String("path", cfg.ModelPath), zap.Error(err)}
		switch {
		case errors.Is(err, model.ErrModelMissing), errors.Is(err, model.ErrModelEmpty):
			logger.Error("model file is missing or empty", fields...)
		default:
			logger.Error("error loading model", fields...)
		}
		artifact = model.Unavailable(cfg.ModelPath, err)
	}
	a.Model = artifact

	if cfg.HistoryPath != "" {
		j, err := history.Open(cfg.HistoryPath)
		if err != nil {
			logger.Warn("prediction history disabled", zap.String("path", cfg.HistoryPath), zap.Error(err))
		} else {
			a.History = j
		}
	}

	// A nil store must reach the service as a nil interface.
	var source prediction.FeatureSource
	if a.Features != nil {
		source = a.Features
	}
	a.Predictor = prediction.NewService(source, a.Model, logger.Named("prediction"))
	return a
}

// Answer serves one query and records it in the history journal when one is
// configured. The returned text is what the shell prints.
func (a *App) Answer(ctx context.Context, city string) string {
	var answer string
	res, err := a.Predictor.Predict(city)
	if err != nil {
		answer = a.Predictor.Message(err)
	} else {
		answer = res.String()
	}

	if a.History != nil {
		_, herr := a.History.Record(ctx, history.Entry{
			City:    city,
			Key:     features.Normalize(city),
			Outcome: prediction.Outcome(err),
			Answer:  answer,
		})
		if herr != nil {
			a.logger.Warn("failed to record prediction", zap.Error(herr))
		}
	}
	return answer
}

// Close releases the model backend and the history journal.
func (a *App) Close() error {
	var errs []error
	if err := a.Model.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
