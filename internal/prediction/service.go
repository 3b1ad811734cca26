package prediction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/i474232898/weather-predictor/internal/features"
)

var (
	// ErrModelUnavailable is returned when the model artifact failed to load.
	ErrModelUnavailable = errors.New("model is not loaded")
	// ErrInvalidInput is returned for a blank city name.
	ErrInvalidInput = errors.New("invalid city name")
	// ErrFeaturesUnavailable is returned when the feature table failed to load.
	ErrFeaturesUnavailable = errors.New("city data is not loaded")
	// ErrCityNotFound is returned when the city has no row in the feature table.
	ErrCityNotFound = errors.New("city data not found")
	// ErrInference wraps a failure reported by the model itself.
	ErrInference = errors.New("prediction failed")
)

// FeatureSource resolves a city name to its feature vector.
type FeatureSource interface {
	Lookup(city string) (features.Vector, bool)
}

// Model is the loaded predictive model as seen by the service.
type Model interface {
	Ready() bool
	Source() string
	Labels() []string
	Infer(input []float64) ([]float64, error)
}

// Result is a successful prediction.
type Result struct {
	City   string
	Key    string
	Input  features.Vector
	Output []float64
	Labels []string
}

// String renders the result the way the shell prints it.
func (r Result) String() string {
	parts := make([]string, len(r.Output))
	labeled := len(r.Labels) == len(r.Output)
	for i, v := range r.Output {
		if labeled {
			parts[i] = fmt.Sprintf("%s=%.4f", r.Labels[i], v)
		} else {
			parts[i] = fmt.Sprintf("%.4f", v)
		}
	}
	return "Predicted Weather Values: [" + strings.Join(parts, ", ") + "]"
}

var validate = validator.New()

type cityQuery struct {
	City string `validate:"required"`
}

// Service joins a city name to its feature vector and runs the model on it.
// It keeps no state of its own; either dependency may be nil, meaning it
// failed to load.
type Service struct {
	features FeatureSource
	model    Model
	logger   *zap.Logger
}

// NewService creates a new Service.
func NewService(features FeatureSource, model Model, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		features: features,
		model:    model,
		logger:   logger,
	}
}

// Predict resolves city and runs the model. Errors are one of the package
// sentinels; ErrInference also wraps the model's error.
func (s *Service) Predict(city string) (Result, error) {
	if s.model == nil || !s.model.Ready() {
		return Result{}, ErrModelUnavailable
	}

	q := cityQuery{City: strings.TrimSpace(city)}
	if err := validate.Struct(q); err != nil {
		return Result{}, ErrInvalidInput
	}

	if s.features == nil {
		return Result{}, ErrFeaturesUnavailable
	}
	key := features.Normalize(q.City)
	vec, ok := s.features.Lookup(key)
	if !ok {
		s.logger.Debug("city not in feature table", zap.String("key", key))
		return Result{}, ErrCityNotFound
	}

	out, err := s.model.Infer(vec)
	if err != nil {
		s.logger.Warn("inference failed",
			zap.String("key", key),
			zap.Int("features", len(vec)),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("%w: %w", ErrInference, err)
	}

	s.logger.Debug("prediction served", zap.String("key", key), zap.Float64s("output", out))
	return Result{
		City:   q.City,
		Key:    key,
		Input:  vec,
		Output: out,
		Labels: s.model.Labels(),
	}, nil
}

// PredictWeather answers a query as text: either the rendered result or a
// fixed message for each kind of failure.
func (s *Service) PredictWeather(city string) string {
	res, err := s.Predict(city)
	if err != nil {
		return s.Message(err)
	}
	return res.String()
}

// Message renders an error returned by Predict.
func (s *Service) Message(err error) string {
	switch {
	case errors.Is(err, ErrModelUnavailable):
		source := "weather-model.zip"
		if s.model != nil && s.model.Source() != "" {
			source = s.model.Source()
		}
		return fmt.Sprintf("Error: Model is not loaded. Please check '%s'.", source)
	case errors.Is(err, ErrInvalidInput):
		return "Invalid city name."
	case errors.Is(err, ErrFeaturesUnavailable):
		return "Error: City data is not loaded."
	case errors.Is(err, ErrCityNotFound):
		return "City data not found!"
	case errors.Is(err, ErrInference):
		cause := strings.TrimPrefix(err.Error(), ErrInference.Error()+": ")
		return "Error: Prediction failed: " + cause
	default:
		return "Error: " + err.Error()
	}
}

// Outcome names the kind of a Predict error; "ok" for nil.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrFeaturesUnavailable):
		return "features_unavailable"
	case errors.Is(err, ErrCityNotFound):
		return "city_not_found"
	case errors.Is(err, ErrInference):
		return "inference_error"
	default:
		return "error"
	}
}
