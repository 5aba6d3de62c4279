package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/blobgc/pkg/blobstore"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for errors.
//
// Struct tags are checked first, then the rules that span several fields or
// need package level knowledge (database pool sizing, phase names, sharding).
// Validate never modifies cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return errors.New("telemetry.profiling.endpoint is required when profiling is enabled")
	}
	if cfg.Metrics.PushGateway != "" && !cfg.Metrics.Enabled {
		return errors.New("metrics.push_gateway requires metrics.enabled")
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if cfg.Storage.Remote.Enabled {
		if _, err := blobstore.NewRangeSharder(cfg.Storage.Remote.ContainerPrefix, cfg.Storage.Remote.ContainerSize); err != nil {
			return fmt.Errorf("storage.remote: %w", err)
		}
	}

	if err := cfg.GC.Validate(); err != nil {
		return fmt.Errorf("gc: %w", err)
	}

	return nil
}

// formatValidationError turns validator errors into one line per field,
// keeping the failing tag so callers can tell the rule apart.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s=%s' (value %v)", field, fe.Tag(), fe.Param(), fe.Value()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed '%s'", field, fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
