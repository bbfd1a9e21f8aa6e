// Package config loads the view configuration of wardflow-watch.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/wardflow/pkg/changes"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "WARDFLOW"

var ErrInvalidConfig = errors.New("invalid watch configuration")

// WatchConfig lists the views to open for one tenant.
type WatchConfig struct {
	TenantID    string        `mapstructure:"tenant_id"    validate:"required"`
	LogInterval time.Duration `mapstructure:"log_interval"`
	Views       []ViewConfig  `mapstructure:"views"        validate:"required,min=1,dive"`
}

// ViewConfig is one named view. Kind selects a built-in view; "custom" uses Descriptors as written.
type ViewConfig struct {
	Name        string                          `mapstructure:"name"         validate:"required"`
	Kind        string                          `mapstructure:"kind"         validate:"required,oneof=admin patient role custom"`
	EntityTypes []string                        `mapstructure:"entity_types" validate:"required_if=Kind admin"`
	PatientID   string                          `mapstructure:"patient_id"   validate:"required_if=Kind patient"`
	Role        string                          `mapstructure:"role"         validate:"required_if=Kind role"`
	Descriptors []models.SubscriptionDescriptor `mapstructure:"descriptors"  validate:"required_if=Kind custom,dive"`
}

func (v ViewConfig) Build() []models.SubscriptionDescriptor {
	switch v.Kind {
	case "admin":
		return changes.AdminView(v.EntityTypes...)
	case "patient":
		return changes.PatientView(v.PatientID)
	case "role":
		return changes.RoleView(v.Role)
	default:
		return v.Descriptors
	}
}

// LoadWatchConfig reads a YAML file and applies WARDFLOW_ environment overrides, for example
// WARDFLOW_TENANT_ID. Filter keys keep their dots since "::" is used as the key delimiter,
// but viper lowercases every key.
func LoadWatchConfig(path string) (*WatchConfig, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("::", "_"))
	v.AutomaticEnv()
	v.SetDefault("log_interval", 30*time.Second)

	for _, key := range []string{"tenant_id", "log_interval"} {
		err := v.BindEnv(key)
		if err != nil {
			return nil, err
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config WatchConfig

	err = v.Unmarshal(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	err = validator.New(validator.WithRequiredStructEnabled()).Struct(config)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	return &config, nil
}
