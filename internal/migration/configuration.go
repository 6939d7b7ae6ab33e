package migration

import (
	"strings"

	"github.com/orgkit/orgmover/internal/awsauth"
)

const (
	defaultMaxFailuresConstant    = 3
	defaultFailureLogPathConstant = "migration_failures.log"

	accountListConfigKeySuffixConstant    = ".csv_file"
	sourceProfileConfigKeySuffixConstant  = ".source_profile"
	targetProfileConfigKeySuffixConstant  = ".target_profile"
	targetOUConfigKeySuffixConstant       = ".target_ou_id"
	maxFailuresConfigKeySuffixConstant    = ".max_failures"
	failureLogConfigKeySuffixConstant     = ".failure_log"
	accessRoleNameConfigKeySuffixConstant = ".role_name"
)

// CommandConfiguration captures persisted configuration for account migration.
type CommandConfiguration struct {
	AccountListPath          string `mapstructure:"csv_file"`
	SourceProfile            string `mapstructure:"source_profile"`
	TargetProfile            string `mapstructure:"target_profile"`
	TargetOrganizationalUnit string `mapstructure:"target_ou_id"`
	MaxFailures              int    `mapstructure:"max_failures"`
	FailureLogPath           string `mapstructure:"failure_log"`
	AccessRoleName           string `mapstructure:"role_name"`
	EnableDebugLogging       bool   `mapstructure:"debug"`
}

// DefaultCommandConfiguration returns baseline configuration values for
// account migration.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		MaxFailures:    defaultMaxFailuresConstant,
		FailureLogPath: defaultFailureLogPathConstant,
		AccessRoleName: awsauth.DefaultAccessRoleName,
	}
}

// DefaultConfigurationValues exposes defaults keyed for the configuration
// loader under the provided prefix.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		configurationKeyPrefix + maxFailuresConfigKeySuffixConstant:    defaults.MaxFailures,
		configurationKeyPrefix + failureLogConfigKeySuffixConstant:     defaults.FailureLogPath,
		configurationKeyPrefix + accessRoleNameConfigKeySuffixConstant: defaults.AccessRoleName,
	}
}

// Sanitize trims configured values and restores defaults for cleared ones.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.AccountListPath = strings.TrimSpace(configuration.AccountListPath)
	sanitized.SourceProfile = strings.TrimSpace(configuration.SourceProfile)
	sanitized.TargetProfile = strings.TrimSpace(configuration.TargetProfile)
	sanitized.TargetOrganizationalUnit = strings.TrimSpace(configuration.TargetOrganizationalUnit)
	sanitized.FailureLogPath = strings.TrimSpace(configuration.FailureLogPath)
	sanitized.AccessRoleName = strings.TrimSpace(configuration.AccessRoleName)
	if len(sanitized.FailureLogPath) == 0 {
		sanitized.FailureLogPath = defaultFailureLogPathConstant
	}
	if len(sanitized.AccessRoleName) == 0 {
		sanitized.AccessRoleName = awsauth.DefaultAccessRoleName
	}
	return sanitized
}
