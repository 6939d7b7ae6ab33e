package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type loaderTestConfiguration struct {
	Common struct {
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"common"`
	Tools struct {
		MigrateAccounts struct {
			TargetOrganizationalUnit string `mapstructure:"target_ou_id"`
			MaxFailures              int    `mapstructure:"max_failures"`
		} `mapstructure:"migrate_accounts"`
	} `mapstructure:"tools"`
}

func writeConfigurationFile(testInstance *testing.T, fileContent string) string {
	testInstance.Helper()

	configurationFilePath := filepath.Join(testInstance.TempDir(), "config.yaml")
	require.NoError(testInstance, os.WriteFile(configurationFilePath, []byte(fileContent), 0o644))
	return configurationFilePath
}

func writeConfigurationValues(testInstance *testing.T, configurationValues map[string]any) string {
	testInstance.Helper()

	encodedConfiguration, encodeError := yaml.Marshal(configurationValues)
	require.NoError(testInstance, encodeError)
	return writeConfigurationFile(testInstance, string(encodedConfiguration))
}

func TestLoadConfigurationReadsYAMLFile(testInstance *testing.T) {
	configurationFilePath := writeConfigurationValues(testInstance, map[string]any{
		"common": map[string]any{"log_level": "debug"},
		"tools": map[string]any{
			"migrate_accounts": map[string]any{
				"target_ou_id": "ou-dest-42",
				"max_failures": 5,
			},
		},
	})

	loader := NewConfigurationLoader("config", "yaml", "ORGMOVER", nil)

	var loadedValues loaderTestConfiguration
	loadedConfiguration, loadError := loader.LoadConfiguration(configurationFilePath, nil, &loadedValues)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, configurationFilePath, loadedConfiguration.ConfigFileUsed)
	require.Equal(testInstance, "debug", loadedValues.Common.LogLevel)
	require.Equal(testInstance, "ou-dest-42", loadedValues.Tools.MigrateAccounts.TargetOrganizationalUnit)
	require.Equal(testInstance, 5, loadedValues.Tools.MigrateAccounts.MaxFailures)
}

func TestLoadConfigurationAppliesDefaults(testInstance *testing.T) {
	loader := NewConfigurationLoader("config", "yaml", "ORGMOVER", nil)

	defaultValues := map[string]any{
		"common.log_level":                    "info",
		"tools.migrate_accounts.max_failures": 3,
		"tools.migrate_accounts.target_ou_id": "",
	}

	var loadedValues loaderTestConfiguration
	_, loadError := loader.LoadConfiguration("", defaultValues, &loadedValues)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "info", loadedValues.Common.LogLevel)
	require.Equal(testInstance, 3, loadedValues.Tools.MigrateAccounts.MaxFailures)
}

func TestLoadConfigurationFileOverridesDefaults(testInstance *testing.T) {
	configurationFilePath := writeConfigurationValues(testInstance, map[string]any{
		"tools": map[string]any{
			"migrate_accounts": map[string]any{"max_failures": 1},
		},
	})

	loader := NewConfigurationLoader("config", "yaml", "ORGMOVER", nil)

	defaultValues := map[string]any{"tools.migrate_accounts.max_failures": 3}

	var loadedValues loaderTestConfiguration
	_, loadError := loader.LoadConfiguration(configurationFilePath, defaultValues, &loadedValues)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, 1, loadedValues.Tools.MigrateAccounts.MaxFailures)
}

func TestLoadConfigurationHonorsEnvironmentOverrides(testInstance *testing.T) {
	testInstance.Setenv("ORGMOVER_COMMON_LOG_LEVEL", "warn")

	loader := NewConfigurationLoader("config", "yaml", "ORGMOVER", nil)

	defaultValues := map[string]any{"common.log_level": "info"}

	var loadedValues loaderTestConfiguration
	_, loadError := loader.LoadConfiguration("", defaultValues, &loadedValues)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "warn", loadedValues.Common.LogLevel)
}

func TestLoadConfigurationRejectsMalformedFile(testInstance *testing.T) {
	configurationFilePath := writeConfigurationFile(testInstance, "common: [broken")

	loader := NewConfigurationLoader("config", "yaml", "ORGMOVER", nil)

	var loadedValues loaderTestConfiguration
	_, loadError := loader.LoadConfiguration(configurationFilePath, nil, &loadedValues)
	require.Error(testInstance, loadError)
}
