package migration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCommandConfiguration(testInstance *testing.T) {
	testInstance.Parallel()

	defaults := DefaultCommandConfiguration()

	require.Equal(testInstance, 3, defaults.MaxFailures)
	require.Equal(testInstance, "migration_failures.log", defaults.FailureLogPath)
	require.Equal(testInstance, "OrganizationAccountAccessRole", defaults.AccessRoleName)
	require.Empty(testInstance, defaults.AccountListPath)
	require.Empty(testInstance, defaults.TargetOrganizationalUnit)
}

func TestDefaultConfigurationValuesArePrefixed(testInstance *testing.T) {
	testInstance.Parallel()

	defaultValues := DefaultConfigurationValues("tools.migrate_accounts")

	require.Equal(testInstance, 3, defaultValues["tools.migrate_accounts.max_failures"])
	require.Equal(testInstance, "migration_failures.log", defaultValues["tools.migrate_accounts.failure_log"])
	require.Equal(testInstance, "OrganizationAccountAccessRole", defaultValues["tools.migrate_accounts.role_name"])
}

func TestSanitizeTrimsValuesAndRestoresDefaults(testInstance *testing.T) {
	testInstance.Parallel()

	configuration := CommandConfiguration{
		AccountListPath:          "  accounts.csv  ",
		SourceProfile:            " source ",
		TargetProfile:            " target ",
		TargetOrganizationalUnit: " ou-dest-42 ",
		MaxFailures:              5,
		FailureLogPath:           "   ",
		AccessRoleName:           "",
	}

	sanitized := configuration.Sanitize()

	require.Equal(testInstance, "accounts.csv", sanitized.AccountListPath)
	require.Equal(testInstance, "source", sanitized.SourceProfile)
	require.Equal(testInstance, "target", sanitized.TargetProfile)
	require.Equal(testInstance, "ou-dest-42", sanitized.TargetOrganizationalUnit)
	require.Equal(testInstance, 5, sanitized.MaxFailures)
	require.Equal(testInstance, "migration_failures.log", sanitized.FailureLogPath)
	require.Equal(testInstance, "OrganizationAccountAccessRole", sanitized.AccessRoleName)
}
