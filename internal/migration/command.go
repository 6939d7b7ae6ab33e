package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/orgkit/orgmover/internal/accounts"
	"github.com/orgkit/orgmover/internal/awsauth"
	"github.com/orgkit/orgmover/internal/orgmembership"
	"github.com/orgkit/orgmover/internal/trustpolicy"
)

const (
	commandUseConstant              = "migrate-accounts"
	commandShortDescriptionConstant = "Move accounts from the source organization into the target organization's OU"
	commandLongDescriptionConstant  = "migrate-accounts drives each listed account through trust-policy preparation, removal from the source organization, invitation into the target organization, and placement in the destination OU, halting the batch once the failure ceiling is reached."

	accountListFlagNameConstant    = "csv-file"
	accountListFlagUsageConstant   = "Path to the CSV file listing account ids under an account_id header"
	sourceProfileFlagNameConstant  = "source-profile"
	sourceProfileFlagUsageConstant = "AWS shared-config profile for the source organization management account"
	targetProfileFlagNameConstant  = "target-profile"
	targetProfileFlagUsageConstant = "AWS shared-config profile for the target organization management account"
	targetOUFlagNameConstant       = "target-ou-id"
	targetOUFlagUsageConstant      = "Destination organizational unit in the target organization"
	maxFailuresFlagNameConstant    = "max-failures"
	maxFailuresFlagUsageConstant   = "Number of failed migrations after which the batch stops"
	failureLogFlagNameConstant     = "failure-log"
	failureLogFlagUsageConstant    = "Append-only file receiving one JSON record per failed account"
	roleNameFlagNameConstant       = "role-name"
	roleNameFlagUsageConstant      = "Cross-account access role assumed inside each account"
	resumeStepFlagNameConstant     = "resume-from-step"
	resumeStepFlagUsageConstant    = "Resume a single account at this step (1-6) instead of starting over"

	accountListFieldNameConstant   = "csv_file"
	sourceProfileFieldNameConstant = "source_profile"
	targetProfileFieldNameConstant = "target_profile"

	resumeRequiresSingleAccountMessage  = "--resume-from-step requires an account list with exactly one account"
	sessionLoadErrorTemplateConstant    = "unable to load AWS configuration for profile %s: %w"
	callerIdentityErrorTemplateConstant = "unable to resolve management account for profile %s: %w"
	batchFailuresTemplateConstant       = "batch completed with %d failed accounts (%d orphaned); see %s"
	managementPrincipalTemplateConstant = "arn:aws:iam::%s:root"
	summaryLogMessageConstant           = "Migration batch summary"
	logFieldSucceededConstant           = "succeeded"
	logFieldFailedConstant              = "failed"
	logFieldNotAttemptedConstant        = "not_attempted"
	logFieldBreakerTrippedConstant      = "breaker_tripped"
	logFieldFailedAccountsConstant      = "failed_accounts"
	logFieldOrphanedAccountsConstant    = "orphaned_accounts"
	logFieldFailureLogPathConstant      = "failure_log"
	logFieldSummaryRunConstant          = "run_id"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// AccountListProvider supplies the ordered account identifiers for a batch.
type AccountListProvider interface {
	LoadAccountIdentifiers(accountListPath string) ([]string, error)
}

// SessionLoader resolves an AWS configuration for a shared-config profile.
type SessionLoader func(executionContext context.Context, profileName string) (aws.Config, error)

// CallerIdentityResolver returns the management account id a configuration's
// credentials belong to.
type CallerIdentityResolver func(executionContext context.Context, awsConfiguration aws.Config) (string, error)

// BatchRunner executes an orchestrated batch run.
type BatchRunner interface {
	Run(executionContext context.Context, accountIdentifiers []string, startStep Step) (BatchSummary, error)
}

// Environment carries the resolved organizational sessions for a run.
type Environment struct {
	SourceConfiguration       aws.Config
	TargetConfiguration       aws.Config
	SourceManagementAccountID string
	TargetManagementAccountID string
}

// BatchRunnerProvider builds the batch runner from the resolved environment.
// The returned closer releases run resources such as the failure log.
type BatchRunnerProvider func(logger *zap.Logger, options commandOptions, environment Environment) (BatchRunner, io.Closer, error)

type commandOptions struct {
	accountListPath          string
	sourceProfile            string
	targetProfile            string
	targetOrganizationalUnit string
	maxFailures              int
	failureLogPath           string
	accessRoleName           string
	startStep                Step
}

// CommandBuilder assembles the migrate-accounts Cobra command.
type CommandBuilder struct {
	LoggerProvider         LoggerProvider
	ConfigurationProvider  func() CommandConfiguration
	AccountListProvider    AccountListProvider
	SessionLoader          SessionLoader
	CallerIdentityResolver CallerIdentityResolver
	BatchRunnerProvider    BatchRunnerProvider
}

// Build constructs the migrate-accounts command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runMigration,
	}

	defaults := DefaultCommandConfiguration()
	command.Flags().String(accountListFlagNameConstant, "", accountListFlagUsageConstant)
	command.Flags().String(sourceProfileFlagNameConstant, "", sourceProfileFlagUsageConstant)
	command.Flags().String(targetProfileFlagNameConstant, "", targetProfileFlagUsageConstant)
	command.Flags().String(targetOUFlagNameConstant, "", targetOUFlagUsageConstant)
	command.Flags().Int(maxFailuresFlagNameConstant, defaults.MaxFailures, maxFailuresFlagUsageConstant)
	command.Flags().String(failureLogFlagNameConstant, defaults.FailureLogPath, failureLogFlagUsageConstant)
	command.Flags().String(roleNameFlagNameConstant, defaults.AccessRoleName, roleNameFlagUsageConstant)
	command.Flags().Int(resumeStepFlagNameConstant, int(FirstStep), resumeStepFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) runMigration(command *cobra.Command, _ []string) error {
	options, optionsError := builder.parseOptions(command.Flags())
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger()

	accountListProvider := builder.resolveAccountListProvider(logger)
	accountIdentifiers, accountListError := accountListProvider.LoadAccountIdentifiers(options.accountListPath)
	if accountListError != nil {
		return accountListError
	}

	if options.startStep != FirstStep && len(accountIdentifiers) != 1 {
		return errors.New(resumeRequiresSingleAccountMessage)
	}

	environment, environmentError := builder.resolveEnvironment(command.Context(), options)
	if environmentError != nil {
		return environmentError
	}

	batchRunnerProvider := builder.resolveBatchRunnerProvider()
	batchRunner, runnerCloser, runnerError := batchRunnerProvider(logger, options, environment)
	if runnerError != nil {
		return runnerError
	}
	if runnerCloser != nil {
		defer runnerCloser.Close()
	}

	summary, runError := batchRunner.Run(command.Context(), accountIdentifiers, options.startStep)
	builder.logSummary(logger, options, summary)
	if runError != nil {
		return runError
	}

	if summary.FailedCount > 0 {
		return fmt.Errorf(batchFailuresTemplateConstant, summary.FailedCount, len(summary.OrphanedAccountIdentifiers()), options.failureLogPath)
	}
	return nil
}

func (builder *CommandBuilder) parseOptions(commandFlags *pflag.FlagSet) (commandOptions, error) {
	configuration := builder.resolveConfiguration().Sanitize()

	options := commandOptions{
		accountListPath:          configuration.AccountListPath,
		sourceProfile:            configuration.SourceProfile,
		targetProfile:            configuration.TargetProfile,
		targetOrganizationalUnit: configuration.TargetOrganizationalUnit,
		maxFailures:              configuration.MaxFailures,
		failureLogPath:           configuration.FailureLogPath,
		accessRoleName:           configuration.AccessRoleName,
		startStep:                FirstStep,
	}

	if commandFlags.Changed(accountListFlagNameConstant) {
		options.accountListPath, _ = commandFlags.GetString(accountListFlagNameConstant)
	}
	if commandFlags.Changed(sourceProfileFlagNameConstant) {
		options.sourceProfile, _ = commandFlags.GetString(sourceProfileFlagNameConstant)
	}
	if commandFlags.Changed(targetProfileFlagNameConstant) {
		options.targetProfile, _ = commandFlags.GetString(targetProfileFlagNameConstant)
	}
	if commandFlags.Changed(targetOUFlagNameConstant) {
		options.targetOrganizationalUnit, _ = commandFlags.GetString(targetOUFlagNameConstant)
	}
	if commandFlags.Changed(maxFailuresFlagNameConstant) {
		options.maxFailures, _ = commandFlags.GetInt(maxFailuresFlagNameConstant)
	}
	if commandFlags.Changed(failureLogFlagNameConstant) {
		options.failureLogPath, _ = commandFlags.GetString(failureLogFlagNameConstant)
	}
	if commandFlags.Changed(roleNameFlagNameConstant) {
		options.accessRoleName, _ = commandFlags.GetString(roleNameFlagNameConstant)
	}
	if commandFlags.Changed(resumeStepFlagNameConstant) {
		resumeStepNumber, _ := commandFlags.GetInt(resumeStepFlagNameConstant)
		parsedStep, parseError := ParseStep(resumeStepNumber)
		if parseError != nil {
			return commandOptions{}, parseError
		}
		options.startStep = parsedStep
	}

	if len(strings.TrimSpace(options.accountListPath)) == 0 {
		return commandOptions{}, InvalidInputError{FieldName: accountListFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(options.sourceProfile)) == 0 {
		return commandOptions{}, InvalidInputError{FieldName: sourceProfileFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(options.targetProfile)) == 0 {
		return commandOptions{}, InvalidInputError{FieldName: targetProfileFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(options.targetOrganizationalUnit)) == 0 {
		return commandOptions{}, InvalidInputError{FieldName: targetOUFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if options.maxFailures < 0 {
		return commandOptions{}, errNegativeMaxFailures
	}

	return options, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider != nil {
		if logger := builder.LoggerProvider(); logger != nil {
			return logger
		}
	}
	return zap.NewNop()
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider != nil {
		return builder.ConfigurationProvider()
	}
	return DefaultCommandConfiguration()
}

func (builder *CommandBuilder) resolveAccountListProvider(logger *zap.Logger) AccountListProvider {
	if builder.AccountListProvider != nil {
		return builder.AccountListProvider
	}
	return accounts.NewCSVProvider(logger)
}

func (builder *CommandBuilder) resolveEnvironment(executionContext context.Context, options commandOptions) (Environment, error) {
	sessionLoader := builder.SessionLoader
	if sessionLoader == nil {
		sessionLoader = loadProfileConfiguration
	}
	identityResolver := builder.CallerIdentityResolver
	if identityResolver == nil {
		identityResolver = resolveCallerAccount
	}

	sourceConfiguration, sourceLoadError := sessionLoader(executionContext, options.sourceProfile)
	if sourceLoadError != nil {
		return Environment{}, fmt.Errorf(sessionLoadErrorTemplateConstant, options.sourceProfile, sourceLoadError)
	}
	targetConfiguration, targetLoadError := sessionLoader(executionContext, options.targetProfile)
	if targetLoadError != nil {
		return Environment{}, fmt.Errorf(sessionLoadErrorTemplateConstant, options.targetProfile, targetLoadError)
	}

	sourceManagementAccountID, sourceIdentityError := identityResolver(executionContext, sourceConfiguration)
	if sourceIdentityError != nil {
		return Environment{}, fmt.Errorf(callerIdentityErrorTemplateConstant, options.sourceProfile, sourceIdentityError)
	}
	targetManagementAccountID, targetIdentityError := identityResolver(executionContext, targetConfiguration)
	if targetIdentityError != nil {
		return Environment{}, fmt.Errorf(callerIdentityErrorTemplateConstant, options.targetProfile, targetIdentityError)
	}

	return Environment{
		SourceConfiguration:       sourceConfiguration,
		TargetConfiguration:       targetConfiguration,
		SourceManagementAccountID: sourceManagementAccountID,
		TargetManagementAccountID: targetManagementAccountID,
	}, nil
}

func (builder *CommandBuilder) resolveBatchRunnerProvider() BatchRunnerProvider {
	if builder.BatchRunnerProvider != nil {
		return builder.BatchRunnerProvider
	}
	return buildDefaultBatchRunner
}

func (builder *CommandBuilder) logSummary(logger *zap.Logger, options commandOptions, summary BatchSummary) {
	logger.Info(
		summaryLogMessageConstant,
		zap.String(logFieldSummaryRunConstant, summary.RunID),
		zap.Int(logFieldSucceededConstant, summary.SucceededCount),
		zap.Int(logFieldFailedConstant, summary.FailedCount),
		zap.Int(logFieldNotAttemptedConstant, summary.NotAttemptedCount),
		zap.Bool(logFieldBreakerTrippedConstant, summary.BreakerTripped),
		zap.Strings(logFieldFailedAccountsConstant, summary.FailedAccountIdentifiers()),
		zap.Strings(logFieldOrphanedAccountsConstant, summary.OrphanedAccountIdentifiers()),
		zap.String(logFieldFailureLogPathConstant, options.failureLogPath),
	)
}

func loadProfileConfiguration(executionContext context.Context, profileName string) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(executionContext, awsconfig.WithSharedConfigProfile(profileName))
}

func resolveCallerAccount(executionContext context.Context, awsConfiguration aws.Config) (string, error) {
	identityOutput, identityError := sts.NewFromConfig(awsConfiguration).GetCallerIdentity(executionContext, &sts.GetCallerIdentityInput{})
	if identityError != nil {
		return "", identityError
	}
	return aws.ToString(identityOutput.Account), nil
}

func buildDefaultBatchRunner(logger *zap.Logger, options commandOptions, environment Environment) (BatchRunner, io.Closer, error) {
	roleSessionProvider, providerError := awsauth.NewRoleSessionProvider(environment.SourceConfiguration, options.accessRoleName)
	if providerError != nil {
		return nil, nil, providerError
	}

	trustEditor, editorError := trustpolicy.NewRoleEditor(logger, trustpolicy.NewAssumedRoleClientFactory(roleSessionProvider), options.accessRoleName)
	if editorError != nil {
		return nil, nil, editorError
	}

	sourceClient, sourceClientError := orgmembership.NewClientFromConfig(logger, environment.SourceConfiguration)
	if sourceClientError != nil {
		return nil, nil, sourceClientError
	}
	targetClient, targetClientError := orgmembership.NewClientFromConfig(logger, environment.TargetConfiguration)
	if targetClientError != nil {
		return nil, nil, targetClientError
	}

	invitationAcceptor, acceptorError := orgmembership.NewInvitationAcceptor(logger, orgmembership.NewAssumedAccountClientFactory(roleSessionProvider))
	if acceptorError != nil {
		return nil, nil, acceptorError
	}

	migrationService, serviceError := NewService(
		ServiceDependencies{
			Logger:             logger,
			TrustEditor:        trustEditor,
			SourceOrganization: sourceClient,
			TargetOrganization: targetClient,
			InvitationAcceptor: invitationAcceptor,
		},
		ServiceOptions{
			SourcePrincipalARN:       fmt.Sprintf(managementPrincipalTemplateConstant, environment.SourceManagementAccountID),
			TargetPrincipalARN:       fmt.Sprintf(managementPrincipalTemplateConstant, environment.TargetManagementAccountID),
			TargetOrganizationalUnit: options.targetOrganizationalUnit,
		},
	)
	if serviceError != nil {
		return nil, nil, serviceError
	}

	failureSink, sinkError := NewFileFailureSink(options.failureLogPath)
	if sinkError != nil {
		return nil, nil, sinkError
	}

	orchestrator, orchestratorError := NewOrchestrator(
		OrchestratorDependencies{Logger: logger, TaskRunner: migrationService, FailureSink: failureSink},
		options.maxFailures,
	)
	if orchestratorError != nil {
		failureSink.Close()
		return nil, nil, orchestratorError
	}

	return orchestrator, failureSink, nil
}
