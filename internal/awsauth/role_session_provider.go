package awsauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	accessRoleARNTemplateConstant         = "arn:aws:iam::%s:role/%s"
	roleSessionNameConstant               = "AccountMover"
	assumeRoleErrorTemplateConstant       = "unable to assume role %s: %w"
	missingCredentialsMessageConstant     = "assume role response carried no credentials"
	missingSTSClientMessageConstant       = "STS client not configured"
	missingAccessRoleNameMessageConstant  = "access role name not configured"
	defaultAccessRoleNameExportedConstant = "OrganizationAccountAccessRole"
)

// DefaultAccessRoleName is the conventional cross-account access role created
// by AWS Organizations in member accounts.
const DefaultAccessRoleName = defaultAccessRoleNameExportedConstant

// AssumeRoleAPI captures the STS surface the provider depends on.
type AssumeRoleAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// RoleSessionProvider assumes an account's access role and yields an
// aws.Config scoped to the temporary credentials.
type RoleSessionProvider struct {
	stsClient         AssumeRoleAPI
	baseConfiguration aws.Config
	accessRoleName    string
}

var (
	errMissingSTSClient      = errors.New(missingSTSClientMessageConstant)
	errMissingAccessRoleName = errors.New(missingAccessRoleNameMessageConstant)
	errMissingCredentials    = errors.New(missingCredentialsMessageConstant)
)

// NewRoleSessionProvider constructs a provider over the management session's
// configuration.
func NewRoleSessionProvider(baseConfiguration aws.Config, accessRoleName string) (*RoleSessionProvider, error) {
	if len(accessRoleName) == 0 {
		return nil, errMissingAccessRoleName
	}
	return &RoleSessionProvider{
		stsClient:         sts.NewFromConfig(baseConfiguration),
		baseConfiguration: baseConfiguration,
		accessRoleName:    accessRoleName,
	}, nil
}

// NewRoleSessionProviderWithClient constructs a provider with an injected STS
// client, used by tests.
func NewRoleSessionProviderWithClient(baseConfiguration aws.Config, accessRoleName string, stsClient AssumeRoleAPI) (*RoleSessionProvider, error) {
	if stsClient == nil {
		return nil, errMissingSTSClient
	}
	if len(accessRoleName) == 0 {
		return nil, errMissingAccessRoleName
	}
	return &RoleSessionProvider{
		stsClient:         stsClient,
		baseConfiguration: baseConfiguration,
		accessRoleName:    accessRoleName,
	}, nil
}

// AccountConfiguration assumes the access role in the given account and
// returns a configuration carrying the temporary credentials.
func (provider *RoleSessionProvider) AccountConfiguration(executionContext context.Context, accountIdentifier string) (aws.Config, error) {
	accessRoleARN := fmt.Sprintf(accessRoleARNTemplateConstant, accountIdentifier, provider.accessRoleName)

	assumeRoleOutput, assumeRoleError := provider.stsClient.AssumeRole(executionContext, &sts.AssumeRoleInput{
		RoleArn:         aws.String(accessRoleARN),
		RoleSessionName: aws.String(roleSessionNameConstant),
	})
	if assumeRoleError != nil {
		return aws.Config{}, fmt.Errorf(assumeRoleErrorTemplateConstant, accessRoleARN, assumeRoleError)
	}
	if assumeRoleOutput == nil || assumeRoleOutput.Credentials == nil {
		return aws.Config{}, errMissingCredentials
	}

	temporaryCredentials := assumeRoleOutput.Credentials
	accountConfiguration := provider.baseConfiguration.Copy()
	accountConfiguration.Credentials = credentials.NewStaticCredentialsProvider(
		aws.ToString(temporaryCredentials.AccessKeyId),
		aws.ToString(temporaryCredentials.SecretAccessKey),
		aws.ToString(temporaryCredentials.SessionToken),
	)

	return accountConfiguration, nil
}
