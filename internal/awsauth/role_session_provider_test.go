package awsauth

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/stretchr/testify/require"
)

type stubAssumeRoleAPI struct {
	assumeRoleError error
	withCredentials bool
	requestedInputs []*sts.AssumeRoleInput
}

func (api *stubAssumeRoleAPI) AssumeRole(_ context.Context, params *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	api.requestedInputs = append(api.requestedInputs, params)
	if api.assumeRoleError != nil {
		return nil, api.assumeRoleError
	}
	if !api.withCredentials {
		return &sts.AssumeRoleOutput{}, nil
	}
	return &sts.AssumeRoleOutput{Credentials: &ststypes.Credentials{
		AccessKeyId:     aws.String("AKIATESTKEY"),
		SecretAccessKey: aws.String("test-secret"),
		SessionToken:    aws.String("test-token"),
	}}, nil
}

func TestNewRoleSessionProviderRequiresRoleName(testInstance *testing.T) {
	testInstance.Parallel()

	_, providerError := NewRoleSessionProvider(aws.Config{}, "")
	require.Error(testInstance, providerError)

	_, clientProviderError := NewRoleSessionProviderWithClient(aws.Config{}, "", &stubAssumeRoleAPI{})
	require.Error(testInstance, clientProviderError)

	_, missingClientError := NewRoleSessionProviderWithClient(aws.Config{}, DefaultAccessRoleName, nil)
	require.Error(testInstance, missingClientError)
}

func TestAccountConfigurationAssumesAccessRole(testInstance *testing.T) {
	testInstance.Parallel()

	stsClient := &stubAssumeRoleAPI{withCredentials: true}
	baseConfiguration := aws.Config{Region: "us-east-1"}
	provider, providerError := NewRoleSessionProviderWithClient(baseConfiguration, DefaultAccessRoleName, stsClient)
	require.NoError(testInstance, providerError)

	accountConfiguration, configurationError := provider.AccountConfiguration(context.Background(), "111122223333")
	require.NoError(testInstance, configurationError)

	require.Len(testInstance, stsClient.requestedInputs, 1)
	require.Equal(testInstance, "arn:aws:iam::111122223333:role/OrganizationAccountAccessRole", aws.ToString(stsClient.requestedInputs[0].RoleArn))
	require.Equal(testInstance, "AccountMover", aws.ToString(stsClient.requestedInputs[0].RoleSessionName))

	require.Equal(testInstance, "us-east-1", accountConfiguration.Region)
	retrievedCredentials, retrieveError := accountConfiguration.Credentials.Retrieve(context.Background())
	require.NoError(testInstance, retrieveError)
	require.Equal(testInstance, "AKIATESTKEY", retrievedCredentials.AccessKeyID)
	require.Equal(testInstance, "test-secret", retrievedCredentials.SecretAccessKey)
	require.Equal(testInstance, "test-token", retrievedCredentials.SessionToken)
}

func TestAccountConfigurationUsesConfiguredRoleName(testInstance *testing.T) {
	testInstance.Parallel()

	stsClient := &stubAssumeRoleAPI{withCredentials: true}
	provider, providerError := NewRoleSessionProviderWithClient(aws.Config{}, "CustomAccessRole", stsClient)
	require.NoError(testInstance, providerError)

	_, configurationError := provider.AccountConfiguration(context.Background(), "444455556666")
	require.NoError(testInstance, configurationError)
	require.Equal(testInstance, "arn:aws:iam::444455556666:role/CustomAccessRole", aws.ToString(stsClient.requestedInputs[0].RoleArn))
}

func TestAccountConfigurationWrapsAssumeRoleFailures(testInstance *testing.T) {
	testInstance.Parallel()

	stsClient := &stubAssumeRoleAPI{assumeRoleError: errors.New("access denied")}
	provider, providerError := NewRoleSessionProviderWithClient(aws.Config{}, DefaultAccessRoleName, stsClient)
	require.NoError(testInstance, providerError)

	_, configurationError := provider.AccountConfiguration(context.Background(), "111122223333")
	require.Error(testInstance, configurationError)
	require.Contains(testInstance, configurationError.Error(), "arn:aws:iam::111122223333:role/OrganizationAccountAccessRole")
}

func TestAccountConfigurationRequiresCredentialsInResponse(testInstance *testing.T) {
	testInstance.Parallel()

	stsClient := &stubAssumeRoleAPI{}
	provider, providerError := NewRoleSessionProviderWithClient(aws.Config{}, DefaultAccessRoleName, stsClient)
	require.NoError(testInstance, providerError)

	_, configurationError := provider.AccountConfiguration(context.Background(), "111122223333")
	require.ErrorIs(testInstance, configurationError, errMissingCredentials)
}
