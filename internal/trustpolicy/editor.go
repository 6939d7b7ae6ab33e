package trustpolicy

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"go.uber.org/zap"

	"github.com/orgkit/orgmover/internal/awsauth"
)

const (
	missingRoleClientFactoryMessageConstant = "role client factory not configured"
	missingRoleNameMessageConstant          = "access role name not configured"
	roleClientErrorTemplateConstant         = "unable to build IAM client for account %s: %w"
	getRoleErrorTemplateConstant            = "unable to read role %s: %w"
	emptyPolicyDocumentMessageConstant      = "role carried no assume-role policy document"
	updatePolicyErrorTemplateConstant       = "unable to update trust policy for role %s: %w"
	trustAlreadyPresentLogMessageConstant   = "Trust statement already present"
	trustAddedLogMessageConstant            = "Trust statement added"
	trustAbsentLogMessageConstant           = "Trust statement already absent"
	trustRemovedLogMessageConstant          = "Trust statement removed"
	logFieldAccountIdentifierConstant       = "account_id"
	logFieldPrincipalARNConstant            = "principal_arn"
	logFieldRoleNameConstant                = "role_name"
)

// RoleAPI captures the IAM surface the editor depends on.
type RoleAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	UpdateAssumeRolePolicy(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error)
}

// RoleClientFactory yields an IAM client scoped to an account's access role.
type RoleClientFactory interface {
	RoleClient(executionContext context.Context, accountIdentifier string) (RoleAPI, error)
}

// AssumedRoleClientFactory builds IAM clients from assumed-role credentials.
type AssumedRoleClientFactory struct {
	sessionProvider *awsauth.RoleSessionProvider
}

// NewAssumedRoleClientFactory constructs a factory over the session provider.
func NewAssumedRoleClientFactory(sessionProvider *awsauth.RoleSessionProvider) *AssumedRoleClientFactory {
	return &AssumedRoleClientFactory{sessionProvider: sessionProvider}
}

// RoleClient assumes the account's access role and returns an IAM client
// bound to the temporary credentials.
func (factory *AssumedRoleClientFactory) RoleClient(executionContext context.Context, accountIdentifier string) (RoleAPI, error) {
	accountConfiguration, configurationError := factory.sessionProvider.AccountConfiguration(executionContext, accountIdentifier)
	if configurationError != nil {
		return nil, configurationError
	}
	return iam.NewFromConfig(accountConfiguration), nil
}

// RoleEditor reads and rewrites an account access role's trust policy.
type RoleEditor struct {
	logger        *zap.Logger
	clientFactory RoleClientFactory
	roleName      string
}

var (
	errMissingRoleClientFactory = errors.New(missingRoleClientFactoryMessageConstant)
	errMissingRoleName          = errors.New(missingRoleNameMessageConstant)
	errEmptyPolicyDocument      = errors.New(emptyPolicyDocumentMessageConstant)
)

// NewRoleEditor constructs a RoleEditor for the named access role.
func NewRoleEditor(logger *zap.Logger, clientFactory RoleClientFactory, roleName string) (*RoleEditor, error) {
	if clientFactory == nil {
		return nil, errMissingRoleClientFactory
	}
	if len(roleName) == 0 {
		return nil, errMissingRoleName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleEditor{logger: logger, clientFactory: clientFactory, roleName: roleName}, nil
}

// EnsureAssumeRoleTrust appends an assume-role trust statement for the
// principal unless one already exists. It reports whether the policy changed.
func (editor *RoleEditor) EnsureAssumeRoleTrust(executionContext context.Context, accountIdentifier string, principalARN string) (bool, error) {
	roleClient, currentDocument, fetchError := editor.fetchPolicyDocument(executionContext, accountIdentifier)
	if fetchError != nil {
		return false, fetchError
	}

	updatedDocument, changed, transformError := currentDocument.WithAssumeRoleTrust(principalARN)
	if transformError != nil {
		return false, transformError
	}
	if !changed {
		editor.logger.Info(
			trustAlreadyPresentLogMessageConstant,
			zap.String(logFieldAccountIdentifierConstant, accountIdentifier),
			zap.String(logFieldPrincipalARNConstant, principalARN),
			zap.String(logFieldRoleNameConstant, editor.roleName),
		)
		return false, nil
	}

	if persistError := editor.persistPolicyDocument(executionContext, roleClient, updatedDocument); persistError != nil {
		return false, persistError
	}

	editor.logger.Info(
		trustAddedLogMessageConstant,
		zap.String(logFieldAccountIdentifierConstant, accountIdentifier),
		zap.String(logFieldPrincipalARNConstant, principalARN),
		zap.String(logFieldRoleNameConstant, editor.roleName),
	)
	return true, nil
}

// RemoveAssumeRoleTrust strips the principal's assume-role trust while
// preserving every unrelated statement. It reports whether the policy changed.
func (editor *RoleEditor) RemoveAssumeRoleTrust(executionContext context.Context, accountIdentifier string, principalARN string) (bool, error) {
	roleClient, currentDocument, fetchError := editor.fetchPolicyDocument(executionContext, accountIdentifier)
	if fetchError != nil {
		return false, fetchError
	}

	updatedDocument, changed, transformError := currentDocument.WithoutAssumeRoleTrust(principalARN)
	if transformError != nil {
		return false, transformError
	}
	if !changed {
		editor.logger.Info(
			trustAbsentLogMessageConstant,
			zap.String(logFieldAccountIdentifierConstant, accountIdentifier),
			zap.String(logFieldPrincipalARNConstant, principalARN),
			zap.String(logFieldRoleNameConstant, editor.roleName),
		)
		return false, nil
	}

	if persistError := editor.persistPolicyDocument(executionContext, roleClient, updatedDocument); persistError != nil {
		return false, persistError
	}

	editor.logger.Info(
		trustRemovedLogMessageConstant,
		zap.String(logFieldAccountIdentifierConstant, accountIdentifier),
		zap.String(logFieldPrincipalARNConstant, principalARN),
		zap.String(logFieldRoleNameConstant, editor.roleName),
	)
	return true, nil
}

func (editor *RoleEditor) fetchPolicyDocument(executionContext context.Context, accountIdentifier string) (RoleAPI, Document, error) {
	roleClient, clientError := editor.clientFactory.RoleClient(executionContext, accountIdentifier)
	if clientError != nil {
		return nil, Document{}, fmt.Errorf(roleClientErrorTemplateConstant, accountIdentifier, clientError)
	}

	getRoleOutput, getRoleError := roleClient.GetRole(executionContext, &iam.GetRoleInput{RoleName: aws.String(editor.roleName)})
	if getRoleError != nil {
		return nil, Document{}, fmt.Errorf(getRoleErrorTemplateConstant, editor.roleName, getRoleError)
	}
	if getRoleOutput.Role == nil || getRoleOutput.Role.AssumeRolePolicyDocument == nil {
		return nil, Document{}, errEmptyPolicyDocument
	}

	currentDocument, parseError := ParseDocument(aws.ToString(getRoleOutput.Role.AssumeRolePolicyDocument))
	if parseError != nil {
		return nil, Document{}, parseError
	}

	return roleClient, currentDocument, nil
}

func (editor *RoleEditor) persistPolicyDocument(executionContext context.Context, roleClient RoleAPI, updatedDocument Document) error {
	serializedDocument, serializeError := updatedDocument.Serialize()
	if serializeError != nil {
		return serializeError
	}

	_, updateError := roleClient.UpdateAssumeRolePolicy(executionContext, &iam.UpdateAssumeRolePolicyInput{
		RoleName:       aws.String(editor.roleName),
		PolicyDocument: aws.String(serializedDocument),
	})
	if updateError != nil {
		return fmt.Errorf(updatePolicyErrorTemplateConstant, editor.roleName, updateError)
	}
	return nil
}
