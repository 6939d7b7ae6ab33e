package orgmembership

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"go.uber.org/zap"
)

const (
	missingMembershipAPIMessageConstant = "organizations client not configured"
	detachErrorTemplateConstant         = "unable to remove account %s from organization: %w"
	inviteErrorTemplateConstant         = "unable to invite account %s: %w"
	missingHandshakeMessageConstant     = "invitation response carried no handshake"
	listRootsErrorTemplateConstant      = "unable to list organization roots: %w"
	missingRootMessageConstant          = "organization has no root"
	moveAccountErrorTemplateConstant    = "unable to move account %s to OU %s: %w"
	accountDetachedLogMessageConstant   = "Account removed from organization"
	invitationSentLogMessageConstant    = "Invitation handshake sent"
	accountMovedLogMessageConstant      = "Account moved to organizational unit"
	logFieldAccountConstant             = "account_id"
	logFieldHandshakeConstant           = "handshake_id"
	logFieldOrganizationalUnitConstant  = "organizational_unit_id"
	logFieldOrganizationRootConstant    = "root_id"
)

// MembershipAPI captures the AWS Organizations operations exercised by a
// management-account client.
type MembershipAPI interface {
	RemoveAccountFromOrganization(ctx context.Context, params *organizations.RemoveAccountFromOrganizationInput, optFns ...func(*organizations.Options)) (*organizations.RemoveAccountFromOrganizationOutput, error)
	InviteAccountToOrganization(ctx context.Context, params *organizations.InviteAccountToOrganizationInput, optFns ...func(*organizations.Options)) (*organizations.InviteAccountToOrganizationOutput, error)
	ListRoots(ctx context.Context, params *organizations.ListRootsInput, optFns ...func(*organizations.Options)) (*organizations.ListRootsOutput, error)
	MoveAccount(ctx context.Context, params *organizations.MoveAccountInput, optFns ...func(*organizations.Options)) (*organizations.MoveAccountOutput, error)
}

// Client performs membership operations within one organization context.
type Client struct {
	logger        *zap.Logger
	membershipAPI MembershipAPI
}

var (
	errMissingMembershipAPI = errors.New(missingMembershipAPIMessageConstant)
	errMissingHandshake     = errors.New(missingHandshakeMessageConstant)
	errMissingRoot          = errors.New(missingRootMessageConstant)
)

// NewClient constructs a Client over an organizations API surface.
func NewClient(logger *zap.Logger, membershipAPI MembershipAPI) (*Client, error) {
	if membershipAPI == nil {
		return nil, errMissingMembershipAPI
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{logger: logger, membershipAPI: membershipAPI}, nil
}

// NewClientFromConfig constructs a Client bound to the organization the
// configuration's credentials manage.
func NewClientFromConfig(logger *zap.Logger, awsConfiguration aws.Config) (*Client, error) {
	return NewClient(logger, organizations.NewFromConfig(awsConfiguration))
}

// DetachAccount removes the account from this client's organization. The
// removal is irreversible from this organization's side.
func (client *Client) DetachAccount(executionContext context.Context, accountIdentifier string) error {
	_, detachError := client.membershipAPI.RemoveAccountFromOrganization(executionContext, &organizations.RemoveAccountFromOrganizationInput{
		AccountId: aws.String(accountIdentifier),
	})
	if detachError != nil {
		return fmt.Errorf(detachErrorTemplateConstant, accountIdentifier, Classify(detachError))
	}

	client.logger.Info(accountDetachedLogMessageConstant, zap.String(logFieldAccountConstant, accountIdentifier))
	return nil
}

// InviteAccount sends an invitation handshake to the account and returns the
// handshake identifier.
func (client *Client) InviteAccount(executionContext context.Context, accountIdentifier string) (string, error) {
	inviteOutput, inviteError := client.membershipAPI.InviteAccountToOrganization(executionContext, &organizations.InviteAccountToOrganizationInput{
		Target: &types.HandshakeParty{
			Id:   aws.String(accountIdentifier),
			Type: types.HandshakePartyTypeAccount,
		},
	})
	if inviteError != nil {
		return "", fmt.Errorf(inviteErrorTemplateConstant, accountIdentifier, Classify(inviteError))
	}
	if inviteOutput.Handshake == nil || inviteOutput.Handshake.Id == nil {
		return "", errMissingHandshake
	}

	handshakeIdentifier := aws.ToString(inviteOutput.Handshake.Id)
	client.logger.Info(
		invitationSentLogMessageConstant,
		zap.String(logFieldAccountConstant, accountIdentifier),
		zap.String(logFieldHandshakeConstant, handshakeIdentifier),
	)
	return handshakeIdentifier, nil
}

// MoveAccountToOrganizationalUnit relocates the account from the organization
// root into the destination OU.
func (client *Client) MoveAccountToOrganizationalUnit(executionContext context.Context, accountIdentifier string, organizationalUnitIdentifier string) error {
	listRootsOutput, listRootsError := client.membershipAPI.ListRoots(executionContext, &organizations.ListRootsInput{})
	if listRootsError != nil {
		return fmt.Errorf(listRootsErrorTemplateConstant, Classify(listRootsError))
	}
	if len(listRootsOutput.Roots) == 0 || listRootsOutput.Roots[0].Id == nil {
		return errMissingRoot
	}

	rootIdentifier := aws.ToString(listRootsOutput.Roots[0].Id)
	_, moveError := client.membershipAPI.MoveAccount(executionContext, &organizations.MoveAccountInput{
		AccountId:           aws.String(accountIdentifier),
		SourceParentId:      aws.String(rootIdentifier),
		DestinationParentId: aws.String(organizationalUnitIdentifier),
	})
	if moveError != nil {
		return fmt.Errorf(moveAccountErrorTemplateConstant, accountIdentifier, organizationalUnitIdentifier, Classify(moveError))
	}

	client.logger.Info(
		accountMovedLogMessageConstant,
		zap.String(logFieldAccountConstant, accountIdentifier),
		zap.String(logFieldOrganizationRootConstant, rootIdentifier),
		zap.String(logFieldOrganizationalUnitConstant, organizationalUnitIdentifier),
	)
	return nil
}
