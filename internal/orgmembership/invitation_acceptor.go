package orgmembership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"go.uber.org/zap"

	"github.com/orgkit/orgmover/internal/awsauth"
)

const (
	defaultHandshakePollAttemptsConstant  = 10
	defaultHandshakePollIntervalConstant  = 10 * time.Second
	missingAccountFactoryMessageConstant  = "account client factory not configured"
	accountClientErrorTemplateConstant    = "unable to build organizations client for account %s: %w"
	listHandshakesErrorTemplateConstant   = "unable to list handshakes for account %s: %w"
	handshakeNotVisibleTemplateConstant   = "handshake %s not visible to account %s after %d attempts"
	noOpenInvitationTemplateConstant      = "no open invitation handshake visible to account %s after %d attempts"
	acceptHandshakeErrorTemplateConstant  = "unable to accept handshake %s: %w"
	waitingForHandshakeLogMessageConstant = "Waiting for handshake to propagate"
	invitationAcceptedLogMessageConstant  = "Invitation accepted"
	logFieldPollAttemptConstant           = "attempt"
	logFieldPollAttemptLimitConstant      = "attempt_limit"
)

// AccountMembershipAPI captures the handshake operations performed with the
// account's own credentials.
type AccountMembershipAPI interface {
	ListHandshakesForAccount(ctx context.Context, params *organizations.ListHandshakesForAccountInput, optFns ...func(*organizations.Options)) (*organizations.ListHandshakesForAccountOutput, error)
	AcceptHandshake(ctx context.Context, params *organizations.AcceptHandshakeInput, optFns ...func(*organizations.Options)) (*organizations.AcceptHandshakeOutput, error)
}

// AccountClientFactory yields an organizations client scoped to an account's
// own assumed-role credentials.
type AccountClientFactory interface {
	MembershipClient(executionContext context.Context, accountIdentifier string) (AccountMembershipAPI, error)
}

// AssumedAccountClientFactory builds account-scoped organizations clients from
// assumed-role credentials.
type AssumedAccountClientFactory struct {
	sessionProvider *awsauth.RoleSessionProvider
}

// NewAssumedAccountClientFactory constructs a factory over the session provider.
func NewAssumedAccountClientFactory(sessionProvider *awsauth.RoleSessionProvider) *AssumedAccountClientFactory {
	return &AssumedAccountClientFactory{sessionProvider: sessionProvider}
}

// MembershipClient assumes the account's access role and returns an
// organizations client bound to the temporary credentials.
func (factory *AssumedAccountClientFactory) MembershipClient(executionContext context.Context, accountIdentifier string) (AccountMembershipAPI, error) {
	accountConfiguration, configurationError := factory.sessionProvider.AccountConfiguration(executionContext, accountIdentifier)
	if configurationError != nil {
		return nil, configurationError
	}
	return organizations.NewFromConfig(accountConfiguration), nil
}

// InvitationAcceptor accepts a pending invitation handshake on behalf of the
// invited account, waiting for the handshake to propagate first.
type InvitationAcceptor struct {
	logger        *zap.Logger
	clientFactory AccountClientFactory
	pollAttempts  int
	pollInterval  time.Duration
}

var errMissingAccountFactory = errors.New(missingAccountFactoryMessageConstant)

// NewInvitationAcceptor constructs an acceptor with default propagation
// polling.
func NewInvitationAcceptor(logger *zap.Logger, clientFactory AccountClientFactory) (*InvitationAcceptor, error) {
	if clientFactory == nil {
		return nil, errMissingAccountFactory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvitationAcceptor{
		logger:        logger,
		clientFactory: clientFactory,
		pollAttempts:  defaultHandshakePollAttemptsConstant,
		pollInterval:  defaultHandshakePollIntervalConstant,
	}, nil
}

// SetPropagationPolicy overrides handshake propagation polling, primarily for
// tests.
func (acceptor *InvitationAcceptor) SetPropagationPolicy(pollAttempts int, pollInterval time.Duration) {
	if pollAttempts > 0 {
		acceptor.pollAttempts = pollAttempts
	}
	if pollInterval >= 0 {
		acceptor.pollInterval = pollInterval
	}
}

// AcceptInvitation accepts the identified handshake using the account's own
// credentials. An empty handshake identifier accepts the account's single open
// invitation, which supports resuming a run whose handshake reference was
// lost.
func (acceptor *InvitationAcceptor) AcceptInvitation(executionContext context.Context, accountIdentifier string, handshakeIdentifier string) error {
	accountClient, clientError := acceptor.clientFactory.MembershipClient(executionContext, accountIdentifier)
	if clientError != nil {
		return fmt.Errorf(accountClientErrorTemplateConstant, accountIdentifier, clientError)
	}

	resolvedHandshakeIdentifier, resolveError := acceptor.awaitHandshake(executionContext, accountClient, accountIdentifier, handshakeIdentifier)
	if resolveError != nil {
		return resolveError
	}

	_, acceptError := accountClient.AcceptHandshake(executionContext, &organizations.AcceptHandshakeInput{
		HandshakeId: aws.String(resolvedHandshakeIdentifier),
	})
	if acceptError != nil {
		return fmt.Errorf(acceptHandshakeErrorTemplateConstant, resolvedHandshakeIdentifier, Classify(acceptError))
	}

	acceptor.logger.Info(
		invitationAcceptedLogMessageConstant,
		zap.String(logFieldAccountConstant, accountIdentifier),
		zap.String(logFieldHandshakeConstant, resolvedHandshakeIdentifier),
	)
	return nil
}

func (acceptor *InvitationAcceptor) awaitHandshake(executionContext context.Context, accountClient AccountMembershipAPI, accountIdentifier string, handshakeIdentifier string) (string, error) {
	for attempt := 1; attempt <= acceptor.pollAttempts; attempt++ {
		listOutput, listError := accountClient.ListHandshakesForAccount(executionContext, &organizations.ListHandshakesForAccountInput{
			Filter: &types.HandshakeFilter{ActionType: types.ActionTypeInviteAccountToOrganization},
		})
		if listError != nil {
			return "", fmt.Errorf(listHandshakesErrorTemplateConstant, accountIdentifier, Classify(listError))
		}

		if matchedIdentifier, found := matchHandshake(listOutput.Handshakes, handshakeIdentifier); found {
			return matchedIdentifier, nil
		}

		if attempt == acceptor.pollAttempts {
			break
		}

		acceptor.logger.Info(
			waitingForHandshakeLogMessageConstant,
			zap.String(logFieldAccountConstant, accountIdentifier),
			zap.Int(logFieldPollAttemptConstant, attempt),
			zap.Int(logFieldPollAttemptLimitConstant, acceptor.pollAttempts),
		)

		if waitError := waitForInterval(executionContext, acceptor.pollInterval); waitError != nil {
			return "", waitError
		}
	}

	if len(handshakeIdentifier) > 0 {
		return "", Classify(ClassifiedError{
			Classification: ClassificationNotFound,
			Cause:          fmt.Errorf(handshakeNotVisibleTemplateConstant, handshakeIdentifier, accountIdentifier, acceptor.pollAttempts),
		})
	}
	return "", Classify(ClassifiedError{
		Classification: ClassificationNotFound,
		Cause:          fmt.Errorf(noOpenInvitationTemplateConstant, accountIdentifier, acceptor.pollAttempts),
	})
}

func matchHandshake(handshakes []types.Handshake, handshakeIdentifier string) (string, bool) {
	for _, handshake := range handshakes {
		if handshake.Id == nil {
			continue
		}
		if len(handshakeIdentifier) > 0 {
			if aws.ToString(handshake.Id) == handshakeIdentifier {
				return handshakeIdentifier, true
			}
			continue
		}
		if handshake.State == types.HandshakeStateOpen {
			return aws.ToString(handshake.Id), true
		}
	}
	return "", false
}

func waitForInterval(executionContext context.Context, interval time.Duration) error {
	if interval <= 0 {
		return executionContext.Err()
	}

	intervalTimer := time.NewTimer(interval)
	defer intervalTimer.Stop()

	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-intervalTimer.C:
		return nil
	}
}
