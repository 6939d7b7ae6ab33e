package trustpolicy

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	policyVersionConstant           = "2012-10-17"
	allowEffectConstant             = "Allow"
	assumeRoleActionConstant        = "sts:AssumeRole"
	principalKeyConstant            = "AWS"
	principalFieldNameConstant      = "Principal"
	decodeDocumentErrorTemplate     = "unable to decode trust policy document: %w"
	unescapeDocumentErrorTemplate   = "unable to unescape trust policy document: %w"
	serializeDocumentErrorTemplate  = "unable to serialize trust policy document: %w"
	serializeStatementErrorTemplate = "unable to serialize trust policy statement: %w"
	percentEscapeIndicatorConstant  = "%"
)

// Document is an immutable view of an IAM trust policy. Statements are
// retained as raw JSON so unrelated statements survive edits byte-for-byte.
type Document struct {
	Version    string
	statements []json.RawMessage
}

type documentEnvelope struct {
	Version   string            `json:"Version"`
	Statement []json.RawMessage `json:"Statement"`
}

type statementProbe struct {
	Effect    string `json:"Effect"`
	Action    any    `json:"Action"`
	Principal struct {
		AWS any `json:"AWS"`
	} `json:"Principal"`
}

type trustStatement struct {
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal"`
	Action    string            `json:"Action"`
}

// ParseDocument decodes a trust policy document. IAM returns role policy
// documents URL-encoded, so percent-escaped input is unescaped first.
func ParseDocument(documentText string) (Document, error) {
	normalizedText := documentText
	if strings.Contains(documentText, percentEscapeIndicatorConstant) {
		unescapedText, unescapeError := url.QueryUnescape(documentText)
		if unescapeError != nil {
			return Document{}, fmt.Errorf(unescapeDocumentErrorTemplate, unescapeError)
		}
		normalizedText = unescapedText
	}

	var envelope documentEnvelope
	if decodeError := json.Unmarshal([]byte(normalizedText), &envelope); decodeError != nil {
		return Document{}, fmt.Errorf(decodeDocumentErrorTemplate, decodeError)
	}

	return Document{Version: envelope.Version, statements: envelope.Statement}, nil
}

// NewDocument builds an empty document with the standard policy version.
func NewDocument() Document {
	return Document{Version: policyVersionConstant}
}

// StatementCount reports how many statements the document holds.
func (document Document) StatementCount() int {
	return len(document.statements)
}

// Serialize renders the document as compact JSON suitable for
// UpdateAssumeRolePolicy.
func (document Document) Serialize() (string, error) {
	envelope := documentEnvelope{Version: document.Version, Statement: document.statements}
	if len(envelope.Version) == 0 {
		envelope.Version = policyVersionConstant
	}
	serializedDocument, serializeError := json.Marshal(envelope)
	if serializeError != nil {
		return "", fmt.Errorf(serializeDocumentErrorTemplate, serializeError)
	}
	return string(serializedDocument), nil
}

// HasAssumeRoleTrust reports whether any statement allows the principal to
// assume the role, matching both string and list principal forms.
func (document Document) HasAssumeRoleTrust(principalARN string) bool {
	for _, rawStatement := range document.statements {
		if statementTrustsPrincipal(rawStatement, principalARN) {
			return true
		}
	}
	return false
}

// WithAssumeRoleTrust returns a document with an assume-role statement for the
// principal appended. The returned flag is false when the trust already
// existed and no change was made.
func (document Document) WithAssumeRoleTrust(principalARN string) (Document, bool, error) {
	if document.HasAssumeRoleTrust(principalARN) {
		return document, false, nil
	}

	newStatement := trustStatement{
		Effect:    allowEffectConstant,
		Principal: map[string]string{principalKeyConstant: principalARN},
		Action:    assumeRoleActionConstant,
	}
	serializedStatement, serializeError := json.Marshal(newStatement)
	if serializeError != nil {
		return Document{}, false, fmt.Errorf(serializeStatementErrorTemplate, serializeError)
	}

	updatedStatements := make([]json.RawMessage, 0, len(document.statements)+1)
	updatedStatements = append(updatedStatements, document.statements...)
	updatedStatements = append(updatedStatements, serializedStatement)

	return Document{Version: document.Version, statements: updatedStatements}, true, nil
}

// WithoutAssumeRoleTrust returns a document with the principal's assume-role
// trust removed. Statements whose only principal is the target are dropped;
// statements listing several principals keep the others. Unrelated statements
// are carried over untouched.
func (document Document) WithoutAssumeRoleTrust(principalARN string) (Document, bool, error) {
	updatedStatements := make([]json.RawMessage, 0, len(document.statements))
	changed := false

	for _, rawStatement := range document.statements {
		if !statementTrustsPrincipal(rawStatement, principalARN) {
			updatedStatements = append(updatedStatements, rawStatement)
			continue
		}

		remainingPrincipals := remainingPrincipalList(rawStatement, principalARN)
		changed = true
		if len(remainingPrincipals) == 0 {
			continue
		}

		rewrittenStatement, rewriteError := rewriteStatementPrincipals(rawStatement, remainingPrincipals)
		if rewriteError != nil {
			return Document{}, false, rewriteError
		}
		updatedStatements = append(updatedStatements, rewrittenStatement)
	}

	return Document{Version: document.Version, statements: updatedStatements}, changed, nil
}

func statementTrustsPrincipal(rawStatement json.RawMessage, principalARN string) bool {
	var probe statementProbe
	if decodeError := json.Unmarshal(rawStatement, &probe); decodeError != nil {
		return false
	}
	if probe.Effect != allowEffectConstant {
		return false
	}
	if !actionIncludesAssumeRole(probe.Action) {
		return false
	}
	return principalIncludes(probe.Principal.AWS, principalARN)
}

func actionIncludesAssumeRole(actionValue any) bool {
	switch typedAction := actionValue.(type) {
	case string:
		return typedAction == assumeRoleActionConstant
	case []any:
		for _, actionEntry := range typedAction {
			if actionText, isString := actionEntry.(string); isString && actionText == assumeRoleActionConstant {
				return true
			}
		}
	}
	return false
}

func principalIncludes(principalValue any, principalARN string) bool {
	switch typedPrincipal := principalValue.(type) {
	case string:
		return typedPrincipal == principalARN
	case []any:
		for _, principalEntry := range typedPrincipal {
			if principalText, isString := principalEntry.(string); isString && principalText == principalARN {
				return true
			}
		}
	}
	return false
}

func remainingPrincipalList(rawStatement json.RawMessage, principalARN string) []string {
	var probe statementProbe
	if decodeError := json.Unmarshal(rawStatement, &probe); decodeError != nil {
		return nil
	}

	principalList, isList := probe.Principal.AWS.([]any)
	if !isList {
		return nil
	}

	remainingPrincipals := make([]string, 0, len(principalList))
	for _, principalEntry := range principalList {
		principalText, isString := principalEntry.(string)
		if !isString || principalText == principalARN {
			continue
		}
		remainingPrincipals = append(remainingPrincipals, principalText)
	}
	return remainingPrincipals
}

func rewriteStatementPrincipals(rawStatement json.RawMessage, remainingPrincipals []string) (json.RawMessage, error) {
	var genericStatement map[string]any
	if decodeError := json.Unmarshal(rawStatement, &genericStatement); decodeError != nil {
		return nil, fmt.Errorf(decodeDocumentErrorTemplate, decodeError)
	}

	principalSection, _ := genericStatement[principalFieldNameConstant].(map[string]any)
	if principalSection == nil {
		principalSection = map[string]any{}
	}
	if len(remainingPrincipals) == 1 {
		principalSection[principalKeyConstant] = remainingPrincipals[0]
	} else {
		principalSection[principalKeyConstant] = remainingPrincipals
	}
	genericStatement[principalFieldNameConstant] = principalSection

	rewrittenStatement, serializeError := json.Marshal(genericStatement)
	if serializeError != nil {
		return nil, fmt.Errorf(serializeStatementErrorTemplate, serializeError)
	}
	return rewrittenStatement, nil
}
