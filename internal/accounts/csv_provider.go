package accounts

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

const (
	accountIdentifierColumnNameConstant      = "account_id"
	accountIdentifierLengthConstant          = 12
	openAccountListErrorTemplateConstant     = "unable to open account list %s: %w"
	readAccountListErrorTemplateConstant     = "unable to read account list: %w"
	missingHeaderColumnTemplateConstant      = "account list header is missing the %q column"
	emptyAccountListMessageConstant          = "account list contains no account identifiers"
	invalidAccountIdentifierTemplate         = "invalid account identifier %q: expected %d digits"
	duplicateAccountIdentifierTemplate       = "duplicate account identifier %s"
	skippedRowLogMessageConstant             = "Skipping account list row without an account identifier"
	logFieldRowNumberConstant                = "row_number"
	logFieldAccountListPathConstant          = "account_list_path"
	accountListLoadedLogMessageConstant      = "Account list loaded"
	logFieldAccountIdentifierCountConstant   = "account_count"
	emptyAccountIdentifierTrimCutsetConstant = " \t"
)

// CSVProvider reads ordered account identifiers from a CSV file with an
// account_id header column.
type CSVProvider struct {
	logger *zap.Logger
}

// NewCSVProvider constructs a CSVProvider.
func NewCSVProvider(logger *zap.Logger) *CSVProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVProvider{logger: logger}
}

// LoadAccountIdentifiers reads the file at accountListPath and returns the
// ordered, validated account identifiers it contains.
func (provider *CSVProvider) LoadAccountIdentifiers(accountListPath string) ([]string, error) {
	accountListFile, openError := os.Open(accountListPath)
	if openError != nil {
		return nil, fmt.Errorf(openAccountListErrorTemplateConstant, accountListPath, openError)
	}
	defer accountListFile.Close()

	accountIdentifiers, readError := provider.readAccountIdentifiers(accountListFile)
	if readError != nil {
		return nil, readError
	}

	provider.logger.Info(
		accountListLoadedLogMessageConstant,
		zap.String(logFieldAccountListPathConstant, accountListPath),
		zap.Int(logFieldAccountIdentifierCountConstant, len(accountIdentifiers)),
	)

	return accountIdentifiers, nil
}

func (provider *CSVProvider) readAccountIdentifiers(accountListReader io.Reader) ([]string, error) {
	csvReader := csv.NewReader(accountListReader)
	csvReader.FieldsPerRecord = -1

	headerRecord, headerError := csvReader.Read()
	if headerError != nil {
		return nil, fmt.Errorf(readAccountListErrorTemplateConstant, headerError)
	}

	accountColumnIndex := -1
	for columnIndex, columnName := range headerRecord {
		if strings.TrimSpace(columnName) == accountIdentifierColumnNameConstant {
			accountColumnIndex = columnIndex
			break
		}
	}
	if accountColumnIndex < 0 {
		return nil, fmt.Errorf(missingHeaderColumnTemplateConstant, accountIdentifierColumnNameConstant)
	}

	accountIdentifiers := make([]string, 0)
	seenIdentifiers := make(map[string]struct{})
	rowNumber := 1

	for {
		record, recordError := csvReader.Read()
		if recordError == io.EOF {
			break
		}
		if recordError != nil {
			return nil, fmt.Errorf(readAccountListErrorTemplateConstant, recordError)
		}
		rowNumber++

		if accountColumnIndex >= len(record) {
			provider.logger.Warn(skippedRowLogMessageConstant, zap.Int(logFieldRowNumberConstant, rowNumber))
			continue
		}

		accountIdentifier := strings.Trim(record[accountColumnIndex], emptyAccountIdentifierTrimCutsetConstant)
		if len(accountIdentifier) == 0 {
			provider.logger.Warn(skippedRowLogMessageConstant, zap.Int(logFieldRowNumberConstant, rowNumber))
			continue
		}

		if validationError := ValidateAccountIdentifier(accountIdentifier); validationError != nil {
			return nil, validationError
		}

		if _, alreadySeen := seenIdentifiers[accountIdentifier]; alreadySeen {
			return nil, fmt.Errorf(duplicateAccountIdentifierTemplate, accountIdentifier)
		}
		seenIdentifiers[accountIdentifier] = struct{}{}

		accountIdentifiers = append(accountIdentifiers, accountIdentifier)
	}

	if len(accountIdentifiers) == 0 {
		return nil, fmt.Errorf("%s", emptyAccountListMessageConstant)
	}

	return accountIdentifiers, nil
}

// ValidateAccountIdentifier confirms the identifier is a 12-digit AWS account id.
func ValidateAccountIdentifier(accountIdentifier string) error {
	if len(accountIdentifier) != accountIdentifierLengthConstant {
		return fmt.Errorf(invalidAccountIdentifierTemplate, accountIdentifier, accountIdentifierLengthConstant)
	}
	for _, identifierCharacter := range accountIdentifier {
		if identifierCharacter < '0' || identifierCharacter > '9' {
			return fmt.Errorf(invalidAccountIdentifierTemplate, accountIdentifier, accountIdentifierLengthConstant)
		}
	}
	return nil
}
