// Package bankaccounts manages each vendor's settlement destination.
// Changing any account detail clears the verified flag: payouts are
// blocked until an admin re-verifies the new details.
package bankaccounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
)

// NUBAN account numbers are ten digits.
var accountNumberPattern = regexp.MustCompile(`^[0-9]{10}$`)

// SetAccountInput carries vendor-supplied bank details.
type SetAccountInput struct {
	VendorID      uuid.UUID `json:"-"`
	BankName      string    `json:"bankName" validate:"required"`
	BankCode      string    `json:"bankCode" validate:"required"`
	AccountNumber string    `json:"accountNumber" validate:"required"`
	AccountName   string    `json:"accountName" validate:"required"`
}

// Service manages vendor bank accounts.
type Service interface {
	Get(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error)
	Set(ctx context.Context, input SetAccountInput) (*models.BankAccount, error)
	Verify(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error)
}

type service struct {
	logg *logger.Logger
	repo Repository
}

// NewService wires the bank account service.
func NewService(logg *logger.Logger, repo Repository) (Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if repo == nil {
		return nil, fmt.Errorf("bank account repository required")
	}
	return &service{logg: logg, repo: repo}, nil
}

func (s *service) Get(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	account, err := s.repo.FindByVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no bank account on file")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bank account")
	}
	return account, nil
}

// Set stores the vendor's bank details. If the details differ from what
// is on file, the account drops back to unverified.
func (s *service) Set(ctx context.Context, input SetAccountInput) (*models.BankAccount, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if input.BankName == "" || input.BankCode == "" || input.AccountName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank name, bank code and account name required")
	}
	if !accountNumberPattern.MatchString(input.AccountNumber) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account number must be 10 digits")
	}

	existing, err := s.repo.FindByVendor(ctx, input.VendorID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bank account")
	}
	if existing != nil && sameDetails(existing, input) {
		return existing, nil
	}

	account := &models.BankAccount{
		VendorID:      input.VendorID,
		BankName:      input.BankName,
		BankCode:      input.BankCode,
		AccountNumber: input.AccountNumber,
		AccountName:   input.AccountName,
		IsVerified:    false,
	}
	if existing != nil {
		account.ID = existing.ID
	} else {
		account.ID = uuid.New()
	}
	if err := s.repo.Upsert(ctx, account); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save bank account")
	}

	logCtx := s.logg.WithVendorID(ctx, input.VendorID.String())
	s.logg.Info(logCtx, "bank account updated, verification reset")
	return account, nil
}

// Verify marks the account as a confirmed settlement destination. Admin
// only; vendors cannot verify their own accounts.
func (s *service) Verify(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error) {
	account, err := s.Get(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if account.IsVerified {
		return account, nil
	}
	if err := s.repo.SetVerified(ctx, vendorID, true); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify bank account")
	}
	return s.Get(ctx, vendorID)
}

func sameDetails(account *models.BankAccount, input SetAccountInput) bool {
	return account.BankName == input.BankName &&
		account.BankCode == input.BankCode &&
		account.AccountNumber == input.AccountNumber &&
		account.AccountName == input.AccountName
}
