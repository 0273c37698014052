package service

import (
	"database/sql"
	"errors"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

// storeError maps a repository failure onto the public taxonomy. Missing rows become
// notFound; anything else is a persistence failure and is logged at error level.
func storeError(logger *zap.Logger, err error, notFound *appErrors.Error, message string) error {
	if err == nil {
		return nil
	}
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, sql.ErrNoRows) && notFound != nil {
		return notFound
	}
	logger.Error(message, zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, message)
}

func validationError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
}
