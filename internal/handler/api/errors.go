package api

import (
	"errors"
	"net/http"

	"PriceOpt/internal/domain/models"
	xhttp "PriceOpt/pkg/http"
)

// toAppError maps domain errors onto HTTP errors. Unknown errors pass
// through and render as 500.
func toAppError(err error) error {
	switch {
	case errors.Is(err, models.ErrProductNotFound):
		return xhttp.NotFoundError("ERR_PRODUCT_NOT_FOUND", "product not found").WithError(err)
	case errors.Is(err, models.ErrTestNotFound):
		return xhttp.NotFoundError("ERR_TEST_NOT_FOUND", "ab test not found").WithError(err)
	case errors.Is(err, models.ErrVariantNotFound):
		return xhttp.NotFoundError("ERR_VARIANT_NOT_FOUND", "variant not found").WithError(err)
	case errors.Is(err, models.ErrInvalidInput):
		return xhttp.NewAppError("ERR_INVALID_INPUT", "", err.Error(), http.StatusBadRequest).WithError(err)
	}
	return err
}
