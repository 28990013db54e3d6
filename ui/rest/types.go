package rest

import (
	"errors"

	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// errorResponse writes err as a ResponseData, using the typed status when err
// is a GenericError and 500 otherwise.
func errorResponse(c *fiber.Ctx, err error) error {
	res := utils.ResponseData{
		Status:  fiber.StatusInternalServerError,
		Code:    "INTERNAL_SERVER_ERROR",
		Message: err.Error(),
	}
	var generic pkgError.GenericError
	if errors.As(err, &generic) {
		res.Status = generic.StatusCode()
		res.Code = generic.ErrCode()
	}
	if res.Status >= fiber.StatusInternalServerError {
		logrus.WithError(err).Errorf("[REST] %s %s failed", c.Method(), c.Path())
	}
	return c.Status(res.Status).JSON(res)
}

// providerError mirrors the provider contract: {success:false, error}.
func providerError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "INTERNAL_SERVER_ERROR"
	var generic pkgError.GenericError
	if errors.As(err, &generic) {
		status = generic.StatusCode()
		code = generic.ErrCode()
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
		"code":    code,
	})
}

func success(c *fiber.Ctx, message string, results any) error {
	return c.JSON(utils.ResponseData{
		Status:  fiber.StatusOK,
		Code:    "SUCCESS",
		Message: message,
		Results: results,
	})
}
