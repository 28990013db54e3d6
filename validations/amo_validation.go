package validations

import (
	"context"

	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateCreateContact(ctx context.Context, request domainCRM.CreateContactRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, phoneRule),
		validation.Field(&request.Name, validation.RuneLength(0, 255)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateCreateLead(ctx context.Context, request domainCRM.CreateLeadRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ContactID, validation.Required, validation.Min(int64(1))),
		validation.Field(&request.PipelineID, validation.Min(int64(0))),
		validation.Field(&request.StatusID, validation.Min(int64(0))),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateAddNote(ctx context.Context, request domainCRM.AddNoteRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.EntityID, validation.Required, validation.Min(int64(1))),
		validation.Field(&request.EntityType, validation.Required, validation.In(domainCRM.EntityLead, domainCRM.EntityContact)),
		validation.Field(&request.Text, validation.Required),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateCRMRouting(ctx context.Context, pipelineID, statusID int64) error {
	err := validation.Errors{
		"pipeline_id": validation.Validate(pipelineID, validation.Min(int64(0))),
		"status_id":   validation.Validate(statusID, validation.Min(int64(0))),
	}.Filter()
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}
