package validations

import (
	"context"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateCreateChatContact(ctx context.Context, request domainChat.CreateContactRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, phoneRule),
		validation.Field(&request.Name, validation.RuneLength(0, 255)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateUpdateContact(ctx context.Context, request domainChat.UpdateContactRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, phoneRule),
		validation.Field(&request.Name, validation.Required, validation.RuneLength(1, 255)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidatePage(ctx context.Context, page domainChat.Page) error {
	err := validation.ValidateStructWithContext(ctx, &page,
		validation.Field(&page.Limit, validation.Min(0), validation.Max(500)),
		validation.Field(&page.Offset, validation.Min(0)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}
