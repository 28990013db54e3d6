package validations

import (
	"context"
	"fmt"

	domainSend "github.com/AzielCF/wa-amo-bridge/domains/send"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// maxTextLength is the WhatsApp limit for a text message body.
const maxTextLength = 4096

var phoneRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	digits := utils.NormalizePhone(s)
	if len(digits) < 10 || len(digits) > 15 {
		return fmt.Errorf("must contain 10 to 15 digits")
	}
	return nil
})

func ValidateOptIn(ctx context.Context, request domainSend.OptInRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, phoneRule),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateSendMessage(ctx context.Context, request domainSend.MessageRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, phoneRule),
		validation.Field(&request.Message, validation.Required, validation.RuneLength(1, maxTextLength)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateSendMedia(ctx context.Context, request domainSend.MediaRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, phoneRule),
		validation.Field(&request.MediaType, validation.In(
			domainSend.MediaImage, domainSend.MediaDocument, domainSend.MediaVideo, domainSend.MediaAudio,
		)),
		validation.Field(&request.MediaURL, validation.When(request.File == nil, validation.Required, is.URL)),
		validation.Field(&request.Caption, validation.RuneLength(0, 1024)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateSendTemplate(ctx context.Context, request domainSend.TemplateRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, phoneRule),
		validation.Field(&request.TemplateID, validation.Required),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateCRMSend(ctx context.Context, request domainSend.CRMSendRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, phoneRule),
		validation.Field(&request.Message, validation.Required, validation.RuneLength(1, maxTextLength)),
		validation.Field(&request.LeadID, validation.Min(int64(0))),
		validation.Field(&request.ContactID, validation.Min(int64(0))),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}
