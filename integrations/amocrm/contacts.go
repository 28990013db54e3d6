package amocrm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
)

// FindContactByPhone runs a substring search on the normalized phone and
// returns the first hit, or nil when there is none. Several contacts may match;
// the first one wins.
func (c *Client) FindContactByPhone(ctx context.Context, phone string) (*domainCRM.Contact, error) {
	normalized := utils.NormalizePhone(phone)
	if normalized == "" {
		return nil, fmt.Errorf("amocrm: empty phone")
	}

	query := url.Values{}
	query.Set("query", normalized)
	query.Set("limit", "1")

	var resp listResponse
	found, err := c.do(ctx, http.MethodGet, "/contacts", query, nil, &resp)
	if err != nil {
		return nil, err
	}
	if !found || len(resp.Embedded.Contacts) == 0 {
		return nil, nil
	}
	contact := resp.Embedded.Contacts[0].toDomain()
	if contact.Phone == "" {
		contact.Phone = normalized
	}
	return contact, nil
}

// CreateContact creates a contact with a PHONE (WORK) field and the WhatsApp tag.
// An empty name becomes "WhatsApp +<phone>".
func (c *Client) CreateContact(ctx context.Context, phone, name string) (*domainCRM.Contact, error) {
	normalized := utils.NormalizePhone(phone)
	if normalized == "" {
		return nil, fmt.Errorf("amocrm: empty phone")
	}
	if name == "" {
		name = "WhatsApp +" + normalized
	}

	payload := []contactDTO{{
		Name: name,
		CustomFieldsValues: []customFieldDTO{{
			FieldCode: "PHONE",
			Values:    []fieldValueDTO{{Value: normalized, EnumCode: "WORK"}},
		}},
		Embedded: &embeddedDTO{Tags: []tagDTO{{Name: domainCRM.TagWhatsApp}}},
	}}

	var resp listResponse
	if _, err := c.do(ctx, http.MethodPost, "/contacts", nil, payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedded.Contacts) == 0 || resp.Embedded.Contacts[0].ID == 0 {
		return nil, fmt.Errorf("amocrm: contact was not created")
	}

	return &domainCRM.Contact{
		ID:    resp.Embedded.Contacts[0].ID,
		Name:  name,
		Phone: normalized,
		Tags:  []string{domainCRM.TagWhatsApp},
	}, nil
}

// GetContact fetches a contact by id; nil when it does not exist.
func (c *Client) GetContact(ctx context.Context, id int64) (*domainCRM.Contact, error) {
	var dto contactDTO
	found, err := c.do(ctx, http.MethodGet, "/contacts/"+strconv.FormatInt(id, 10), nil, nil, &dto)
	if err != nil {
		var apiErr *APIError
		if asAPIError(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return dto.toDomain(), nil
}
