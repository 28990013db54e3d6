package amocrm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
)

// FindLead returns the first lead linked to contactID that matches filter, or nil.
func (c *Client) FindLead(ctx context.Context, contactID int64, filter domainCRM.LeadFilter) (*domainCRM.Lead, error) {
	query := url.Values{}
	query.Set("filter[contacts][0]", strconv.FormatInt(contactID, 10))
	query.Set("with", "contacts")
	query.Set("limit", "50")
	if filter.PipelineID > 0 {
		query.Set("filter[pipeline_id][0]", strconv.FormatInt(filter.PipelineID, 10))
		if filter.StatusID > 0 {
			query.Set("filter[statuses][0][pipeline_id]", strconv.FormatInt(filter.PipelineID, 10))
			query.Set("filter[statuses][0][status_id]", strconv.FormatInt(filter.StatusID, 10))
		}
	}

	var resp listResponse
	found, err := c.do(ctx, http.MethodGet, "/leads", query, nil, &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	for _, dto := range resp.Embedded.Leads {
		lead := dto.toDomain()
		if !matchesFilter(lead, filter) {
			continue
		}
		if lead.ContactID == 0 {
			lead.ContactID = contactID
		}
		return lead, nil
	}
	return nil, nil
}

// CreateLead creates "WhatsApp dialog +<phone>" with price 0, the WhatsApp
// tag and contactID attached, placed into filter's pipeline/status when set.
func (c *Client) CreateLead(ctx context.Context, contactID int64, phone string, filter domainCRM.LeadFilter) (*domainCRM.Lead, error) {
	if contactID <= 0 {
		return nil, fmt.Errorf("amocrm: contact id is required to create a lead")
	}
	normalized := utils.NormalizePhone(phone)

	dto := leadDTO{
		Name:       "WhatsApp dialog +" + normalized,
		Price:      0,
		PipelineID: filter.PipelineID,
		Embedded: &embeddedDTO{
			Tags:     []tagDTO{{Name: domainCRM.TagWhatsApp}},
			Contacts: []entityRefDTO{{ID: contactID}},
		},
	}
	if filter.PipelineID > 0 {
		dto.StatusID = filter.StatusID
	}

	var resp listResponse
	if _, err := c.do(ctx, http.MethodPost, "/leads", nil, []leadDTO{dto}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedded.Leads) == 0 || resp.Embedded.Leads[0].ID == 0 {
		return nil, fmt.Errorf("amocrm: lead was not created")
	}

	return &domainCRM.Lead{
		ID:         resp.Embedded.Leads[0].ID,
		Name:       dto.Name,
		ContactID:  contactID,
		PipelineID: dto.PipelineID,
		StatusID:   dto.StatusID,
		Tags:       []string{domainCRM.TagWhatsApp},
	}, nil
}

// GetLead fetches a lead with its contacts; nil when it does not exist.
func (c *Client) GetLead(ctx context.Context, id int64) (*domainCRM.Lead, error) {
	query := url.Values{}
	query.Set("with", "contacts")

	var dto leadDTO
	found, err := c.do(ctx, http.MethodGet, "/leads/"+strconv.FormatInt(id, 10), query, nil, &dto)
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

func matchesFilter(lead *domainCRM.Lead, filter domainCRM.LeadFilter) bool {
	if filter.PipelineID > 0 && lead.PipelineID != 0 && lead.PipelineID != filter.PipelineID {
		return false
	}
	if filter.StatusID > 0 && lead.StatusID != 0 && lead.StatusID != filter.StatusID {
		return false
	}
	return true
}

func asAPIError(err error, target **APIError) bool {
	return errors.As(err, target)
}
