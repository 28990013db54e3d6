package amocrm

import (
	"context"
	"fmt"
	"net/http"

	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
)

// AddNote appends a common (free text) note to a lead or contact.
func (c *Client) AddNote(ctx context.Context, note domainCRM.Note) (*domainCRM.Note, error) {
	if note.EntityID <= 0 {
		return nil, fmt.Errorf("amocrm: note entity id is required")
	}

	var path string
	switch note.EntityType {
	case domainCRM.EntityLead:
		path = "/leads/notes"
	case domainCRM.EntityContact:
		path = "/contacts/notes"
	default:
		return nil, fmt.Errorf("amocrm: unsupported note entity %q", note.EntityType)
	}

	if note.Timestamp.IsZero() {
		note.Timestamp = c.now().UTC()
	}

	payload := []noteDTO{{
		EntityID:  note.EntityID,
		NoteType:  "common",
		Params:    noteParamsDTO{Text: note.Text},
		CreatedAt: note.Timestamp.Unix(),
	}}

	var resp listResponse
	if _, err := c.do(ctx, http.MethodPost, path, nil, payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedded.Notes) > 0 {
		note.ID = resp.Embedded.Notes[0].ID
	}
	return &note, nil
}
