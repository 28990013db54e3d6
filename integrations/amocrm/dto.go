package amocrm

import (
	"fmt"

	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
)

type tagDTO struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

type fieldValueDTO struct {
	Value    any    `json:"value"`
	EnumCode string `json:"enum_code,omitempty"`
}

type customFieldDTO struct {
	FieldID   int64           `json:"field_id,omitempty"`
	FieldCode string          `json:"field_code,omitempty"`
	Values    []fieldValueDTO `json:"values"`
}

type entityRefDTO struct {
	ID int64 `json:"id"`
}

type embeddedDTO struct {
	Tags     []tagDTO       `json:"tags,omitempty"`
	Contacts []entityRefDTO `json:"contacts,omitempty"`
}

type contactDTO struct {
	ID                 int64            `json:"id,omitempty"`
	Name               string           `json:"name"`
	CustomFieldsValues []customFieldDTO `json:"custom_fields_values,omitempty"`
	Embedded           *embeddedDTO     `json:"_embedded,omitempty"`
}

type leadDTO struct {
	ID         int64        `json:"id,omitempty"`
	Name       string       `json:"name"`
	Price      int64        `json:"price"`
	PipelineID int64        `json:"pipeline_id,omitempty"`
	StatusID   int64        `json:"status_id,omitempty"`
	Embedded   *embeddedDTO `json:"_embedded,omitempty"`
}

type noteParamsDTO struct {
	Text string `json:"text"`
}

type noteDTO struct {
	ID        int64         `json:"id,omitempty"`
	EntityID  int64         `json:"entity_id"`
	NoteType  string        `json:"note_type"`
	Params    noteParamsDTO `json:"params"`
	CreatedAt int64         `json:"created_at,omitempty"`
}

type statusDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Sort int    `json:"sort"`
}

type pipelineDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsMain   bool   `json:"is_main"`
	Embedded struct {
		Statuses []statusDTO `json:"statuses"`
	} `json:"_embedded"`
}

type listResponse struct {
	Embedded struct {
		Contacts  []contactDTO     `json:"contacts"`
		Leads     []leadDTO        `json:"leads"`
		Notes     []noteDTO        `json:"notes"`
		Users     []domainCRM.User `json:"users"`
		Pipelines []pipelineDTO    `json:"pipelines"`
	} `json:"_embedded"`
}

func (d contactDTO) toDomain() *domainCRM.Contact {
	c := &domainCRM.Contact{ID: d.ID, Name: d.Name, Tags: []string{}}
	for _, f := range d.CustomFieldsValues {
		if f.FieldCode != "PHONE" || len(f.Values) == 0 {
			continue
		}
		c.Phone = fmt.Sprint(f.Values[0].Value)
		break
	}
	if d.Embedded != nil {
		for _, t := range d.Embedded.Tags {
			c.Tags = append(c.Tags, t.Name)
		}
	}
	return c
}

func (d leadDTO) toDomain() *domainCRM.Lead {
	l := &domainCRM.Lead{
		ID:         d.ID,
		Name:       d.Name,
		Price:      d.Price,
		PipelineID: d.PipelineID,
		StatusID:   d.StatusID,
		Tags:       []string{},
	}
	if d.Embedded != nil {
		for _, t := range d.Embedded.Tags {
			l.Tags = append(l.Tags, t.Name)
		}
		if len(d.Embedded.Contacts) > 0 {
			l.ContactID = d.Embedded.Contacts[0].ID
		}
	}
	return l
}

func (d pipelineDTO) toDomain() domainCRM.Pipeline {
	p := domainCRM.Pipeline{ID: d.ID, Name: d.Name, IsMain: d.IsMain, Statuses: []domainCRM.PipelineStatus{}}
	for _, s := range d.Embedded.Statuses {
		p.Statuses = append(p.Statuses, domainCRM.PipelineStatus{ID: s.ID, Name: s.Name, Sort: s.Sort})
	}
	return p
}
