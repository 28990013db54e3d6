package amocrm

import (
	"context"
	"fmt"
	"time"

	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Reconciler links a WhatsApp message to CRM entities: find-or-create contact,
// find-or-create lead, then append a note. It holds no locks, so two messages
// from the same new phone processed at the same time may create duplicates.
type Reconciler struct {
	client     domainCRM.ICRMClient
	leadFilter func(ctx context.Context) domainCRM.LeadFilter
	now        func() time.Time
}

type ReconcilerOption func(*Reconciler)

// WithLeadFilter sets the pipeline/status used to find and place leads. It is
// evaluated on every call so runtime settings changes apply immediately.
func WithLeadFilter(fn func(ctx context.Context) domainCRM.LeadFilter) ReconcilerOption {
	return func(r *Reconciler) {
		r.leadFilter = fn
	}
}

func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

func NewReconciler(client domainCRM.ICRMClient, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		client:     client,
		leadFilter: func(context.Context) domainCRM.LeadFilter { return domainCRM.LeadFilter{} },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NoteText renders the note body for a message.
func NoteText(direction domainCRM.Direction, text string) string {
	return fmt.Sprintf("%s WhatsApp: %s", direction.NoteIcon(), text)
}

// ReconcileAndNote never returns an error: any failure aborts the chain and is
// reported in the result. Entities created before the failure are still set.
func (r *Reconciler) ReconcileAndNote(ctx context.Context, phone, text string, direction domainCRM.Direction) (result domainCRM.ReconcileResult) {
	result.Phone = utils.NormalizePhone(phone)

	defer func() {
		if rec := recover(); rec != nil {
			logrus.Errorf("[AMOCRM] reconcile panic for %s: %v", result.Phone, rec)
			result.Success = false
			result.Error = fmt.Sprintf("panic: %v", rec)
		}
	}()

	fail := func(stage string, err error) domainCRM.ReconcileResult {
		logrus.WithError(err).Errorf("[AMOCRM] reconcile %s failed for %s", stage, result.Phone)
		result.Success = false
		result.Error = err.Error()
		return result
	}

	if result.Phone == "" {
		return fail("normalize", fmt.Errorf("phone %q has no digits", phone))
	}
	if direction != domainCRM.DirectionOutgoing {
		direction = domainCRM.DirectionIncoming
	}

	contact, err := r.client.FindContactByPhone(ctx, result.Phone)
	if err != nil {
		return fail("find contact", err)
	}
	if contact == nil {
		contact, err = r.client.CreateContact(ctx, result.Phone, "")
		if err != nil {
			return fail("create contact", err)
		}
		result.ContactCreated = true
		logrus.Infof("[AMOCRM] contact %d created for %s", contact.ID, result.Phone)
	}
	result.Contact = contact

	filter := r.leadFilter(ctx)
	lead, err := r.client.FindLead(ctx, contact.ID, filter)
	if err != nil {
		return fail("find lead", err)
	}
	if lead == nil {
		lead, err = r.client.CreateLead(ctx, contact.ID, result.Phone, filter)
		if err != nil {
			return fail("create lead", err)
		}
		result.LeadCreated = true
		logrus.Infof("[AMOCRM] lead %d created for contact %d", lead.ID, contact.ID)
	}
	result.Lead = lead

	note := domainCRM.Note{
		EntityID:   contact.ID,
		EntityType: domainCRM.EntityContact,
		Text:       NoteText(direction, text),
		Direction:  direction,
		Timestamp:  r.now().UTC(),
	}
	if lead != nil && lead.ID > 0 {
		note.EntityID = lead.ID
		note.EntityType = domainCRM.EntityLead
	}

	created, err := r.client.AddNote(ctx, note)
	if err != nil {
		return fail("add note", err)
	}
	if created == nil {
		created = &note
	}
	result.Note = created
	result.Success = true

	logrus.Debugf("[AMOCRM] %s note on %s %d at %s", direction, created.EntityType, created.EntityID, created.Timestamp.Format(time.RFC3339))
	return result
}
