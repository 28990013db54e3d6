package usecase

import (
	"context"
	"time"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainRealtime "github.com/AzielCF/wa-amo-bridge/domains/realtime"
	"github.com/AzielCF/wa-amo-bridge/pkg/msgworker"
	"github.com/AzielCF/wa-amo-bridge/pkg/syncmonitor"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Dispatcher runs jobs off the request path, serialised per phone.
type Dispatcher interface {
	TryDispatch(job msgworker.Job) bool
}

// CRMSync pushes stored messages into the CRM as notes. It is best-effort:
// failures are logged, recorded in the sync monitor and published to the
// chat, never returned to the caller that stored the message.
type CRMSync struct {
	reconciler domainCRM.IReconciler
	repo       domainChat.IChatStorageRepository
	publisher  domainRealtime.IPublisher
	pool       Dispatcher
}

// NewCRMSync wires the sync path. A nil reconciler disables CRM sync; a nil
// pool runs jobs inline.
func NewCRMSync(reconciler domainCRM.IReconciler, repo domainChat.IChatStorageRepository, publisher domainRealtime.IPublisher, pool Dispatcher) *CRMSync {
	if publisher == nil {
		publisher = domainRealtime.Nop{}
	}
	return &CRMSync{reconciler: reconciler, repo: repo, publisher: publisher, pool: pool}
}

func (s *CRMSync) Enabled() bool {
	return s != nil && s.reconciler != nil
}

// Enqueue schedules reconciliation for a message. It reports false when the
// sync is disabled or the worker queue is full.
func (s *CRMSync) Enqueue(phone, text string, direction domainCRM.Direction, messageID string) bool {
	if !s.Enabled() {
		return false
	}
	phone = utils.NormalizePhone(phone)

	job := msgworker.Job{
		Phone: phone,
		Kind:  string(direction),
		Handler: func(ctx context.Context) error {
			res := s.Run(ctx, phone, text, direction, messageID)
			if !res.Success {
				return errSyncFailed(res.Error)
			}
			return nil
		},
	}
	if s.pool == nil {
		_ = job.Handler(context.Background())
		return true
	}
	if !s.pool.TryDispatch(job) {
		syncmonitor.Record(syncmonitor.Event{Phone: phone, Stage: stageFor(direction), Status: syncmonitor.StatusSkipped, Error: "worker queue full"})
		return false
	}
	return true
}

// Run reconciles synchronously and applies the outcome to local storage.
func (s *CRMSync) Run(ctx context.Context, phone, text string, direction domainCRM.Direction, messageID string) domainCRM.ReconcileResult {
	start := time.Now()
	res := s.reconciler.ReconcileAndNote(ctx, phone, text, direction)

	event := syncmonitor.Event{
		Phone:          res.Phone,
		Stage:          stageFor(direction),
		Status:         syncmonitor.StatusOK,
		ContactCreated: res.ContactCreated,
		LeadCreated:    res.LeadCreated,
		DurationMs:     time.Since(start).Milliseconds(),
	}
	if res.Contact != nil {
		event.ContactID = res.Contact.ID
	}
	if res.Lead != nil {
		event.LeadID = res.Lead.ID
	}
	if !res.Success {
		event.Status = syncmonitor.StatusError
		event.Error = res.Error
	}
	syncmonitor.Record(event)

	if res.Success && s.repo != nil {
		s.store(ctx, res, messageID)
	}

	payload := map[string]any{
		"success":    res.Success,
		"message_id": messageID,
		"direction":  direction,
		"contact_id": event.ContactID,
		"lead_id":    event.LeadID,
	}
	if !res.Success {
		payload["error"] = res.Error
	}
	if res.Phone != "" {
		s.publisher.Publish(utils.ChatIDForPhone(res.Phone), domainRealtime.EventCRMSynced, payload)
	}
	return res
}

func (s *CRMSync) store(ctx context.Context, res domainCRM.ReconcileResult, messageID string) {
	var contactID, leadID int64
	if res.Contact != nil {
		contactID = res.Contact.ID
	}
	if res.Lead != nil {
		leadID = res.Lead.ID
	}

	if err := s.repo.SetContactCRM(ctx, res.Phone, contactID, leadID); err != nil {
		logrus.WithError(err).Warnf("[CRM_SYNC] failed to store CRM ids for %s", res.Phone)
	}
	if messageID != "" && leadID > 0 {
		if err := s.repo.SetMessageAmoLead(ctx, messageID, leadID); err != nil {
			logrus.WithError(err).Warnf("[CRM_SYNC] failed to link message %s to lead %d", messageID, leadID)
		}
	}
}

func stageFor(direction domainCRM.Direction) string {
	if direction == domainCRM.DirectionOutgoing {
		return syncmonitor.StageOutbound
	}
	return syncmonitor.StageInbound
}

type errSyncFailed string

func (e errSyncFailed) Error() string {
	return "crm sync failed: " + string(e)
}
