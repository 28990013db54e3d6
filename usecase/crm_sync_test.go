package usecase

import (
	"context"
	"testing"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	"github.com/AzielCF/wa-amo-bridge/pkg/syncmonitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRMSync_DisabledWithoutReconciler(t *testing.T) {
	var nilSync *CRMSync
	assert.False(t, nilSync.Enabled())
	assert.False(t, nilSync.Enqueue("79001234567", "x", domainCRM.DirectionIncoming, ""))

	s := NewCRMSync(nil, nil, nil, nil)
	assert.False(t, s.Enqueue("79001234567", "x", domainCRM.DirectionIncoming, ""))
}

func TestCRMSync_JobKeyedByNormalizedPhone(t *testing.T) {
	dispatcher := &inlineDispatcher{}
	reconciler := &stubReconciler{}
	s := NewCRMSync(reconciler, nil, nil, dispatcher)

	require.True(t, s.Enqueue("8 (900) 123-45-67", "Hi", domainCRM.DirectionOutgoing, ""))
	require.Len(t, dispatcher.jobs, 1)
	assert.Equal(t, "79001234567", dispatcher.jobs[0].Phone)
	assert.Equal(t, "outgoing", dispatcher.jobs[0].Kind)
	assert.Equal(t, "79001234567", reconciler.Calls()[0].Phone)
}

func TestCRMSync_FullQueueRecordsSkip(t *testing.T) {
	reconciler := &stubReconciler{}
	s := NewCRMSync(reconciler, nil, nil, &inlineDispatcher{reject: true})

	assert.False(t, s.Enqueue("79001234567", "Hi", domainCRM.DirectionIncoming, "m1"))
	assert.Empty(t, reconciler.Calls())

	events := syncmonitor.GetStats().RecentEvents
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, syncmonitor.StatusSkipped, last.Status)
	assert.Equal(t, syncmonitor.StageInbound, last.Stage)
}

func TestCRMSync_RunStoresIdsOnSuccessOnly(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	_, err := repo.UpsertContact(ctx, domainChat.Contact{Phone: "79001234567"})
	require.NoError(t, err)

	failing := &stubReconciler{result: func(phone string) domainCRM.ReconcileResult {
		return domainCRM.ReconcileResult{Phone: phone, Contact: &domainCRM.Contact{ID: 5}, Error: "lead create failed"}
	}}
	res := NewCRMSync(failing, repo, nil, nil).Run(ctx, "79001234567", "Hi", domainCRM.DirectionIncoming, "")
	assert.False(t, res.Success)

	contact, err := repo.GetContactByPhone(ctx, "79001234567")
	require.NoError(t, err)
	assert.Zero(t, contact.AmoContactID)

	res = NewCRMSync(&stubReconciler{}, repo, nil, nil).Run(ctx, "79001234567", "Hi", domainCRM.DirectionIncoming, "")
	assert.True(t, res.Success)
	contact, err = repo.GetContactByPhone(ctx, "79001234567")
	require.NoError(t, err)
	assert.Equal(t, int64(11), contact.AmoContactID)
	assert.Equal(t, int64(22), contact.AmoLeadID)
}
