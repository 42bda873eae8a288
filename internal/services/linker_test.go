package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/bolledger/internal/models"
)

func TestLinkUploadsPageAndCleansPhones(t *testing.T) {
	store := newMemStore()
	l := NewLinker(store, LinkerConfig{ParentID: "folder-1", Timeout: time.Second}, testLogger, nil)

	shipment := models.Shipment{
		ShipFrom: models.Address{ContactNumber: strPtr("+1-555*123_4567")},
		CustomerOrderInformation: models.OrderInformation{
			OrderNumber: "A1",
			ShipmentID:  "S1",
		},
	}
	rec, err := l.Link(context.Background(), shipment, models.PageUnit{Index: 2, PDF: []byte("page-2")})
	require.NoError(t, err)

	assert.Equal(t, "Order A1 - Shipment S1.pdf", rec.FileName)
	assert.Equal(t, "https://blob.test/folder-1/Order A1 - Shipment S1.pdf", rec.PDFLink)
	assert.Equal(t, "15551234567", *rec.Shipment.ShipFrom.ContactNumber)
	assert.Nil(t, rec.Shipment.ShipTo.ContactNumber)
	assert.Equal(t, []byte("page-2"), store.objects[rec.PDFLink])
	assert.Equal(t, "+1-555*123_4567", *shipment.ShipFrom.ContactNumber)
}

func TestLinkUploadFailure(t *testing.T) {
	store := newMemStore()
	store.uploadErr = errors.New("quota exceeded")
	l := NewLinker(store, LinkerConfig{ParentID: "folder-1"}, testLogger, nil)

	_, err := l.Link(context.Background(), models.Shipment{}, models.PageUnit{Index: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}
