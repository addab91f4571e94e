package models

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteen-system/internal/apperr"
)

func validRequest() *PlaceOrderRequest {
	return &PlaceOrderRequest{
		OutletID:    uuid.New(),
		Lines:       []LineRequest{{MenuItemID: uuid.New(), Quantity: 1}},
		Fulfillment: DineIn,
		Settlement:  SettlementIndividual,
	}
}

func TestValidatePlaceOrderRequest(t *testing.T) {
	longNotes := strings.Repeat("a", MaxNotesLength+1)
	tooMany := make([]LineRequest, MaxOrderLines+1)
	for i := range tooMany {
		tooMany[i] = LineRequest{MenuItemID: uuid.New(), Quantity: 1}
	}

	tests := []struct {
		name    string
		mutate  func(r *PlaceOrderRequest)
		wantErr bool
	}{
		{name: "valid request", mutate: func(r *PlaceOrderRequest) {}},
		{name: "takeaway organization", mutate: func(r *PlaceOrderRequest) {
			r.Fulfillment = Takeaway
			r.Settlement = SettlementOrganization
		}},
		{name: "missing outlet", mutate: func(r *PlaceOrderRequest) { r.OutletID = uuid.Nil }, wantErr: true},
		{name: "invalid fulfillment", mutate: func(r *PlaceOrderRequest) { r.Fulfillment = "delivery" }, wantErr: true},
		{name: "invalid settlement", mutate: func(r *PlaceOrderRequest) { r.Settlement = "cash" }, wantErr: true},
		{name: "empty lines", mutate: func(r *PlaceOrderRequest) { r.Lines = nil }, wantErr: true},
		{name: "too many lines", mutate: func(r *PlaceOrderRequest) { r.Lines = tooMany }, wantErr: true},
		{name: "zero quantity", mutate: func(r *PlaceOrderRequest) { r.Lines[0].Quantity = 0 }, wantErr: true},
		{name: "missing item", mutate: func(r *PlaceOrderRequest) { r.Lines[0].MenuItemID = uuid.Nil }, wantErr: true},
		{name: "notes too long", mutate: func(r *PlaceOrderRequest) { r.Notes = &longNotes }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCalculateTotal(t *testing.T) {
	lines := []OrderLine{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("80.00")},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("15.50")},
	}
	assert.True(t, decimal.RequireFromString("175.50").Equal(CalculateTotal(lines)))
	assert.True(t, CalculateTotal(nil).IsZero())
}

func TestInitialStatusAndChannel(t *testing.T) {
	assert.Equal(t, StatusApproved, InitialStatus(SettlementIndividual))
	assert.Equal(t, StatusPending, InitialStatus(SettlementOrganization))
	assert.Equal(t, ChannelQR, ChannelFor(SettlementIndividual))
	assert.Equal(t, ChannelOrganization, ChannelFor(SettlementOrganization))
}

func TestGenerateOrderReference(t *testing.T) {
	at := time.Date(2025, 3, 7, 13, 4, 5, 0, time.FixedZone("IST", 5*3600+1800))
	ref := GenerateOrderReference(at)

	assert.Regexp(t, regexp.MustCompile(`^ORD_20250307_073405_[0-9a-f]{6}$`), ref)
	assert.NotEqual(t, ref, GenerateOrderReference(at))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusApproved.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, OrderStatus("cooking").Valid())
}

func TestMenuFilter(t *testing.T) {
	f, err := MenuFilter{Category: "  Lunch "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "lunch", f.Category)
	assert.Equal(t, AvailabilityAll, f.Availability)

	_, err = MenuFilter{Availability: "soon"}.Normalize()
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	soldOut := MenuItem{Category: "Lunch", Available: false}
	assert.True(t, f.Matches(soldOut))
	assert.False(t, MenuFilter{Availability: AvailabilityAvailable}.Matches(soldOut))
	assert.True(t, MenuFilter{Availability: AvailabilityUnavailable}.Matches(soldOut))
	assert.False(t, MenuFilter{Category: "snacks"}.Matches(soldOut))
}

func TestPrincipalPermissions(t *testing.T) {
	outlet := uuid.New()
	other := uuid.New()

	operator := Principal{UserID: uuid.New(), Role: RoleOperator, Outlets: []uuid.UUID{outlet}}
	approver := Principal{UserID: uuid.New(), Role: RoleApprover}
	admin := Principal{UserID: uuid.New(), Role: RoleAdmin}
	user := Principal{UserID: uuid.New(), Role: RoleUser}

	assert.True(t, operator.CanOperate(outlet))
	assert.False(t, operator.CanOperate(other))
	assert.True(t, operator.CanApprove(outlet))
	assert.True(t, approver.CanApprove(other))
	assert.False(t, approver.CanOperate(other))
	assert.True(t, admin.CanOperate(other))
	assert.False(t, user.CanApprove(outlet))
}
