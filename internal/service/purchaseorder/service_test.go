package purchaseorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jtj60/dorado-exchange-sub003/internal/carrier"
	"github.com/jtj60/dorado-exchange-sub003/internal/config"
	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
	repo "github.com/jtj60/dorado-exchange-sub003/internal/repository/purchaseorder"
	"github.com/jtj60/dorado-exchange-sub003/pkg/errorbank"
)

func f(v float64) *float64 { return &v }

// fakeStore is an in-memory repo.Store. Transact runs the callback against
// the same maps; per-order failures for sweep tests are injected via failGet.
type fakeStore struct {
	orders       map[int64]*entity.PurchaseOrder
	items        map[int64]*entity.PurchaseOrderItem
	orderSpots   map[int64][]*entity.OrderSpot
	refinerSpots map[int64][]*entity.RefinerSpot
	shipments    map[int64][]*entity.Shipment
	nextOrderID  int64
	nextItemID   int64
	nextShipID   int64
	failGet      map[int64]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:       make(map[int64]*entity.PurchaseOrder),
		items:        make(map[int64]*entity.PurchaseOrderItem),
		orderSpots:   make(map[int64][]*entity.OrderSpot),
		refinerSpots: make(map[int64][]*entity.RefinerSpot),
		shipments:    make(map[int64][]*entity.Shipment),
		failGet:      make(map[int64]error),
	}
}

func (s *fakeStore) Transact(ctx context.Context, fn func(ctx context.Context, tx repo.Store) error) error {
	return fn(ctx, s)
}

func (s *fakeStore) CreateOrder(_ context.Context, order *entity.PurchaseOrder) error {
	s.nextOrderID++
	order.ID = s.nextOrderID
	s.orders[order.ID] = order
	for _, item := range order.Items {
		s.nextItemID++
		item.ID = s.nextItemID
		item.OrderID = order.ID
		s.items[item.ID] = item
	}
	return nil
}

func (s *fakeStore) GetOrder(_ context.Context, id int64) (*entity.PurchaseOrder, error) {
	if err := s.failGet[id]; err != nil {
		return nil, err
	}
	order, ok := s.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return order, nil
}

func (s *fakeStore) ListOrdersByUser(_ context.Context, userID int64) ([]*entity.PurchaseOrder, error) {
	var out []*entity.PurchaseOrder
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateOrder(_ context.Context, order *entity.PurchaseOrder) error {
	if _, ok := s.orders[order.ID]; !ok {
		return repo.ErrNotFound
	}
	order.Version++
	s.orders[order.ID] = order
	return nil
}

func (s *fakeStore) ListExpiredOffers(_ context.Context, now time.Time) ([]*entity.PurchaseOrder, error) {
	var out []*entity.PurchaseOrder
	for _, o := range s.orders {
		if o.OfferStatus == entity.OfferSent && o.ExpiresAt != nil && o.ExpiresAt.Before(now) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateItem(_ context.Context, item *entity.PurchaseOrderItem) error {
	s.nextItemID++
	item.ID = s.nextItemID
	s.items[item.ID] = item
	if order, ok := s.orders[item.OrderID]; ok {
		order.Items = append(order.Items, item)
	}
	return nil
}

func (s *fakeStore) UpdateItem(_ context.Context, item *entity.PurchaseOrderItem) error {
	if _, ok := s.items[item.ID]; !ok {
		return repo.ErrNotFound
	}
	s.items[item.ID] = item
	return nil
}

func (s *fakeStore) GetItem(_ context.Context, id int64) (*entity.PurchaseOrderItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return item, nil
}

func (s *fakeStore) ClearItemPricing(_ context.Context, orderID int64) error {
	for _, item := range s.items {
		if item.OrderID == orderID {
			item.Price = nil
		}
	}
	return nil
}

func (s *fakeStore) OrderSpots(_ context.Context, orderID int64) ([]*entity.OrderSpot, error) {
	return s.orderSpots[orderID], nil
}

func (s *fakeStore) ReplaceOrderSpots(_ context.Context, orderID int64, spots []*entity.OrderSpot) error {
	s.orderSpots[orderID] = spots
	return nil
}

func (s *fakeStore) ClearOrderSpots(_ context.Context, orderID int64) error {
	delete(s.orderSpots, orderID)
	return nil
}

func (s *fakeStore) RefinerSpots(_ context.Context, orderID int64) ([]*entity.RefinerSpot, error) {
	return s.refinerSpots[orderID], nil
}

func (s *fakeStore) ReplaceRefinerSpots(_ context.Context, orderID int64, spots []*entity.RefinerSpot) error {
	s.refinerSpots[orderID] = spots
	return nil
}

func (s *fakeStore) ClearRefinerSpots(_ context.Context, orderID int64) error {
	delete(s.refinerSpots, orderID)
	return nil
}

func (s *fakeStore) CreateShipment(_ context.Context, shipment *entity.Shipment) error {
	s.nextShipID++
	shipment.ID = s.nextShipID
	s.shipments[shipment.OrderID] = append(s.shipments[shipment.OrderID], shipment)
	return nil
}

func (s *fakeStore) UpdateShipment(_ context.Context, shipment *entity.Shipment) error {
	for i, existing := range s.shipments[shipment.OrderID] {
		if existing.ID == shipment.ID {
			s.shipments[shipment.OrderID][i] = shipment
			return nil
		}
	}
	return repo.ErrNotFound
}

func (s *fakeStore) Shipments(_ context.Context, orderID int64) ([]*entity.Shipment, error) {
	return s.shipments[orderID], nil
}

// fakeSpots returns a fixed quote sheet.
type fakeSpots struct {
	prices []*entity.SpotPrice
	err    error
}

func (s *fakeSpots) Current(context.Context) ([]*entity.SpotPrice, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.prices, nil
}

// fakeCarrier counts label purchases.
type fakeCarrier struct {
	labels int
	err    error
}

func (c *fakeCarrier) CreateLabel(_ context.Context, req carrier.LabelRequest) (*carrier.Label, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.labels++
	return &carrier.Label{TrackingNumber: "TRK-1", LabelFile: "bGFiZWw=", NetCharge: 12.40}, nil
}

func (c *fakeCarrier) CreatePickup(context.Context, carrier.PickupRequest) (*carrier.Pickup, error) {
	return &carrier.Pickup{ConfirmationNumber: "PU-1"}, nil
}

func testConfig() config.Config {
	return config.Config{
		Cache: config.Cache{DefaultTTL: time.Minute},
		Offers: config.Offers{
			LockedTTL:   24 * time.Hour,
			UnlockedTTL: 7 * 24 * time.Hour,
		},
		Messaging: config.Messaging{Enabled: false},
	}
}

func newTestService(store *fakeStore, spots *fakeSpots, shipper *fakeCarrier) *Service {
	return NewService(Params{
		Store:   store,
		Spots:   spots,
		Carrier: shipper,
		Cache:   nil,
		Config:  testConfig(),
		Logger:  zap.NewNop(),
	})
}

func goldQuotes() *fakeSpots {
	return &fakeSpots{prices: []*entity.SpotPrice{
		{Metal: entity.MetalGold, BidSpot: 2000, AskSpot: 2002, ScrapPercentage: 0.95},
		{Metal: entity.MetalSilver, BidSpot: 30, AskSpot: 30.2, ScrapPercentage: 0.90},
		{Metal: entity.MetalPlatinum, BidSpot: 950, AskSpot: 953, ScrapPercentage: 0.92},
		{Metal: entity.MetalPalladium, BidSpot: 930, AskSpot: 934, ScrapPercentage: 0.92},
	}}
}

func seedOrder(store *fakeStore, status entity.PurchaseOrderStatus, items ...*entity.PurchaseOrderItem) *entity.PurchaseOrder {
	order := &entity.PurchaseOrder{UserID: 7, AddressID: 3, Status: status, Items: items}
	_ = store.CreateOrder(context.Background(), order)
	return order
}

func TestCreateBooksInboundShipment(t *testing.T) {
	store := newFakeStore()
	shipper := &fakeCarrier{}
	svc := newTestService(store, goldQuotes(), shipper)

	order, err := svc.Create(context.Background(), CreateInput{
		UserID:    7,
		AddressID: 3,
		CarrierID: "ups",
		Items: []*entity.PurchaseOrderItem{
			{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10},
		},
	}, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != entity.StatusInTransit {
		t.Fatalf("status=%q want=%q", order.Status, entity.StatusInTransit)
	}

	shipments := store.shipments[order.ID]
	if len(shipments) != 1 {
		t.Fatalf("shipments=%d want=1", len(shipments))
	}
	sh := shipments[0]
	if sh.Direction != entity.ShipmentInbound {
		t.Fatalf("direction=%q want inbound", sh.Direction)
	}
	if sh.Status != entity.ShipmentLabelCreated {
		t.Fatalf("status=%q want label created", sh.Status)
	}
	if sh.TrackingNumber != "TRK-1" {
		t.Fatalf("tracking=%q", sh.TrackingNumber)
	}
	if shipper.labels != 1 {
		t.Fatalf("labels purchased=%d want=1", shipper.labels)
	}
}

func TestCreateSurvivesCarrierFailure(t *testing.T) {
	store := newFakeStore()
	shipper := &fakeCarrier{err: errors.New("gateway down")}
	svc := newTestService(store, goldQuotes(), shipper)

	order, err := svc.Create(context.Background(), CreateInput{
		UserID:    7,
		AddressID: 3,
		CarrierID: "ups",
		Items: []*entity.PurchaseOrderItem{
			{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10},
		},
	}, "alice")

	var appErr *errorbank.AppError
	if !errors.As(err, &appErr) || appErr.Kind() != errorbank.KindFailedDependency {
		t.Fatalf("err=%v want failed dependency", err)
	}
	// The intake is already committed; the shipment stays Pending for retry.
	if order == nil {
		t.Fatal("order must be returned despite carrier failure")
	}
	if got := store.shipments[order.ID][0].Status; got != entity.ShipmentPending {
		t.Fatalf("shipment status=%q want pending", got)
	}
}

func TestSendOfferExpiryWindows(t *testing.T) {
	tests := []struct {
		name    string
		locked  bool
		wantTTL time.Duration
	}{
		{"floating offer has a week", false, 7 * 24 * time.Hour},
		{"locked offer has a day", true, 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestService(store, goldQuotes(), &fakeCarrier{})
			order := seedOrder(store, entity.StatusReceived,
				&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10, Price: f(123)})
			order.SpotsLocked = tt.locked
			order.TotalPrice = f(999)

			got, err := svc.SendOffer(context.Background(), order.ID, "admin")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Status != entity.StatusOfferSent || got.OfferStatus != entity.OfferSent {
				t.Fatalf("state=%q/%q", got.Status, got.OfferStatus)
			}
			if got.SentAt == nil || got.ExpiresAt == nil {
				t.Fatal("sent/expires must be set")
			}
			if window := got.ExpiresAt.Sub(*got.SentAt); window != tt.wantTTL {
				t.Fatalf("window=%v want=%v", window, tt.wantTTL)
			}
			if got.TotalPrice != nil {
				t.Fatal("total price must be cleared")
			}
			for _, item := range got.Items {
				if item.Price != nil {
					t.Fatal("item price must be cleared")
				}
			}
		})
	}
}

func TestSendOfferInvalidState(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusInTransit)

	_, err := svc.SendOffer(context.Background(), order.ID, "admin")
	var appErr *errorbank.AppError
	if !errors.As(err, &appErr) || appErr.Kind() != errorbank.KindUnprocessableEntity {
		t.Fatalf("err=%v want invalid transition", err)
	}
}

func TestAcceptOfferLocksAndPrices(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusOfferSent,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10, BidPremium: f(0.9)})
	order.OfferStatus = entity.OfferSent
	order.ShippingFeeActual = 45.50

	got, err := svc.AcceptOffer(context.Background(), order.ID, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != entity.StatusAccepted || got.OfferStatus != entity.OfferAccepted {
		t.Fatalf("state=%q/%q", got.Status, got.OfferStatus)
	}
	if !got.SpotsLocked {
		t.Fatal("accept must lock spots first")
	}
	if got.ExpiresAt != nil {
		t.Fatal("expiry must be cleared on acceptance")
	}
	// 10oz * 0.9 * $2000 - $45.50 shipping
	if got.TotalPrice == nil || *got.TotalPrice != 17954.50 {
		t.Fatalf("total=%v want=17954.50", got.TotalPrice)
	}
	if got.Items[0].Price == nil || *got.Items[0].Price != 18000 {
		t.Fatalf("item price=%v want=18000", got.Items[0].Price)
	}
	if len(store.orderSpots[order.ID]) == 0 || len(store.refinerSpots[order.ID]) == 0 {
		t.Fatal("both snapshots must be captured")
	}
}

func TestAcceptOfferKeepsExistingLock(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusOfferSent,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10, BidPremium: f(0.9)})
	order.OfferStatus = entity.OfferSent
	order.SpotsLocked = true
	// Frozen at a different price than the live quote; the snapshot must win.
	store.orderSpots[order.ID] = []*entity.OrderSpot{
		{OrderID: order.ID, Metal: entity.MetalGold, BidSpot: 1900, ScrapPercentage: 0.95},
	}

	got, err := svc.AcceptOffer(context.Background(), order.ID, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 10 * 0.9 * 1900
	if got.TotalPrice == nil || *got.TotalPrice != 17100 {
		t.Fatalf("total=%v want=17100 (frozen price)", got.TotalPrice)
	}
	if store.orderSpots[order.ID][0].BidSpot != 1900 {
		t.Fatal("existing snapshot must not be replaced")
	}
}

func TestAcceptOfferRequiresActiveOffer(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusOfferSent)
	order.OfferStatus = entity.OfferResent

	_, err := svc.AcceptOffer(context.Background(), order.ID, "alice")
	var appErr *errorbank.AppError
	if !errors.As(err, &appErr) || appErr.Kind() != errorbank.KindUnprocessableEntity {
		t.Fatalf("err=%v want invalid transition", err)
	}
}

func TestRejectResendLoop(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusOfferSent)
	order.OfferStatus = entity.OfferSent
	now := time.Now().UTC()
	order.SentAt = &now
	expires := now.Add(time.Hour)
	order.ExpiresAt = &expires

	got, err := svc.RejectOffer(context.Background(), order.ID, "too low", "alice")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != entity.StatusRejected || got.OfferStatus != entity.OfferRejected {
		t.Fatalf("state=%q/%q", got.Status, got.OfferStatus)
	}
	if got.OfferNotes != "too low" {
		t.Fatalf("notes=%q", got.OfferNotes)
	}

	got, err = svc.ResendAfterRejection(context.Background(), order.ID, "admin")
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if got.OfferStatus != entity.OfferResent {
		t.Fatalf("offer status=%q want resent", got.OfferStatus)
	}
	if got.SentAt != nil || got.ExpiresAt != nil {
		t.Fatal("resent offer must clear sent/expiry")
	}

	got, err = svc.ResendAfterRejection(context.Background(), order.ID, "alice")
	if err != nil {
		t.Fatalf("second resend: %v", err)
	}
	if got.OfferStatus != entity.OfferRejected {
		t.Fatalf("offer status=%q want rejected", got.OfferStatus)
	}
}

func TestSweepUnlocksExpiredLockedOffer(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusOfferSent,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10})
	order.OfferStatus = entity.OfferSent
	order.SpotsLocked = true
	past := time.Now().UTC().Add(-time.Hour)
	order.SentAt = &past
	order.ExpiresAt = &past
	store.orderSpots[order.ID] = []*entity.OrderSpot{{OrderID: order.ID, Metal: entity.MetalGold, BidSpot: 1900}}
	store.refinerSpots[order.ID] = []*entity.RefinerSpot{{OrderID: order.ID, Metal: entity.MetalGold, BidSpot: 1900}}

	processed, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed=%d want=1", processed)
	}

	got := store.orders[order.ID]
	if got.SpotsLocked {
		t.Fatal("lock must be released")
	}
	if got.Status != entity.StatusOfferSent || got.OfferStatus != entity.OfferSent {
		t.Fatalf("state=%q/%q, offer must stay open", got.Status, got.OfferStatus)
	}
	if len(store.orderSpots[order.ID]) != 0 || len(store.refinerSpots[order.ID]) != 0 {
		t.Fatal("snapshots must be cleared")
	}
	if got.ExpiresAt == nil || got.SentAt == nil {
		t.Fatal("fresh floating offer must carry a new window")
	}
	if window := got.ExpiresAt.Sub(*got.SentAt); window != 7*24*time.Hour {
		t.Fatalf("window=%v want=%v", window, 7*24*time.Hour)
	}
	if got.UpdatedBy != SchedulerActor {
		t.Fatalf("updated by %q want %q", got.UpdatedBy, SchedulerActor)
	}
}

func TestSweepAutoAcceptsExpiredFloatingOffer(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusOfferSent,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10, BidPremium: f(0.9)})
	order.OfferStatus = entity.OfferSent
	past := time.Now().UTC().Add(-time.Hour)
	order.ExpiresAt = &past

	processed, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed=%d want=1", processed)
	}

	got := store.orders[order.ID]
	if got.Status != entity.StatusAccepted || got.OfferStatus != entity.OfferAccepted {
		t.Fatalf("state=%q/%q want accepted", got.Status, got.OfferStatus)
	}
	if !got.SpotsLocked {
		t.Fatal("auto-accept must capture current prices")
	}
	if got.TotalPrice == nil || *got.TotalPrice != 18000 {
		t.Fatalf("total=%v want=18000", got.TotalPrice)
	}
	if got.UpdatedBy != SchedulerActor {
		t.Fatalf("updated by %q want %q", got.UpdatedBy, SchedulerActor)
	}
}

func TestSweepFailureIsolation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	past := time.Now().UTC().Add(-time.Hour)

	bad := seedOrder(store, entity.StatusOfferSent,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 5})
	bad.OfferStatus = entity.OfferSent
	bad.ExpiresAt = &past

	good := seedOrder(store, entity.StatusOfferSent,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10})
	good.OfferStatus = entity.OfferSent
	good.ExpiresAt = &past

	store.failGet[bad.ID] = errors.New("row corrupted")

	processed, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep must not abort: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed=%d want=1", processed)
	}
	if store.orders[good.ID].Status != entity.StatusAccepted {
		t.Fatal("healthy order must still be resolved")
	}
}

func TestSweepSkipsRacedOrder(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusOfferSent,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10})
	order.OfferStatus = entity.OfferSent
	future := time.Now().UTC().Add(time.Hour)
	order.ExpiresAt = &future

	processed, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Fatalf("processed=%d want=0", processed)
	}
	if order.Status != entity.StatusOfferSent {
		t.Fatal("unexpired offer must be untouched")
	}
}

func TestCancelOrderIdempotent(t *testing.T) {
	store := newFakeStore()
	shipper := &fakeCarrier{}
	svc := newTestService(store, goldQuotes(), shipper)
	order := seedOrder(store, entity.StatusOfferSent,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10})
	order.OfferStatus = entity.OfferSent
	order.SpotsLocked = true
	store.orderSpots[order.ID] = []*entity.OrderSpot{{OrderID: order.ID, Metal: entity.MetalGold, BidSpot: 1900}}

	got, err := svc.CancelOrder(context.Background(), order.ID, CancelRequest{CarrierID: "ups", WeightOz: 32}, "alice")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != entity.StatusCancelled || got.OfferStatus != entity.OfferCancelled {
		t.Fatalf("state=%q/%q", got.Status, got.OfferStatus)
	}
	if got.SpotsLocked || len(store.orderSpots[order.ID]) != 0 {
		t.Fatal("cancel must release the price hold")
	}
	if n := len(store.shipments[order.ID]); n != 1 {
		t.Fatalf("shipments=%d want=1", n)
	}
	if store.shipments[order.ID][0].Direction != entity.ShipmentReturn {
		t.Fatal("return shipment expected")
	}

	// Second cancel is a no-op and must not book another return.
	got, err = svc.CancelOrder(context.Background(), order.ID, CancelRequest{CarrierID: "ups"}, "alice")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if got.Status != entity.StatusCancelled {
		t.Fatalf("status=%q", got.Status)
	}
	if n := len(store.shipments[order.ID]); n != 1 {
		t.Fatalf("shipments=%d want=1 after repeat cancel", n)
	}
	if shipper.labels != 1 {
		t.Fatalf("labels=%d want=1", shipper.labels)
	}
}

func TestCancelCompletedOrderRejected(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusCompleted)

	_, err := svc.CancelOrder(context.Background(), order.ID, CancelRequest{}, "alice")
	var appErr *errorbank.AppError
	if !errors.As(err, &appErr) || appErr.Kind() != errorbank.KindUnprocessableEntity {
		t.Fatalf("err=%v want invalid transition", err)
	}
}

func TestLockSpotsConflictWhenLocked(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusReceived)

	got, err := svc.LockSpots(context.Background(), order.ID, "admin")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if !got.SpotsLocked {
		t.Fatal("spots must be locked")
	}

	_, err = svc.LockSpots(context.Background(), order.ID, "admin")
	var appErr *errorbank.AppError
	if !errors.As(err, &appErr) || appErr.Kind() != errorbank.KindConflict {
		t.Fatalf("err=%v want conflict", err)
	}
}

func TestUnlockSpotsNoopWhenUnlocked(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusReceived)

	got, err := svc.UnlockSpots(context.Background(), order.ID, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SpotsLocked {
		t.Fatal("order must stay unlocked")
	}
}

func TestUpdateFees(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusReceived)

	got, err := svc.UpdateShippingFee(context.Background(), order.ID, 42.75, "admin")
	if err != nil {
		t.Fatalf("update shipping fee: %v", err)
	}
	if got.ShippingFeeActual != 42.75 {
		t.Fatalf("shipping fee = %v, want 42.75", got.ShippingFeeActual)
	}

	got, err = svc.UpdateRefinerFee(context.Background(), order.ID, 120, "admin")
	if err != nil {
		t.Fatalf("update refiner fee: %v", err)
	}
	if got.RefinerFee != 120 {
		t.Fatalf("refiner fee = %v, want 120", got.RefinerFee)
	}
	if got.ShippingFeeActual != 42.75 {
		t.Fatalf("shipping fee overwritten: %v", got.ShippingFeeActual)
	}

	if _, err := svc.UpdateShippingFee(context.Background(), order.ID, -1, "admin"); err == nil {
		t.Fatal("negative shipping fee must be rejected")
	}
	if _, err := svc.UpdateRefinerFee(context.Background(), order.ID, -1, "admin"); err == nil {
		t.Fatal("negative refiner fee must be rejected")
	}
}

func TestEnterRefinerActuals(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusAccepted,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10})
	item := order.Items[0]

	got, err := svc.EnterRefinerActuals(context.Background(), order.ID, item.ID, RefinerActuals{
		PostMeltActual: f(12),
		PurityActual:   f(0.75),
		RefinerPremium: f(0.95),
	}, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PostMeltActual == nil || *got.PostMeltActual != 12 {
		t.Fatalf("post melt=%v", got.PostMeltActual)
	}
	if got.RefinerPremium == nil || *got.RefinerPremium != 0.95 {
		t.Fatalf("refiner premium=%v", got.RefinerPremium)
	}
}

func TestEnterRefinerActualsRejectsProduct(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusAccepted,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeProduct, Metal: entity.MetalGold, ContentPerUnit: 1, Quantity: 2})

	_, err := svc.EnterRefinerActuals(context.Background(), order.ID, order.Items[0].ID, RefinerActuals{ContentActual: f(2)}, "admin")
	var appErr *errorbank.AppError
	if !errors.As(err, &appErr) || appErr.Kind() != errorbank.KindUnprocessableEntity {
		t.Fatalf("err=%v want invalid transition", err)
	}
}

func TestAddItemRejectedAfterAcceptance(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusAccepted)

	_, err := svc.AddItem(context.Background(), order.ID, &entity.PurchaseOrderItem{
		ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 1,
	}, "admin")
	var appErr *errorbank.AppError
	if !errors.As(err, &appErr) || appErr.Kind() != errorbank.KindUnprocessableEntity {
		t.Fatalf("err=%v want invalid transition", err)
	}
}

func TestTransitionGuards(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusInTransit)

	if _, err := svc.MarkReceived(context.Background(), order.ID, "admin"); err != nil {
		t.Fatalf("mark received: %v", err)
	}
	if _, err := svc.StartPayment(context.Background(), order.ID, "admin"); err == nil {
		t.Fatal("payment cannot start before acceptance")
	}
}

func TestOrderMetalsPrefersFrozenSnapshot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusOfferSent,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10, BidPremium: f(0.9), RefinerPremium: f(0.95)})
	order.SpotsLocked = true
	store.orderSpots[order.ID] = []*entity.OrderSpot{{OrderID: order.ID, Metal: entity.MetalGold, BidSpot: 1900, ScrapPercentage: 0.95}}
	store.refinerSpots[order.ID] = []*entity.RefinerSpot{{OrderID: order.ID, Metal: entity.MetalGold, BidSpot: 1910, ScrapPercentage: 0.95}}

	report, err := svc.OrderMetals(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Spots) != 1 || report.Spots[0].BidSpot != 1900 {
		t.Fatalf("spots=%+v want frozen bid 1900", report.Spots)
	}
	// Customer settles against the order snapshot: 10 * 0.9 * 1900.
	if got := report.Breakdown.Total.Customer.Profit; got < 17099.9 || got > 17100.1 {
		t.Fatalf("customer profit=%v want ~17100", got)
	}

	refiner, err := svc.RefinerMetals(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refiner.Spots) != 1 || refiner.Spots[0].BidSpot != 1910 {
		t.Fatalf("spots=%+v want refiner bid 1910", refiner.Spots)
	}
}

func TestOrderMetalsFloatsWhenUnlocked(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})
	order := seedOrder(store, entity.StatusReceived,
		&entity.PurchaseOrderItem{ItemType: entity.ItemTypeScrap, Metal: entity.MetalGold, Content: 10, BidPremium: f(0.9)})

	report, err := svc.OrderMetals(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Unlocked orders price against the live sheet, one snapshot per metal.
	if len(report.Spots) != 4 {
		t.Fatalf("spots=%d want=4", len(report.Spots))
	}
	if got := report.Breakdown.Total.Customer.Profit; got < 17999.9 || got > 18000.1 {
		t.Fatalf("customer profit=%v want ~18000", got)
	}
}

func TestGetNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, goldQuotes(), &fakeCarrier{})

	_, err := svc.Get(context.Background(), 404)
	var appErr *errorbank.AppError
	if !errors.As(err, &appErr) || appErr.Kind() != errorbank.KindNotFound {
		t.Fatalf("err=%v want not found", err)
	}
}
