package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/naturemedica/commerce/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const ordersCollection = "orders"

// ErrStatusConflict signals a compare-and-set miss: the order's status moved
// between read and write. Callers re-read and retry the transition.
var ErrStatusConflict = &domain.Error{Code: domain.ECONFLICT, Message: "Order status changed concurrently"}

// OrderRepository is the persistence port for the order aggregate.
type OrderRepository interface {
	// Create inserts a new order. The order id must be unique.
	Create(ctx context.Context, order *domain.Order) error

	// FindByOrderID fetches an order by its human-readable id.
	FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error)

	// FindByTrackingRef fetches the order whose tracking id, order id or
	// provider-side reference matches ref.
	FindByTrackingRef(ctx context.Context, ref string) (*domain.Order, error)

	// AttachShipment persists the shipment linkage of an order whose shipment
	// fields and Shipped history entry were just populated in memory. The
	// write succeeds only while the stored order has no tracking id and still
	// holds the expected status; the new history entry is appended, never
	// replacing entries written by concurrent transitions. A set tracking id
	// returns ErrAlreadyShipped; a moved status returns ErrStatusConflict.
	AttachShipment(ctx context.Context, order *domain.Order, expected domain.OrderStatus) error

	// AppendStatus moves an order from expected to the entry's status,
	// appending the history entry. A compare-and-set miss returns
	// ErrStatusConflict.
	AppendStatus(ctx context.Context, orderID string, expected domain.OrderStatus, entry domain.StatusEntry) error

	// SetTrackingBackfill links a tracking id onto an order that was shipped
	// out of band, without touching status or history.
	SetTrackingBackfill(ctx context.Context, orderID, trackingID string, provider domain.CourierCode) error
}

// MongoOrderRepository implements OrderRepository on MongoDB.
type MongoOrderRepository struct {
	collection *mongo.Collection
}

var _ OrderRepository = (*MongoOrderRepository)(nil)

// NewMongoOrderRepository creates an order repository backed by the given client.
func NewMongoOrderRepository(client *Client) *MongoOrderRepository {
	return &MongoOrderRepository{collection: client.Collection(ordersCollection)}
}

func (r *MongoOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	const op = "store.order_create"

	if order.ID == "" {
		order.ID = primitive.NewObjectID().Hex()
	}

	_, err := r.collection.InsertOne(ctx, order)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &domain.Error{Code: domain.ECONFLICT, Op: op, Message: fmt.Sprintf("Order %s already exists", order.OrderID)}
		}
		return domain.Internal(err, op, "database operation failed")
	}
	return nil
}

func (r *MongoOrderRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	const op = "store.order_find"

	var order domain.Order
	err := r.collection.FindOne(ctx, bson.M{"order_id": orderID}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.Internal(err, op, "database operation failed")
	}
	return &order, nil
}

func (r *MongoOrderRepository) FindByTrackingRef(ctx context.Context, ref string) (*domain.Order, error) {
	const op = "store.order_find_tracking"

	filter := bson.M{"$or": []bson.M{
		{"tracking_id": ref},
		{"order_id": ref},
		{"shiprocket.awb": ref},
		{"ekart.order_number": ref},
		{"delhivery.reference_no": ref},
	}}

	var order domain.Order
	err := r.collection.FindOne(ctx, filter).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.Internal(err, op, "database operation failed")
	}
	return &order, nil
}

func (r *MongoOrderRepository) AttachShipment(ctx context.Context, order *domain.Order, expected domain.OrderStatus) error {
	const op = "store.order_attach_shipment"

	if order.TrackingID == "" {
		return domain.Invalid(op, "order has no tracking id to persist")
	}
	if len(order.StatusHistory) == 0 {
		return domain.Invalid(op, "order has no history entry to persist")
	}
	entry := order.StatusHistory[len(order.StatusHistory)-1]

	set := bson.M{
		"tracking_id":       order.TrackingID,
		"shipping_provider": order.Provider,
		"order_status":      order.Status,
		"updated_at":        time.Now().UTC(),
	}
	if order.CourierName != "" {
		set["courier_name"] = order.CourierName
	}
	switch {
	case order.Shiprocket != nil:
		set["shiprocket"] = order.Shiprocket
	case order.Ekart != nil:
		set["ekart"] = order.Ekart
	case order.Delhivery != nil:
		set["delhivery"] = order.Delhivery
	}

	// The filter admits the write only while no tracking id is stored and the
	// status has not moved since the caller read the order, so a concurrent
	// double-ship can never overwrite an existing linkage and a concurrent
	// transition (a cancel landing during the courier call) is never erased.
	filter := bson.M{
		"order_id":     order.OrderID,
		"order_status": expected,
		"tracking_id":  bson.M{"$exists": false},
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"status_history": entry},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return domain.Internal(err, op, "database operation failed")
	}
	if result.MatchedCount == 0 {
		stored, ferr := r.FindByOrderID(ctx, order.OrderID)
		if ferr != nil {
			return ferr
		}
		if stored.HasShipment() {
			return domain.ErrAlreadyShipped
		}
		return ErrStatusConflict
	}
	return nil
}

func (r *MongoOrderRepository) AppendStatus(ctx context.Context, orderID string, expected domain.OrderStatus, entry domain.StatusEntry) error {
	const op = "store.order_append_status"

	filter := bson.M{"order_id": orderID, "order_status": expected}
	update := bson.M{
		"$set": bson.M{
			"order_status": entry.Status,
			"updated_at":   time.Now().UTC(),
		},
		"$push": bson.M{"status_history": entry},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return domain.Internal(err, op, "database operation failed")
	}
	if result.MatchedCount == 0 {
		if _, ferr := r.FindByOrderID(ctx, orderID); ferr != nil {
			return ferr
		}
		return ErrStatusConflict
	}
	return nil
}

func (r *MongoOrderRepository) SetTrackingBackfill(ctx context.Context, orderID, trackingID string, provider domain.CourierCode) error {
	const op = "store.order_backfill_tracking"

	filter := bson.M{
		"order_id": orderID,
		"tracking_id": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{
		"tracking_id":       trackingID,
		"shipping_provider": provider,
		"updated_at":        time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return domain.Internal(err, op, "database operation failed")
	}
	if result.MatchedCount == 0 {
		// Already linked or missing; backfill is best effort either way.
		if _, ferr := r.FindByOrderID(ctx, orderID); ferr != nil {
			return ferr
		}
	}
	return nil
}
