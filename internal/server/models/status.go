package models

import "fmt"

// DeliveryStatus is the position of a message in the delivery lifecycle.
//
// The numeric codes are ordered and a message's status only ever increases,
// so a comparison on the code is the whole monotonicity check. The gap before
// the deletion-list codes is deliberate and leaves room for future states.
type DeliveryStatus int32

const (
	// StatusCreated: the message has just been stored by the server.
	StatusCreated DeliveryStatus = 0

	// StatusNotified: the addressee's device has received the delivery
	// notification and knows a message is waiting for download.
	StatusNotified DeliveryStatus = 1

	// StatusDelivered: the addressee's device has downloaded the payload to
	// local storage. The server copy will shortly be removed by policy.
	StatusDelivered DeliveryStatus = 2

	// StatusRead: the addressee confirmed the message was presented to the
	// user. Depending on privacy settings and client capability this may
	// never be sent; its absence is not evidence the message was unread.
	StatusRead DeliveryStatus = 3

	// StatusEnterDeletionList: undelivered past the first timeout; the
	// delivery notification has been re-dispatched.
	StatusEnterDeletionList DeliveryStatus = 80

	// StatusNearEndDeletionList: very close to deletion without delivery;
	// the delivery notification has been re-dispatched one more time.
	StatusNearEndDeletionList DeliveryStatus = 85

	// StatusDeletedWithoutDelivery: deleted without being delivered, blob
	// reference released, deletion notice dispatched. Terminal.
	StatusDeletedWithoutDelivery DeliveryStatus = 90
)

// Delivered reports whether the payload reached the addressee's device. For
// such messages the deletion pipeline is moot and must not be applied.
func (s DeliveryStatus) Delivered() bool {
	return s == StatusDelivered || s == StatusRead
}

// Terminal reports whether no further transition is possible.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusRead || s == StatusDeletedWithoutDelivery
}

// Valid reports whether s is one of the defined codes.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusNotified, StatusDelivered, StatusRead,
		StatusEnterDeletionList, StatusNearEndDeletionList, StatusDeletedWithoutDelivery:
		return true
	}
	return false
}

func (s DeliveryStatus) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusNotified:
		return "NOTIFIED"
	case StatusDelivered:
		return "DELIVERED"
	case StatusRead:
		return "READ"
	case StatusEnterDeletionList:
		return "ENTER_DELETION_LIST"
	case StatusNearEndDeletionList:
		return "NEAR_END_DELETION_LIST"
	case StatusDeletedWithoutDelivery:
		return "DELETED_WITHOUT_DELIVERY"
	default:
		return fmt.Sprintf("DeliveryStatus(%d)", int32(s))
	}
}
