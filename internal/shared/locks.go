package shared

import "fmt"

// DocumentLockKey builds the redis key guarding one document against
// concurrent post, reverse or cancel requests.
func DocumentLockKey(kind string, id int64) string {
	return fmt.Sprintf("ledger:doc:%s:%d:lock", kind, id)
}

// PurchaseOrderLockKey builds the redis key guarding receipts against one order.
func PurchaseOrderLockKey(purchaseOrderID int64) string {
	return DocumentLockKey("po", purchaseOrderID)
}
