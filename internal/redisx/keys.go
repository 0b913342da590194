package redisx

import (
	"fmt"
	"time"
)

const (
	// product:{productId} -> JSON product snapshot
	PrefixProduct = "product:"

	// cart:{sessionId} -> JSON list of cart items
	PrefixCart = "cart:"

	// order_status:{paymentId} -> {"paymentId": "...", "status": "...", "lastUpdated": "..."}
	KeyOrderStatus = "order_status:%s"

	// dedup:{service}:{id}; the stock consumer uses id = paymentId:lineIndex:productId
	KeyDedup = "dedup:%s:%s"

	// lock:{name} -> owner token
	KeyLock = "lock:%s"
)

var (
	TTLCart        = 60 * time.Minute
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func ProductKey(id string) string { return PrefixProduct + id }
func CartKey(sessionID string) string { return PrefixCart + sessionID }
func OrderStatusKey(paymentID string) string { return fmt.Sprintf(KeyOrderStatus, paymentID) }
func LockKey(name string) string { return fmt.Sprintf(KeyLock, name) }

// StockDedupKey marks one order line. The index keeps two lines for the
// same product apart.
func StockDedupKey(paymentID string, line int, productID string) string {
	return fmt.Sprintf(KeyDedup, "stock", fmt.Sprintf("%s:%d:%s", paymentID, line, productID))
}
