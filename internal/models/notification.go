package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CacheKeyPrefix namespaces cached notifications in Redis
const CacheKeyPrefix = "graph:notif:"

type ChangeType string

const (
	Created ChangeType = "created"
	Updated ChangeType = "updated"
	Deleted ChangeType = "deleted"
)

// Valid reports whether c is one of the change types the notifier emits
func (c ChangeType) Valid() bool {
	switch c {
	case Created, Updated, Deleted:
		return true
	default:
		return false
	}
}

var (
	ErrMissingField      = errors.New("missing required field")
	ErrUnknownChangeType = errors.New("unknown change type")
)

// ChangeNotification is one change event delivered by Microsoft Graph.
// It is never mutated after intake; duplicates may arrive on redelivery.
type ChangeNotification struct {
	// Identifies the subscription that produced the notification
	SubscriptionID string `json:"subscriptionId"`

	ChangeType ChangeType `json:"changeType"`

	// Path of the changed entity, e.g. "Users/{id}/Events/{id}"
	Resource string `json:"resource"`

	// Opaque payload; its shape depends on the resource type
	ResourceData json.RawMessage `json:"resourceData,omitempty"`

	// Shared secret supplied when the subscription was created
	ClientState string `json:"clientState,omitempty"`

	TenantID                       string `json:"tenantId,omitempty"`
	SubscriptionExpirationDateTime string `json:"subscriptionExpirationDateTime,omitempty"`

	// Receipt metadata assigned by the relay, not by the notifier
	ReceiptID  string    `json:"receiptId,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Validate checks if the notification has all required fields
func (n *ChangeNotification) Validate() error {
	if n.SubscriptionID == "" {
		return fmt.Errorf("%w: subscriptionId", ErrMissingField)
	}
	if n.ChangeType == "" {
		return fmt.Errorf("%w: changeType", ErrMissingField)
	}
	if n.Resource == "" {
		return fmt.Errorf("%w: resource", ErrMissingField)
	}
	if !n.ChangeType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownChangeType, n.ChangeType)
	}
	return nil
}

// Redacted returns a copy without the clientState secret, suitable for
// persisting or pushing to clients.
func (n ChangeNotification) Redacted() ChangeNotification {
	n.ClientState = ""
	return n
}

// CacheKey is the Redis key holding the latest notification for the resource
func (n *ChangeNotification) CacheKey() string {
	// Format: graph:notif:{resource}
	return CacheKeyPrefix + n.Resource
}

// NotificationBatch is the body of one delivery. Elements are kept raw so a
// single malformed element can be dropped without failing the batch.
type NotificationBatch struct {
	Value []json.RawMessage `json:"value"`
}

// DecodeBatch parses a delivery body. An empty body or an absent "value"
// field yields an empty batch.
func DecodeBatch(body []byte) (NotificationBatch, error) {
	var batch NotificationBatch
	if len(bytes.TrimSpace(body)) == 0 {
		return batch, nil
	}
	if err := json.Unmarshal(body, &batch); err != nil {
		return NotificationBatch{}, fmt.Errorf("failed to decode notification batch: %w", err)
	}
	return batch, nil
}

// DecodeNotification parses and validates one batch element
func DecodeNotification(raw json.RawMessage) (ChangeNotification, error) {
	var n ChangeNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return ChangeNotification{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	if err := n.Validate(); err != nil {
		return ChangeNotification{}, err
	}
	return n, nil
}
