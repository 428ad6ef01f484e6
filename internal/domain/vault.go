package domain

import "time"

// Vault item types.
const (
	ItemTypePassword = "password"
	ItemTypeNote     = "note"
	ItemTypeOther    = "other"
)

// History actions recorded per vault item.
const (
	VaultActionCreated  = "created"
	VaultActionUpdated  = "updated"
	VaultActionAccessed = "accessed"
	VaultActionDeleted  = "deleted"
	VaultActionRestored = "restored"
)

// VaultItem is one client-encrypted secret. The server never sees plaintext:
// the ciphertext is opaque, produced and consumed entirely on the client.
// The blob itself lives in object storage under BlobKey; this record holds
// metadata only.
type VaultItem struct {
	ItemID              string     `json:"id" dynamodbav:"item_id"`
	UserID              string     `json:"user_id" dynamodbav:"user_id"`
	Title               string     `json:"title" dynamodbav:"title"`
	BlobKey             string     `json:"-" dynamodbav:"blob_key"`
	EncryptionAlgorithm string     `json:"encryption_algorithm" dynamodbav:"encryption_algorithm"`
	ItemType            string     `json:"item_type" dynamodbav:"item_type"`
	Description         string     `json:"description,omitempty" dynamodbav:"description"`
	LastAccessedAt      *time.Time `json:"last_accessed,omitempty" dynamodbav:"last_accessed_at"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty" dynamodbav:"expires_at"`
	SoftDeleted         bool       `json:"soft_deleted" dynamodbav:"soft_deleted"`
	CreatedAt           time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt           time.Time  `json:"updated" dynamodbav:"updated_at"`

	// EncryptedData is populated from the blob store on reads and never
	// persisted in the metadata record.
	EncryptedData string `json:"encrypted_data,omitempty" dynamodbav:"-"`
}

// IsExpired reports whether the optional item expiry has passed.
func (v *VaultItem) IsExpired(now time.Time) bool {
	return v.ExpiresAt != nil && now.After(*v.ExpiresAt)
}

// VaultItemHistory is one append-only audit record for a vault item.
type VaultItemHistory struct {
	HistoryID string            `json:"id" dynamodbav:"history_id"`
	ItemID    string            `json:"item_id" dynamodbav:"item_id"`
	UserID    string            `json:"user_id" dynamodbav:"user_id"`
	Action    string            `json:"action" dynamodbav:"action"`
	Details   map[string]string `json:"details,omitempty" dynamodbav:"details"`
	Timestamp time.Time         `json:"timestamp" dynamodbav:"timestamp"`
}

type CreateVaultItemRequest struct {
	Title               string  `json:"title" validate:"required,max=255"`
	EncryptedData       string  `json:"encrypted_data" validate:"required"`
	EncryptionAlgorithm string  `json:"encryption_algorithm"`
	ItemType            string  `json:"item_type" validate:"omitempty,oneof=password note other"`
	Description         string  `json:"description"`
	ExpiresAt           *string `json:"expires_at"` // RFC 3339
}

type UpdateVaultItemRequest struct {
	Title               *string `json:"title" validate:"omitempty,max=255"`
	EncryptedData       *string `json:"encrypted_data"`
	EncryptionAlgorithm *string `json:"encryption_algorithm"`
	ItemType            *string `json:"item_type" validate:"omitempty,oneof=password note other"`
	Description         *string `json:"description"`
	ExpiresAt           *string `json:"expires_at"` // RFC 3339
}
