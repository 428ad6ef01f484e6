package vault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/go-vault-api/internal/domain"
	"github.com/go-vault-api/internal/pkg/id"
)

const defaultEncryptionAlgorithm = "AES-256-GCM"

type itemStore interface {
	Put(ctx context.Context, v *domain.VaultItem) error
	Get(ctx context.Context, itemID string) (*domain.VaultItem, error)
	ListByUser(ctx context.Context, userID string, deleted bool) ([]domain.VaultItem, error)
	Update(ctx context.Context, itemID string, updates map[string]interface{}) error
	SetSoftDeleted(ctx context.Context, itemID string, deleted bool) error
	TouchLastAccessed(ctx context.Context, itemID string, at time.Time) error
	Delete(ctx context.Context, itemID string) error
}

type historyStore interface {
	Put(ctx context.Context, h *domain.VaultItemHistory) error
	ListByItem(ctx context.Context, itemID string) ([]domain.VaultItemHistory, error)
}

type blobStore interface {
	PutBlob(ctx context.Context, key, ciphertext string) error
	GetBlob(ctx context.Context, key string) (string, error)
	DeleteBlob(ctx context.Context, key string) error
}

type Service interface {
	Create(ctx context.Context, userID string, req domain.CreateVaultItemRequest) (*domain.VaultItem, error)
	Get(ctx context.Context, userID, itemID string) (*domain.VaultItem, error)
	List(ctx context.Context, userID string) ([]domain.VaultItem, error)
	ListDeleted(ctx context.Context, userID string) ([]domain.VaultItem, error)
	Update(ctx context.Context, userID, itemID string, req domain.UpdateVaultItemRequest) (*domain.VaultItem, error)
	Delete(ctx context.Context, userID, itemID string) error
	Restore(ctx context.Context, userID, itemID string) (*domain.VaultItem, error)
	Purge(ctx context.Context, userID, itemID string) error
	History(ctx context.Context, userID, itemID string) ([]domain.VaultItemHistory, error)
}

type service struct {
	items   itemStore
	history historyStore
	blobs   blobStore
	nowFn   func() time.Time
}

func NewService(items itemStore, history historyStore, blobs blobStore) Service {
	return &service{
		items:   items,
		history: history,
		blobs:   blobs,
		nowFn:   time.Now,
	}
}

func blobKey(userID, itemID string) string {
	return fmt.Sprintf("vault/%s/%s", userID, itemID)
}

func (s *service) Create(ctx context.Context, userID string, req domain.CreateVaultItemRequest) (*domain.VaultItem, error) {
	expiresAt, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	now := s.nowFn().UTC()
	item := &domain.VaultItem{
		ItemID:              uuid.NewString(),
		UserID:              userID,
		Title:               req.Title,
		EncryptionAlgorithm: req.EncryptionAlgorithm,
		ItemType:            req.ItemType,
		Description:         req.Description,
		ExpiresAt:           expiresAt,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if item.EncryptionAlgorithm == "" {
		item.EncryptionAlgorithm = defaultEncryptionAlgorithm
	}
	if item.ItemType == "" {
		item.ItemType = domain.ItemTypePassword
	}
	item.BlobKey = blobKey(userID, item.ItemID)

	if err := s.blobs.PutBlob(ctx, item.BlobKey, req.EncryptedData); err != nil {
		return nil, fmt.Errorf("store ciphertext: %w", err)
	}
	if err := s.items.Put(ctx, item); err != nil {
		return nil, err
	}

	s.record(ctx, item, domain.VaultActionCreated, nil)
	item.EncryptedData = req.EncryptedData
	return item, nil
}

// Get returns the item with its ciphertext and stamps the access. Reads are
// audited like writes.
func (s *service) Get(ctx context.Context, userID, itemID string) (*domain.VaultItem, error) {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if item.SoftDeleted {
		return nil, fmt.Errorf("vault item deleted: %w", domain.ErrNotFound)
	}

	data, err := s.blobs.GetBlob(ctx, item.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("load ciphertext: %w", err)
	}
	item.EncryptedData = data

	now := s.nowFn().UTC()
	if err := s.items.TouchLastAccessed(ctx, itemID, now); err != nil {
		slog.Warn("failed to stamp vault item access", "item_id", itemID, "err", err)
	}
	item.LastAccessedAt = &now
	s.record(ctx, item, domain.VaultActionAccessed, nil)

	return item, nil
}

func (s *service) List(ctx context.Context, userID string) ([]domain.VaultItem, error) {
	return s.items.ListByUser(ctx, userID, false)
}

func (s *service) ListDeleted(ctx context.Context, userID string) ([]domain.VaultItem, error) {
	return s.items.ListByUser(ctx, userID, true)
}

func (s *service) Update(ctx context.Context, userID, itemID string, req domain.UpdateVaultItemRequest) (*domain.VaultItem, error) {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if item.SoftDeleted {
		return nil, fmt.Errorf("vault item deleted: %w", domain.ErrNotFound)
	}

	updates := map[string]interface{}{}
	changed := map[string]string{}
	if req.Title != nil {
		updates["title"] = *req.Title
		changed["title"] = "changed"
	}
	if req.EncryptionAlgorithm != nil {
		updates["encryption_algorithm"] = *req.EncryptionAlgorithm
		changed["encryption_algorithm"] = "changed"
	}
	if req.ItemType != nil {
		updates["item_type"] = *req.ItemType
		changed["item_type"] = "changed"
	}
	if req.Description != nil {
		updates["description"] = *req.Description
		changed["description"] = "changed"
	}
	if req.ExpiresAt != nil {
		expiresAt, err := parseExpiry(req.ExpiresAt)
		if err != nil {
			return nil, err
		}
		updates["expires_at"] = expiresAt
		changed["expires_at"] = "changed"
	}

	if req.EncryptedData != nil {
		if err := s.blobs.PutBlob(ctx, item.BlobKey, *req.EncryptedData); err != nil {
			return nil, fmt.Errorf("store ciphertext: %w", err)
		}
		changed["encrypted_data"] = "changed"
	}

	if len(updates) > 0 {
		if err := s.items.Update(ctx, itemID, updates); err != nil {
			return nil, err
		}
	}
	if len(changed) == 0 {
		return item, nil
	}

	s.record(ctx, item, domain.VaultActionUpdated, changed)

	fresh, err := s.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if req.EncryptedData != nil {
		fresh.EncryptedData = *req.EncryptedData
	}
	return fresh, nil
}

// Delete soft-deletes the item. The ciphertext stays in the blob store so the
// item can be restored.
func (s *service) Delete(ctx context.Context, userID, itemID string) error {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if item.SoftDeleted {
		return fmt.Errorf("vault item already deleted: %w", domain.ErrNotFound)
	}
	if err := s.items.SetSoftDeleted(ctx, itemID, true); err != nil {
		return err
	}
	s.record(ctx, item, domain.VaultActionDeleted, nil)
	return nil
}

func (s *service) Restore(ctx context.Context, userID, itemID string) (*domain.VaultItem, error) {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if !item.SoftDeleted {
		return nil, fmt.Errorf("vault item is not deleted: %w", domain.ErrBadRequest)
	}
	if err := s.items.SetSoftDeleted(ctx, itemID, false); err != nil {
		return nil, err
	}
	item.SoftDeleted = false
	s.record(ctx, item, domain.VaultActionRestored, nil)
	return item, nil
}

// Purge permanently removes a soft-deleted item and its ciphertext.
func (s *service) Purge(ctx context.Context, userID, itemID string) error {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if !item.SoftDeleted {
		return fmt.Errorf("only deleted items can be purged: %w", domain.ErrBadRequest)
	}
	if err := s.blobs.DeleteBlob(ctx, item.BlobKey); err != nil {
		return fmt.Errorf("delete ciphertext: %w", err)
	}
	return s.items.Delete(ctx, itemID)
}

func (s *service) History(ctx context.Context, userID, itemID string) ([]domain.VaultItemHistory, error) {
	if _, err := s.ownedItem(ctx, userID, itemID); err != nil {
		return nil, err
	}
	return s.history.ListByItem(ctx, itemID)
}

// ownedItem loads the item and enforces ownership. Items belonging to someone
// else look like they don't exist.
func (s *service) ownedItem(ctx context.Context, userID, itemID string) (*domain.VaultItem, error) {
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, fmt.Errorf("vault item not found: %w", domain.ErrNotFound)
	}
	return item, nil
}

func (s *service) record(ctx context.Context, item *domain.VaultItem, action string, details map[string]string) {
	h := &domain.VaultItemHistory{
		HistoryID: id.New(),
		ItemID:    item.ItemID,
		UserID:    item.UserID,
		Action:    action,
		Details:   details,
		Timestamp: s.nowFn().UTC(),
	}
	if err := s.history.Put(ctx, h); err != nil {
		slog.Warn("failed to record vault history", "item_id", item.ItemID, "action", action, "err", err)
	}
}

func parseExpiry(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, fmt.Errorf("expires_at must be RFC 3339: %w", domain.ErrBadRequest)
	}
	return &t, nil
}
