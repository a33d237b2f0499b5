package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/storage"
)

// Record store keys and collections.
const (
	collectionFiles  = "files"
	collectionUsers  = "users"
	collectionClones = "clones"
	keySettings      = "settings"
)

// FileRepository persists the corpus.
type FileRepository struct {
	store storage.Store
}

// NewFileRepository constructs a file repository.
func NewFileRepository(store storage.Store) *FileRepository {
	return &FileRepository{store: store}
}

// All returns every file record in ingest order.
func (r *FileRepository) All(ctx context.Context) ([]models.FileRecord, error) {
	var files []models.FileRecord
	if err := r.store.List(ctx, collectionFiles, &files); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// Append writes one new record.
func (r *FileRepository) Append(ctx context.Context, file models.FileRecord) error {
	if err := r.store.Append(ctx, collectionFiles, file); err != nil {
		return fmt.Errorf("append file %s: %w", file.ID, err)
	}
	return nil
}

// ReplaceAll swaps the whole corpus.
func (r *FileRepository) ReplaceAll(ctx context.Context, files []models.FileRecord) error {
	if err := r.store.Replace(ctx, collectionFiles, files); err != nil {
		return fmt.Errorf("replace files: %w", err)
	}
	return nil
}

// SettingsRepository persists the access policy document.
type SettingsRepository struct {
	store storage.Store
}

// NewSettingsRepository constructs a settings repository.
func NewSettingsRepository(store storage.Store) *SettingsRepository {
	return &SettingsRepository{store: store}
}

// Get returns the stored policy or appErrors.ErrNotFound when none was saved yet.
func (r *SettingsRepository) Get(ctx context.Context) (*models.AccessPolicy, error) {
	var policy models.AccessPolicy
	if err := r.store.Get(ctx, keySettings, &policy); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &policy, nil
}

// Save overwrites the stored policy.
func (r *SettingsRepository) Save(ctx context.Context, policy models.AccessPolicy) error {
	if err := r.store.Set(ctx, keySettings, policy); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// UserRepository persists users seen by any bot.
type UserRepository struct {
	store storage.Store
}

// NewUserRepository constructs a user repository.
func NewUserRepository(store storage.Store) *UserRepository {
	return &UserRepository{store: store}
}

// List returns every recorded user.
func (r *UserRepository) List(ctx context.Context) ([]models.BotUser, error) {
	var users []models.BotUser
	if err := r.store.List(ctx, collectionUsers, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Append records a new user.
func (r *UserRepository) Append(ctx context.Context, user models.BotUser) error {
	if err := r.store.Append(ctx, collectionUsers, user); err != nil {
		return fmt.Errorf("append user %d: %w", user.ID, err)
	}
	return nil
}

// BotRepository persists cloned bot registrations.
type BotRepository struct {
	store storage.Store
}

// NewBotRepository constructs a bot repository.
func NewBotRepository(store storage.Store) *BotRepository {
	return &BotRepository{store: store}
}

// List returns clones in creation order.
func (r *BotRepository) List(ctx context.Context) ([]models.ClonedBot, error) {
	var bots []models.ClonedBot
	if err := r.store.List(ctx, collectionClones, &bots); err != nil {
		return nil, fmt.Errorf("list clones: %w", err)
	}
	return bots, nil
}

// Append registers a clone.
func (r *BotRepository) Append(ctx context.Context, bot models.ClonedBot) error {
	if err := r.store.Append(ctx, collectionClones, bot); err != nil {
		return fmt.Errorf("append clone %s: %w", bot.ID, err)
	}
	return nil
}

// ReplaceAll rewrites the registry.
func (r *BotRepository) ReplaceAll(ctx context.Context, bots []models.ClonedBot) error {
	if err := r.store.Replace(ctx, collectionClones, bots); err != nil {
		return fmt.Errorf("replace clones: %w", err)
	}
	return nil
}
