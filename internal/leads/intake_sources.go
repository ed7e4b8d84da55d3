package leads

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIntakeSourceNotFound is returned when no active source matches a key.
var ErrIntakeSourceNotFound = errors.New("intake source not found")

// IntakeSource identifies an inbound lead source. The plaintext key is held
// by the source; only its hash is stored.
type IntakeSource struct {
	ID             uuid.UUID
	Name           string
	KeyHash        string
	KeyPrefix      string
	DefaultCountry string
	DefaultNiche   string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SourceRepository provides data access for intake sources.
type SourceRepository struct {
	pool *pgxpool.Pool
}

// NewSourceRepository creates a new intake source repository.
func NewSourceRepository(pool *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{pool: pool}
}

// GenerateIntakeKey creates a new random intake key and returns the plaintext
// key and its hash. The plaintext is returned only once.
func GenerateIntakeKey() (plaintext string, hash string, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}
	plaintext = "lfk_" + hex.EncodeToString(bytes)
	h := sha256.Sum256([]byte(plaintext))
	hash = hex.EncodeToString(h[:])
	prefix = plaintext[:12] // "lfk_" + 8 hex chars
	return plaintext, hash, prefix, nil
}

// HashKey hashes a plaintext intake key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// GetByHash retrieves an active intake source by its key hash.
func (r *SourceRepository) GetByHash(ctx context.Context, keyHash string) (IntakeSource, error) {
	var src IntakeSource
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, key_hash, key_prefix, default_country, default_niche,
		       is_active, created_at, updated_at
		FROM intake_sources
		WHERE key_hash = $1 AND is_active = true`,
		keyHash,
	).Scan(
		&src.ID, &src.Name, &src.KeyHash, &src.KeyPrefix, &src.DefaultCountry,
		&src.DefaultNiche, &src.IsActive, &src.CreatedAt, &src.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return IntakeSource{}, ErrIntakeSourceNotFound
	}
	return src, err
}
