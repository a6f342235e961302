package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"

	"github.com/hushnetwork/node-cache/internal/domain"
)

// ErrNotFound is returned by a repository Get when the row does not exist.
var ErrNotFound = errors.New("store: not found")

// ProfileRepo persists registered identities.
type ProfileRepo struct {
	t *Transactor
}

// NewProfileRepo constructs a ProfileRepo over t.
func NewProfileRepo(t *Transactor) *ProfileRepo { return &ProfileRepo{t: t} }

// Get fetches one profile by address.
func (r *ProfileRepo) Get(ctx context.Context, address domain.Address) (domain.Profile, error) {
	row := r.t.DBTX().QueryRow(ctx, `
		SELECT address, alias, short_alias, public_encryption_key, is_public, block_index
		FROM profiles WHERE address = $1`, string(address))

	var p domain.Profile
	var addr string
	if err := row.Scan(&addr, &p.Alias, &p.ShortAlias, &p.PublicEncryptionKey, &p.IsPublic, &p.BlockIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, ErrNotFound
		}
		return domain.Profile{}, fmt.Errorf("querying profile: %w", err)
	}
	p.Address = domain.Address(addr)
	return p, nil
}

// GetMany resolves a batch of addresses in one round trip, skipping
// addresses with no matching row.
func (r *ProfileRepo) GetMany(ctx context.Context, addresses []domain.Address) (map[domain.Address]domain.Profile, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	raw := make([]string, len(addresses))
	for i, a := range addresses {
		raw[i] = string(a)
	}
	rows, err := r.t.DBTX().Query(ctx, `
		SELECT address, alias, short_alias, public_encryption_key, is_public, block_index
		FROM profiles WHERE address = ANY($1)`, raw)
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Address]domain.Profile, len(addresses))
	for rows.Next() {
		var p domain.Profile
		var addr string
		if err := rows.Scan(&addr, &p.Alias, &p.ShortAlias, &p.PublicEncryptionKey, &p.IsPublic, &p.BlockIndex); err != nil {
			return nil, fmt.Errorf("scanning profile row: %w", err)
		}
		p.Address = domain.Address(addr)
		out[p.Address] = p
	}
	return out, rows.Err()
}

// Upsert writes or replaces a profile, called on registration and on every
// identity-updated event.
func (r *ProfileRepo) Upsert(ctx context.Context, p domain.Profile) error {
	_, err := r.t.DBTX().Exec(ctx, `
		INSERT INTO profiles (address, alias, short_alias, public_encryption_key, is_public, block_index)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			alias = EXCLUDED.alias,
			short_alias = EXCLUDED.short_alias,
			public_encryption_key = EXCLUDED.public_encryption_key,
			is_public = EXCLUDED.is_public,
			block_index = EXCLUDED.block_index`,
		string(p.Address), p.Alias, p.ShortAlias, p.PublicEncryptionKey, p.IsPublic, int64(p.BlockIndex))
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}
