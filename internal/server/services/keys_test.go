package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/server/access"
	"github.com/vpetrenko/vaultd/internal/server/models"
)

func validUserKey() *models.UserKey {
	return &models.UserKey{
		UUID:       "key-uuid-1",
		Public:     "pub",
		Private:    "wrapped-priv",
		Salt:       "salt",
		IV:         "iv",
		Iterations: 4000,
		Version:    1,
	}
}

func TestKeyStore_Validation(t *testing.T) {
	rm := newFakeRepoManager()
	svc := NewKeyService(newSQLMockDB(t), rm)
	ctx := context.Background()
	p := access.Principal{UserID: "u1"}

	tests := []struct {
		name   string
		mutate func(k *models.UserKey)
	}{
		{"empty public", func(k *models.UserKey) { k.Public = "" }},
		{"empty private", func(k *models.UserKey) { k.Private = "" }},
		{"empty salt", func(k *models.UserKey) { k.Salt = "" }},
		{"empty iv", func(k *models.UserKey) { k.IV = "" }},
		{"empty uuid", func(k *models.UserKey) { k.UUID = "" }},
		{"weak kdf", func(k *models.UserKey) { k.Iterations = 3999 }},
		{"zero version", func(k *models.UserKey) { k.Version = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k := validUserKey()
			tc.mutate(k)
			_, err := svc.Store(ctx, p, k)
			require.ErrorIs(t, err, common.ErrorValidation)
		})
	}
}

func TestKeyStore_FirstKeyBecomesCurrent(t *testing.T) {
	rm := newFakeRepoManager()
	svc := NewKeyService(newSQLMockDB(t), rm)
	ctx := context.Background()
	p := access.Principal{UserID: "u1"}

	stored, err := svc.Store(ctx, p, validUserKey())
	require.NoError(t, err)
	require.True(t, stored.Current)

	got, err := svc.GetOwn(ctx, p)
	require.NoError(t, err)
	require.Equal(t, stored.ID, got.ID)
}

func TestKeyStore_IdempotentOnIdenticalPrivateMaterial(t *testing.T) {
	rm := newFakeRepoManager()
	svc := NewKeyService(newSQLMockDB(t), rm)
	ctx := context.Background()
	p := access.Principal{UserID: "u1"}

	first, err := svc.Store(ctx, p, validUserKey())
	require.NoError(t, err)
	require.NotNil(t, first)

	// the second identical submission stores nothing and says so
	again, err := svc.Store(ctx, p, validUserKey())
	require.NoError(t, err)
	require.Nil(t, again)
	require.Len(t, rm.store.keys, 1)

	got, err := svc.GetOwn(ctx, p)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.True(t, got.Current)
}

func TestKeyStore_RotationDemotesAndFlagsVaults(t *testing.T) {
	rm := newFakeRepoManager()
	db := newSQLMockDB(t)
	keySvc := NewKeyService(db, rm)
	vaultSvc := NewVaultService(db, rm)
	ctx := context.Background()
	p := access.Principal{UserID: "u1"}

	vault, err := vaultSvc.CreateVault(ctx, p, "v", "", "wrapped")
	require.NoError(t, err)

	first, err := keySvc.Store(ctx, p, validUserKey())
	require.NoError(t, err)

	rotated := validUserKey()
	rotated.UUID = "key-uuid-2"
	rotated.Private = "wrapped-priv-2"
	rotated.Version = 2
	second, err := keySvc.Store(ctx, p, rotated)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	old := rm.store.keys[first.ID]
	require.False(t, old.Current)

	v, err := rm.Vaults(nil).GetByID(ctx, vault.ID)
	require.NoError(t, err)
	require.True(t, v.ReencryptRequired)
}

func TestKeyStore_RequiresPrincipal(t *testing.T) {
	rm := newFakeRepoManager()
	svc := NewKeyService(newSQLMockDB(t), rm)

	_, err := svc.Store(context.Background(), access.Principal{}, validUserKey())
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestPublicKey_ReturnsCurrentOnly(t *testing.T) {
	rm := newFakeRepoManager()
	svc := NewKeyService(newSQLMockDB(t), rm)
	ctx := context.Background()

	_, err := svc.Store(ctx, access.Principal{UserID: "u1"}, validUserKey())
	require.NoError(t, err)

	pub, err := svc.PublicKey(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "pub", pub)

	_, err = svc.PublicKey(ctx, "nobody")
	require.ErrorIs(t, err, common.ErrorNotFound)
}
