package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/server/access"
	"github.com/vpetrenko/vaultd/internal/server/config"
	"github.com/vpetrenko/vaultd/internal/server/models"
)

func newExchangeFixture(t *testing.T) (*ExchangeService, *fakeRepoManager) {
	t.Helper()
	rm := newFakeRepoManager()
	cfg := &config.Config{
		ShareGraceOffset: 24 * time.Hour,
		InboxExpiration:  7 * 24 * time.Hour,
	}
	return NewExchangeService(newSQLMockDB(t), rm, cfg), rm
}

func registerUser(t *testing.T, rm *fakeRepoManager, login string) *models.User {
	t.Helper()
	u, err := rm.Users(nil).Create(context.Background(), &models.User{Login: login})
	require.NoError(t, err)
	return u
}

func TestInboxSubmit_FirstWriteCreatesLockedRow(t *testing.T) {
	svc, rm := newExchangeFixture(t)
	ctx := context.Background()
	user := registerUser(t, rm, "alice")

	err := svc.InboxSubmit(ctx, user.InboxToken, InboxDeposit{Secret: "ct", Key: "k", IV: "iv"})
	require.NoError(t, err)

	inbox, err := rm.Inboxes(nil).FindByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 0, inbox.Accesses)
	require.Empty(t, inbox.Secret, "a locked inbox must not accept the payload")
}

func TestInboxSubmit_UnknownTokenSilentlySucceeds(t *testing.T) {
	svc, rm := newExchangeFixture(t)
	ctx := context.Background()

	err := svc.InboxSubmit(ctx, "no-such-token", InboxDeposit{Secret: "ct"})
	require.NoError(t, err)
	require.Empty(t, rm.store.inboxes)
}

func TestInboxSubmit_OpenInboxConsumesPermitAndLogs(t *testing.T) {
	svc, rm := newExchangeFixture(t)
	ctx := context.Background()
	user := registerUser(t, rm, "alice")
	p := access.Principal{UserID: user.ID}

	_, err := svc.InboxStoreOwn(ctx, p, "drop here", 2, time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, svc.InboxSubmit(ctx, user.InboxToken, InboxDeposit{Secret: "ct-1", Key: "k", IV: "iv", Actor: "bob"}))
	require.NoError(t, svc.InboxSubmit(ctx, user.InboxToken, InboxDeposit{Secret: "ct-2", Key: "k", IV: "iv"}))

	inbox, err := svc.InboxGetOwn(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 0, inbox.Accesses)
	require.Equal(t, "ct-2", inbox.Secret, "later deposits overwrite earlier ones")
	require.Len(t, rm.store.inboxLog, 2)

	// permits exhausted: the next write is a silent no-op
	require.NoError(t, svc.InboxSubmit(ctx, user.InboxToken, InboxDeposit{Secret: "ct-3"}))
	inbox, _ = svc.InboxGetOwn(ctx, p)
	require.Equal(t, "ct-2", inbox.Secret)
	require.Len(t, rm.store.inboxLog, 2)
}

func TestInboxSubmit_ExpiredInboxSilentlyIgnores(t *testing.T) {
	svc, rm := newExchangeFixture(t)
	ctx := context.Background()
	user := registerUser(t, rm, "alice")
	p := access.Principal{UserID: user.ID}

	_, err := svc.InboxStoreOwn(ctx, p, "", 5, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, svc.InboxSubmit(ctx, user.InboxToken, InboxDeposit{Secret: "ct"}))
	inbox, _ := svc.InboxGetOwn(ctx, p)
	require.Empty(t, inbox.Secret)
	require.Equal(t, 5, inbox.Accesses)
}

func TestInboxSubmit_RejectsAmbiguousPayload(t *testing.T) {
	svc, _ := newExchangeFixture(t)
	ctx := context.Background()

	err := svc.InboxSubmit(ctx, "t", InboxDeposit{})
	require.ErrorIs(t, err, common.ErrorValidation)

	err = svc.InboxSubmit(ctx, "t", InboxDeposit{Secret: "ct", SecretFile: []byte("f")})
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestInboxStatus_UniformForUnknownAndClosed(t *testing.T) {
	svc, rm := newExchangeFixture(t)
	ctx := context.Background()
	user := registerUser(t, rm, "alice")
	p := access.Principal{UserID: user.ID}

	unknown, err := svc.InboxStatus(ctx, "no-such-token")
	require.NoError(t, err)
	require.False(t, unknown.Open)
	require.Empty(t, unknown.Name)

	_, err = svc.InboxStoreOwn(ctx, p, "visible name", 0, time.Now().Add(time.Hour))
	require.NoError(t, err)

	closed, err := svc.InboxStatus(ctx, user.InboxToken)
	require.NoError(t, err)
	require.Equal(t, unknown, closed, "closed inbox must be indistinguishable from a missing one")
}

func TestRotateInboxToken_OldAddressStopsWorking(t *testing.T) {
	svc, rm := newExchangeFixture(t)
	ctx := context.Background()
	user := registerUser(t, rm, "alice")
	p := access.Principal{UserID: user.ID}
	oldToken := user.InboxToken

	_, err := svc.InboxStoreOwn(ctx, p, "", 3, time.Now().Add(time.Hour))
	require.NoError(t, err)

	newToken, err := svc.RotateInboxToken(ctx, p)
	require.NoError(t, err)
	require.NotEqual(t, oldToken, newToken)

	require.NoError(t, svc.InboxSubmit(ctx, oldToken, InboxDeposit{Secret: "ct"}))
	inbox, _ := svc.InboxGetOwn(ctx, p)
	require.Empty(t, inbox.Secret)

	require.NoError(t, svc.InboxSubmit(ctx, newToken, InboxDeposit{Secret: "ct"}))
	inbox, _ = svc.InboxGetOwn(ctx, p)
	require.Equal(t, "ct", inbox.Secret)
}

func validShare() *models.Share {
	return &models.Share{
		Name:       "one-off",
		Secret:     "ct",
		Salt:       "salt",
		IV:         "iv",
		Pin:        "client-side-pin",
		Accesses:   2,
		Expiration: time.Now().Add(time.Hour),
	}
}

func TestShareCreate_Validation(t *testing.T) {
	svc, _ := newExchangeFixture(t)
	ctx := context.Background()
	p := access.Principal{UserID: "u1"}

	both := validShare()
	both.SecretFile = []byte("f")
	_, err := svc.ShareCreate(ctx, p, both)
	require.ErrorIs(t, err, common.ErrorValidation)

	neither := validShare()
	neither.Secret = ""
	_, err = svc.ShareCreate(ctx, p, neither)
	require.ErrorIs(t, err, common.ErrorValidation)

	noPin := validShare()
	noPin.Pin = ""
	_, err = svc.ShareCreate(ctx, p, noPin)
	require.ErrorIs(t, err, common.ErrorValidation)

	stale := validShare()
	stale.Expiration = time.Now().Add(-time.Minute)
	_, err = svc.ShareCreate(ctx, p, stale)
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestShareGet_ConsumesReadsThenGone(t *testing.T) {
	svc, rm := newExchangeFixture(t)
	ctx := context.Background()
	p := access.Principal{UserID: "u1"}

	share, err := svc.ShareCreate(ctx, p, validShare())
	require.NoError(t, err)
	require.NotEmpty(t, share.Token)

	for i := 0; i < 2; i++ {
		got, err := svc.ShareGet(ctx, share.Token, "198.51.100.7")
		require.NoError(t, err)
		require.Equal(t, "ct", got.Secret)
	}

	_, err = svc.ShareGet(ctx, share.Token, "198.51.100.7")
	require.ErrorIs(t, err, common.ErrorGone)

	require.Len(t, rm.store.shareLog, 2)
}

func TestShareGet_NotFoundVsGone(t *testing.T) {
	svc, _ := newExchangeFixture(t)
	ctx := context.Background()

	_, err := svc.ShareGet(ctx, "never-existed", "ip")
	require.ErrorIs(t, err, common.ErrorNotFound)

	expired := validShare()
	expired.Expiration = time.Now().Add(time.Minute)
	share, err := svc.ShareCreate(ctx, access.Principal{UserID: "u1"}, expired)
	require.NoError(t, err)
	share.Expiration = time.Now().Add(-time.Minute)

	_, err = svc.ShareGet(ctx, share.Token, "ip")
	require.ErrorIs(t, err, common.ErrorGone)
}

func TestClean_HonorsGraceOffset(t *testing.T) {
	svc, rm := newExchangeFixture(t)
	ctx := context.Background()
	p := access.Principal{UserID: "u1"}

	inGrace := validShare()
	share1, err := svc.ShareCreate(ctx, p, inGrace)
	require.NoError(t, err)
	share1.Expiration = time.Now().Add(-time.Hour) // expired, inside 24h grace

	beyond := validShare()
	share2, err := svc.ShareCreate(ctx, p, beyond)
	require.NoError(t, err)
	share2.Expiration = time.Now().Add(-48 * time.Hour)

	n, err := svc.Clean(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, ok := rm.store.shares[share1.ID]
	require.True(t, ok, "expired share inside the grace window must survive")
	_, ok = rm.store.shares[share2.ID]
	require.False(t, ok)
}

func TestShareDelete_OwnerOnly(t *testing.T) {
	svc, _ := newExchangeFixture(t)
	ctx := context.Background()

	share, err := svc.ShareCreate(ctx, access.Principal{UserID: "u1"}, validShare())
	require.NoError(t, err)

	err = svc.ShareDelete(ctx, access.Principal{UserID: "u2"}, share.ID)
	require.ErrorIs(t, err, common.ErrorAccessDenied)

	require.NoError(t, svc.ShareDelete(ctx, access.Principal{UserID: "u1"}, share.ID))
}
