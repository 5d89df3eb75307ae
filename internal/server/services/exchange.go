package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/access"
	sc "github.com/vpetrenko/vaultd/internal/server/config"
	"github.com/vpetrenko/vaultd/internal/server/models"
	"github.com/vpetrenko/vaultd/internal/server/repositories/repomanager"
)

const exchangeTokenBytes = 16

// ExchangeService implements the two anonymous secret-exchange channels:
// token-addressed inboxes (outsiders deposit, the owner reads) and shares
// (the owner publishes, outsiders read).
//
// The anonymous entry points never reveal whether a token exists. A write to
// an unknown, locked or expired inbox succeeds silently; only share reads
// distinguish "never existed" from "existed and is spent", because the
// recipient got the token from the owner and the distinction is useful to
// them.
type ExchangeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	now         func() time.Time
}

func NewExchangeService(db *sql.DB, m repomanager.RepositoryManager, config *sc.Config) *ExchangeService {
	return &ExchangeService{db: db, repomanager: m, config: config, now: time.Now}
}

// InboxDeposit is the anonymous submission payload. Actor and IP are
// best-effort metadata recorded in the inbox log.
type InboxDeposit struct {
	Secret     string
	SecretFile []byte
	Key        string
	IV         string
	Actor      string
	IP         string
}

// InboxInfo is the public view of an inbox: the owner-chosen display name
// and whether a deposit would currently be accepted.
type InboxInfo struct {
	Name string
	Open bool
}

// InboxStatus returns the public view for a token. Unknown tokens get the
// same closed response as locked or expired inboxes.
func (s *ExchangeService) InboxStatus(ctx context.Context, token string) (*InboxInfo, error) {
	inbox, err := s.repomanager.Inboxes(s.db).FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &InboxInfo{}, nil
		}
		return nil, err
	}
	open := inbox.Accesses > 0 && inbox.Expiration.After(s.now())
	info := &InboxInfo{Open: open}
	if open {
		info.Name = inbox.Name
	}
	return info, nil
}

// InboxSubmit handles one anonymous deposit. The first deposit against a
// user's token creates the inbox row locked (zero write permits), so nothing
// is accepted until the owner explicitly opens it. All no-op outcomes are
// reported as success.
func (s *ExchangeService) InboxSubmit(ctx context.Context, token string, dep InboxDeposit) error {
	if dep.Secret == "" && len(dep.SecretFile) == 0 {
		return common.ErrorValidation
	}
	if dep.Secret != "" && len(dep.SecretFile) > 0 {
		return common.ErrorValidation
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		inboxRepo := s.repomanager.Inboxes(tx)

		id, err := inboxRepo.ConsumeWrite(ctx, token, dep.Secret, dep.SecretFile, dep.Key, dep.IV, s.now())
		if err == nil {
			return s.repomanager.Logs(tx).AddInboxLog(ctx, &models.InboxLog{
				InboxID: id,
				Actor:   dep.Actor,
				IP:      dep.IP,
				Message: "Deposited a secret",
			})
		}
		if !errors.Is(err, common.ErrorGone) {
			return err
		}

		// No open row. If the token addresses a known user without an
		// inbox yet, create it locked; in every other case swallow the
		// miss so callers cannot probe for valid tokens.
		if _, err := inboxRepo.FindByToken(ctx, token); err == nil {
			return nil
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		owner, err := s.repomanager.Users(tx).GetByInboxToken(ctx, token)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		_, err = inboxRepo.Create(ctx, &models.Inbox{
			Token:      token,
			UserID:     owner.ID,
			Accesses:   0,
			Expiration: s.now().Add(s.config.InboxExpiration),
		})
		return err
	})
}

// InboxGetOwn returns the principal's inbox row, deposited ciphertext
// included.
func (s *ExchangeService) InboxGetOwn(ctx context.Context, p access.Principal) (*models.Inbox, error) {
	if p.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	return s.repomanager.Inboxes(s.db).FindByUser(ctx, p.UserID)
}

// InboxStoreOwn opens or reconfigures the principal's inbox: display name,
// remaining write permits and expiration. A row is created on first use.
func (s *ExchangeService) InboxStoreOwn(ctx context.Context, p access.Principal, name string, accesses int, expiration time.Time) (*models.Inbox, error) {
	if p.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	if accesses < 0 {
		return nil, common.ErrorValidation
	}

	var result *models.Inbox
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		inboxRepo := s.repomanager.Inboxes(tx)
		inbox, err := inboxRepo.FindByUser(ctx, p.UserID)
		if err != nil {
			if !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			user, err := s.repomanager.Users(tx).GetByID(ctx, p.UserID)
			if err != nil {
				return err
			}
			inbox, err = inboxRepo.Create(ctx, &models.Inbox{
				Token:      user.InboxToken,
				UserID:     p.UserID,
				Name:       name,
				Accesses:   accesses,
				Expiration: expiration,
			})
			if err != nil {
				return err
			}
			result = inbox
			return nil
		}
		if err := inboxRepo.Extend(ctx, inbox.ID, accesses, expiration); err != nil {
			return err
		}
		inbox.Accesses = accesses
		inbox.Expiration = expiration
		result = inbox
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RotateInboxToken invalidates the principal's current inbox address and
// issues a fresh one.
func (s *ExchangeService) RotateInboxToken(ctx context.Context, p access.Principal) (string, error) {
	if p.UserID == "" {
		return "", common.ErrorUnauthorized
	}
	token, err := common.MakeRandHexString(exchangeTokenBytes)
	if err != nil {
		return "", fmt.Errorf("error generating token: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).SetInboxToken(ctx, p.UserID, token); err != nil {
			return err
		}
		inbox, err := s.repomanager.Inboxes(tx).FindByUser(ctx, p.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		return s.repomanager.Inboxes(tx).UpdateToken(ctx, inbox.ID, token)
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// ShareCreate publishes one secret under a fresh random token. Exactly one
// of Secret/SecretFile must be set. The PIN travels with the record but is
// never validated server-side; it only feeds client-side decryption.
func (s *ExchangeService) ShareCreate(ctx context.Context, p access.Principal, share *models.Share) (*models.Share, error) {
	if p.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	hasSecret := share.Secret != ""
	hasFile := len(share.SecretFile) > 0
	if hasSecret == hasFile {
		return nil, common.ErrorValidation
	}
	if share.Pin == "" || share.Accesses < 1 || !share.Expiration.After(s.now()) {
		return nil, common.ErrorValidation
	}

	token, err := common.MakeRandHexString(exchangeTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}
	share.Token = token
	share.UserID = p.UserID

	created, err := s.repomanager.Shares(s.db).Create(ctx, share)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ShareGet is the anonymous retrieval. It consumes one read permit
// atomically and logs the access in the same transaction. A token that
// never existed fails with not-found; one that existed but is spent or
// expired fails with gone.
func (s *ExchangeService) ShareGet(ctx context.Context, token, ip string) (*models.Share, error) {
	var share *models.Share
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		shareRepo := s.repomanager.Shares(tx)
		sh, err := shareRepo.Consume(ctx, token, s.now())
		if err != nil {
			if !errors.Is(err, common.ErrorGone) {
				return err
			}
			if _, ferr := shareRepo.FindByToken(ctx, token); ferr != nil {
				if errors.Is(ferr, common.ErrorNotFound) {
					return common.ErrorNotFound
				}
				return ferr
			}
			return common.ErrorGone
		}
		share = sh
		return s.repomanager.Logs(tx).AddShareLog(ctx, &models.ShareLog{
			ShareID: sh.ID,
			IP:      ip,
			Message: "Accessed the share",
		})
	})
	if err != nil {
		return nil, err
	}
	return share, nil
}

// ShareListOwn returns the principal's published shares.
func (s *ExchangeService) ShareListOwn(ctx context.Context, p access.Principal) ([]*models.Share, error) {
	if p.UserID == "" {
		return nil, common.ErrorUnauthorized
	}
	return s.repomanager.Shares(s.db).ListByUser(ctx, p.UserID)
}

// ShareDelete withdraws a published share early.
func (s *ExchangeService) ShareDelete(ctx context.Context, p access.Principal, shareID string) error {
	if p.UserID == "" {
		return common.ErrorUnauthorized
	}
	shares, err := s.repomanager.Shares(s.db).ListByUser(ctx, p.UserID)
	if err != nil {
		return err
	}
	for _, sh := range shares {
		if sh.ID == shareID {
			return s.repomanager.Shares(s.db).Delete(ctx, shareID)
		}
	}
	return common.ErrorAccessDenied
}

// Clean sweeps shares whose expiration passed more than the configured grace
// offset ago. Expired-but-in-grace shares survive so their owners can still
// inspect what was retrieved.
func (s *ExchangeService) Clean(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.ShareGraceOffset)
	return s.repomanager.Shares(s.db).DeleteExpiredBefore(ctx, cutoff)
}
