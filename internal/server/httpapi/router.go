// Package httpapi exposes the vault core over HTTP. Authenticated routes
// resolve the principal from a bearer token; the handful of public routes
// (inbox deposit, share retrieval) sit behind a per-IP rate limit and never
// reveal whether a token exists.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/vpetrenko/vaultd/internal/logging"
	"github.com/vpetrenko/vaultd/internal/server/config"
	"github.com/vpetrenko/vaultd/internal/server/services"
)

// Router wires the service layer to gin handlers.
type Router struct {
	users        *services.UserService
	keys         *services.KeyService
	vaults       *services.VaultService
	rights       *services.RightsService
	exchange     *services.ExchangeService
	importExport *services.ImportExportService
	archive      *services.ArchiveService
	config       *config.Config
	logger       logging.Logger
}

func NewRouter(
	users *services.UserService,
	keys *services.KeyService,
	vaults *services.VaultService,
	rights *services.RightsService,
	exchange *services.ExchangeService,
	importExport *services.ImportExportService,
	archive *services.ArchiveService,
	cfg *config.Config,
	logger logging.Logger,
) *Router {
	return &Router{
		users:        users,
		keys:         keys,
		vaults:       vaults,
		rights:       rights,
		exchange:     exchange,
		importExport: importExport,
		archive:      archive,
		config:       cfg,
		logger:       logger,
	}
}

// Engine builds the gin engine with all routes registered. Mutations carry
// their target ids in the JSON body; only token-addressed public routes and
// simple reads put an identifier in the path.
func (r *Router) Engine() *gin.Engine {
	e := gin.New()
	e.Use(gin.Recovery())

	// public, anonymous, rate limited per IP
	public := e.Group("/vault", rateLimitMiddleware(r.config.PublicRatePerSecond, r.config.PublicRateBurst))
	{
		public.GET("/inbox/:token", r.inboxStatus)
		public.POST("/inbox/:token", r.inboxSubmit)
		public.POST("/share/:token", r.shareGet)
		public.POST("/public", r.publicKeyLookup)
	}

	// auth seam
	e.POST("/auth/register", r.register)
	e.POST("/auth/salt", r.getSalt)
	e.POST("/auth/login", r.login)
	e.POST("/auth/refresh", r.refresh)

	// authenticated API
	api := e.Group("/vault", authMiddleware([]byte(r.config.SecretKey)))
	{
		api.POST("/create", r.createVault)
		api.GET("/get/:id", r.getVault)
		api.POST("/update", r.updateVault)
		api.POST("/delete", r.deleteVault)
		api.GET("/logs/:id", r.listLogs)
		api.POST("/search", r.searchEntries)
		api.POST("/replace", r.replaceKeys)

		api.POST("/entry/create", r.createEntry)
		api.GET("/entry/get/:id", r.getEntry)
		api.POST("/entry/update", r.updateEntry)
		api.POST("/entry/delete", r.deleteEntry)
		api.POST("/entry/field", r.setField)
		api.POST("/entry/file", r.setFile)
		api.GET("/entry/fields/:id", r.listFields)
		api.GET("/entry/files/:id", r.listFiles)

		api.POST("/keys/store", r.storeKey)
		api.GET("/keys/get", r.getOwnKey)
		api.GET("/keys/public/:userID", r.getPublicKey)

		api.GET("/rights/get", r.listOwnRights)
		api.GET("/rights/vault/:id", r.listVaultRights)
		api.POST("/rights/store", r.storeRight)
		api.POST("/rights/update", r.updateRight)
		api.POST("/rights/revoke", r.revokeRight)
		api.POST("/rights/rewrap", r.rewrapOwnKeys)

		api.GET("/inbox/get", r.inboxGetOwn)
		api.POST("/inbox/store", r.inboxStoreOwn)
		api.POST("/inbox/rotate", r.rotateInboxToken)

		api.POST("/share/create", r.shareCreate)
		api.GET("/share/own", r.shareListOwn)
		api.POST("/share/delete", r.shareDelete)

		api.GET("/export/:id", r.exportVault)
		api.POST("/import", r.importVault)
		api.GET("/export/presign/put", r.presignPut)
		api.POST("/export/presign/get", r.presignGet)
	}

	return e
}
