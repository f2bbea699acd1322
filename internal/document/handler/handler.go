package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"notary/internal/document/models"
	"notary/internal/document/service"
	id "notary/pkg/domain"
	dErrors "notary/pkg/domain-errors"
	"notary/pkg/platform/httputil"
	"notary/pkg/requestcontext"
)

// Service defines the document operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (id.DocumentID, error)
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	ListForUser(ctx context.Context, identity id.Identity) ([]id.DocumentID, error)
	Sign(ctx context.Context, docID id.DocumentID, caller id.Identity) (*models.Document, error)
	HasSigned(ctx context.Context, docID id.DocumentID, identity id.Identity) (bool, error)
	ListSignatories(ctx context.Context, docID id.DocumentID) ([]id.Identity, error)
	Revoke(ctx context.Context, docID id.DocumentID, caller id.Identity) (*models.Document, error)
	Verify(ctx context.Context, docID id.DocumentID, expected id.Fingerprint) (*models.Verification, error)
}

// Handler wires document endpoints to the document service.
type Handler struct {
	service     Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
	createChain []func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithAuth protects the mutating routes with the given authentication middleware.
func WithAuth(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.requireAuth = mw
	}
}

// WithCreateMiddleware adds middleware that only wraps POST /documents, after authentication.
func WithCreateMiddleware(mws ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.createChain = append(h.createChain, mws...)
	}
}

// New constructs a document handler with its dependencies.
func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts document endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/documents/{id}", h.HandleGetDocument)
	r.Get("/documents/{id}/signatories", h.HandleListSignatories)
	r.Get("/documents/{id}/signatures/{identity}", h.HandleHasSigned)
	r.Post("/documents/{id}/verify", h.HandleVerifyDocument)
	r.Get("/users/{identity}/documents", h.HandleListUserDocuments)

	r.Group(func(r chi.Router) {
		if h.requireAuth != nil {
			r.Use(h.requireAuth)
		}
		r.With(h.createChain...).Post("/documents", h.HandleCreateDocument)
		r.Post("/documents/{id}/sign", h.HandleSignDocument)
		r.Post("/documents/{id}/revoke", h.HandleRevokeDocument)
	})
}

// HandleCreateDocument handles POST /documents.
func (h *Handler) HandleCreateDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateDocumentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	docID, err := h.service.Create(ctx, service.CreateRequest{
		Caller:      caller,
		Title:       req.Title,
		Fingerprint: req.ParsedFingerprint(),
		Signatories: req.ParsedSignatories(),
		Validity:    req.Validity(),
	})
	if err != nil {
		h.logFailure(ctx, "create document failed", err, "creator", caller)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, &CreateDocumentResponse{DocumentID: uint64(docID)})
}

// HandleSignDocument handles POST /documents/{id}/sign.
func (h *Handler) HandleSignDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.service.Sign(ctx, docID, caller)
	if err != nil {
		h.logFailure(ctx, "sign document failed", err, "document_id", docID, "signatory", caller)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toSignResponse(doc))
}

// HandleRevokeDocument handles POST /documents/{id}/revoke.
func (h *Handler) HandleRevokeDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.service.Revoke(ctx, docID, caller)
	if err != nil {
		h.logFailure(ctx, "revoke document failed", err, "document_id", docID, "caller", caller)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRevokeResponse(doc))
}

// HandleVerifyDocument handles POST /documents/{id}/verify.
func (h *Handler) HandleVerifyDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyDocumentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Verify(ctx, docID, req.ParsedFingerprint())
	if err != nil {
		h.logFailure(ctx, "verify document failed", err, "document_id", docID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toVerifyResponse(result))
}

// HandleGetDocument handles GET /documents/{id}.
func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.service.Get(ctx, docID)
	if err != nil {
		h.logFailure(ctx, "get document failed", err, "document_id", docID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toDetailsResponse(doc, requestcontext.Now(ctx)))
}

// HandleListSignatories handles GET /documents/{id}/signatories.
func (h *Handler) HandleListSignatories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	signatories, err := h.service.ListSignatories(ctx, docID)
	if err != nil {
		h.logFailure(ctx, "list signatories failed", err, "document_id", docID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &SignatoriesResponse{
		DocumentID:  uint64(docID),
		Signatories: toIdentityStrings(signatories),
	})
}

// HandleHasSigned handles GET /documents/{id}/signatures/{identity}.
func (h *Handler) HandleHasSigned(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	identity, err := id.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	signed, err := h.service.HasSigned(ctx, docID, identity)
	if err != nil {
		h.logFailure(ctx, "has signed failed", err, "document_id", docID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &HasSignedResponse{
		DocumentID: uint64(docID),
		Identity:   identity.String(),
		HasSigned:  signed,
	})
}

// HandleListUserDocuments handles GET /users/{identity}/documents.
func (h *Handler) HandleListUserDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := id.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ids, err := h.service.ListForUser(ctx, identity)
	if err != nil {
		h.logFailure(ctx, "list user documents failed", err, "identity", identity)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &UserDocumentsResponse{
		Identity:    identity.String(),
		DocumentIDs: toIDValues(ids),
	})
}

func (h *Handler) requireCaller(w http.ResponseWriter, ctx context.Context) (id.Identity, bool) {
	caller := requestcontext.Identity(ctx)
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return caller, true
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return docID, true
}

// logFailure logs server faults at error level and caller faults at warn level.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	if h.logger == nil {
		return
	}
	args := append([]any{"request_id", requestcontext.RequestID(ctx), "error", err}, attrs...)
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, args...)
		return
	}
	h.logger.WarnContext(ctx, msg, args...)
}
