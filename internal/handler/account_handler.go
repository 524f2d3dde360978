package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/calscan/internal/model"
	"github.com/hitoshi/calscan/internal/repository"
)

// FeedURLValidator はフィードURLの事前検証インターフェース。
type FeedURLValidator interface {
	ValidateURL(rawURL string) error
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	accounts  repository.AccountRepository
	validator FeedURLValidator
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(accounts repository.AccountRepository, validator FeedURLValidator) *AccountHandler {
	return &AccountHandler{accounts: accounts, validator: validator}
}

// createAccountRequest はアカウント登録リクエストのボディ。
type createAccountRequest struct {
	DisplayName   string `json:"display_name"`
	Address       string `json:"address"`
	SelectorIndex int    `json:"selector_index"`
	Provider      string `json:"provider"`
	FeedURL       string `json:"feed_url"`
}

// accountResponse はアカウントのAPIレスポンス。
type accountResponse struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	Address       string    `json:"address"`
	SelectorIndex int       `json:"selector_index"`
	Provider      string    `json:"provider"`
	FeedURL       string    `json:"feed_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAccountResponse(a *model.Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		DisplayName:   a.DisplayName,
		Address:       a.Address,
		SelectorIndex: a.SelectorIndex,
		Provider:      string(a.Provider),
		FeedURL:       a.FeedURL,
		CreatedAt:     a.CreatedAt,
	}
}

// ListAccounts はアカウント一覧を返す。
// GET /api/accounts
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

// CreateAccount はアカウントを登録する。
// POST /api/accounts
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.Address == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAccountError("アドレスが空です"))
		return
	}

	provider := model.Provider(req.Provider)
	if provider == "" {
		provider = model.ProviderCalendarWebUI
	}
	if provider != model.ProviderCalendarWebUI && provider != model.ProviderStructuredFeed {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAccountError("不明なproviderです"))
		return
	}

	if provider == model.ProviderStructuredFeed {
		if req.FeedURL == "" {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidFeedURLError("フィードURLが空です"))
			return
		}
		if err := h.validator.ValidateURL(req.FeedURL); err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidFeedURLError(err.Error()))
			return
		}
	}

	existing, err := h.accounts.FindByAddress(r.Context(), req.Address)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if existing != nil {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewInvalidAccountError("同じアドレスのアカウントが既に存在します"))
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Address
	}

	now := time.Now()
	account := &model.Account{
		ID:            uuid.NewString(),
		DisplayName:   displayName,
		Address:       req.Address,
		SelectorIndex: req.SelectorIndex,
		FeedURL:       req.FeedURL,
		Provider:      provider,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.accounts.Create(r.Context(), account); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

// DeleteAccount はアカウントを削除する。関連エントリも削除される。
// DELETE /api/accounts/{id}
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	account, err := h.accounts.FindByID(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if account == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewAccountNotFoundError(accountID))
		return
	}

	if err := h.accounts.DeleteByID(r.Context(), accountID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
