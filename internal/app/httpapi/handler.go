// Package httpapi exposes the application services over REST.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	app "github.com/slotledger/market_layer/internal/app"
	"github.com/slotledger/market_layer/internal/app/metrics"
	"github.com/slotledger/market_layer/internal/app/observe"
	ledgersvc "github.com/slotledger/market_layer/internal/app/services/ledger"
	marketsvc "github.com/slotledger/market_layer/internal/app/services/market"
	treasurysvc "github.com/slotledger/market_layer/internal/app/services/treasury"
	"github.com/slotledger/market_layer/internal/app/storage"
	"github.com/slotledger/market_layer/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}

	r := chi.NewRouter()

	r.Get("/healthz", h.health)

	r.Route("/slots", func(r chi.Router) {
		r.Post("/", h.registerSlot)
		r.Get("/", h.listSlots)
		r.Get("/{slotID}", h.getSlot)
		r.Put("/{slotID}/market", h.setSlotMarketActive)
	})

	r.Route("/tokens", func(r chi.Router) {
		r.Post("/", h.mint)
		r.Get("/", h.listTokens)
		r.Get("/{tokenID}", h.getToken)
		r.Delete("/{tokenID}", h.burn)
		r.Post("/{tokenID}/transfers", h.transferValue)
		r.Put("/{tokenID}/operator", h.approveOperator)
		r.Put("/{tokenID}/allowances/{grantee}", h.approveValue)
		r.Get("/{tokenID}/allowances/{grantee}", h.getAllowance)

		r.Put("/{tokenID}/listing", h.setBuyPrice)
		r.Get("/{tokenID}/listing", h.getListing)
		r.Delete("/{tokenID}/listing", h.cancelBuyPrice)
		r.Post("/{tokenID}/buy", h.buy)

		r.Put("/{tokenID}/offers", h.makeOffer)
		r.Get("/{tokenID}/offers", h.listOffers)
		r.Delete("/{tokenID}/offers", h.cancelOffer)
		r.Post("/{tokenID}/offers/accept", h.acceptOffer)
	})

	r.Put("/approvals/{operator}", h.setApprovalForAll)

	r.Route("/auctions", func(r chi.Router) {
		r.Post("/", h.createAuction)
		r.Get("/{auctionID}", h.getAuction)
		r.Delete("/{auctionID}", h.cancelAuction)
		r.Post("/{auctionID}/bids", h.placeBid)
		r.Post("/{auctionID}/finalize", h.finalizeAuction)
	})

	r.Route("/escrow", func(r chi.Router) {
		r.Post("/deposits", h.deposit)
		r.Get("/{identity}", h.balances)
	})

	r.Route("/treasury", func(r chi.Router) {
		r.Put("/rates/{currency}", h.setExchangeRate)
		r.Post("/purchases", h.buyValueExternal)
		r.Post("/vouchers", h.issueVoucher)
		r.Post("/vouchers/{voucherID}/redeem", h.redeemVoucher)
		r.Post("/disbursements", h.proposeDisbursement)
		r.Get("/disbursements", h.listPendingDisbursements)
		r.Get("/disbursements/{disbursementID}", h.getDisbursement)
		r.Post("/disbursements/{disbursementID}/confirmations", h.confirmDisbursement)
	})

	r.Get("/observations", h.observations)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----- ledger -----

func (h *handler) registerSlot(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name            string `json:"name"`
		MarketActive    bool   `json:"market_active"`
		RoyaltyReceiver string `json:"royalty_receiver"`
		RoyaltyBps      int64  `json:"royalty_bps"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	slot, err := h.app.Ledger.RegisterSlot(r.Context(), caller(r), payload.Name,
		payload.MarketActive, payload.RoyaltyReceiver, payload.RoyaltyBps)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (h *handler) listSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.app.Ledger.ListSlots(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *handler) getSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := h.app.Ledger.GetSlot(r.Context(), chi.URLParam(r, "slotID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (h *handler) setSlotMarketActive(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	slot, err := h.app.Ledger.SetSlotMarketActive(r.Context(), caller(r), chi.URLParam(r, "slotID"), payload.Active)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (h *handler) mint(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SlotID string `json:"slot_id"`
		Owner  string `json:"owner"`
		Value  int64  `json:"value"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tok, err := h.app.Ledger.Mint(r.Context(), caller(r), payload.SlotID, payload.Owner, payload.Value)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

func (h *handler) listTokens(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = caller(r)
	}
	tokens, err := h.app.Ledger.ListTokensByOwner(r.Context(), owner)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *handler) getToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.app.Ledger.GetToken(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (h *handler) burn(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Ledger.Burn(r.Context(), caller(r), chi.URLParam(r, "tokenID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) transferValue(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ToTokenID  string `json:"to_token_id"`
		ToIdentity string `json:"to_identity"`
		Amount     int64  `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from := chi.URLParam(r, "tokenID")

	switch {
	case payload.ToTokenID != "":
		if err := h.app.Ledger.TransferValue(r.Context(), caller(r), from, payload.ToTokenID, payload.Amount); err != nil {
			metrics.RecordValueTransfer("error")
			h.writeServiceError(w, err)
			return
		}
		metrics.RecordValueTransfer("ok")
		w.WriteHeader(http.StatusNoContent)
	case payload.ToIdentity != "":
		tok, err := h.app.Ledger.TransferValueToIdentity(r.Context(), caller(r), from, payload.ToIdentity, payload.Amount)
		if err != nil {
			metrics.RecordValueTransfer("error")
			h.writeServiceError(w, err)
			return
		}
		metrics.RecordValueTransfer("ok")
		writeJSON(w, http.StatusCreated, tok)
	default:
		writeError(w, http.StatusBadRequest, errors.New("to_token_id or to_identity is required"))
	}
}

func (h *handler) approveOperator(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Operator string `json:"operator"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Ledger.Approve(r.Context(), caller(r), chi.URLParam(r, "tokenID"), payload.Operator); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setApprovalForAll(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Approved bool `json:"approved"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Ledger.SetApprovalForAll(r.Context(), caller(r), chi.URLParam(r, "operator"), payload.Approved); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) approveValue(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount    int64 `json:"amount"`
		Unlimited bool  `json:"unlimited"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := h.app.Ledger.ApproveValue(r.Context(), caller(r), chi.URLParam(r, "tokenID"),
		chi.URLParam(r, "grantee"), payload.Amount, payload.Unlimited)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getAllowance(w http.ResponseWriter, r *http.Request) {
	allowance, err := h.app.Ledger.Allowance(r.Context(), chi.URLParam(r, "tokenID"), chi.URLParam(r, "grantee"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allowance)
}

// ----- marketplace -----

func (h *handler) setBuyPrice(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PricePerUnit int64 `json:"price_per_unit"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	listing, err := h.app.Market.SetBuyPrice(r.Context(), caller(r), chi.URLParam(r, "tokenID"), payload.PricePerUnit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *handler) getListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.app.Market.GetListing(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *handler) cancelBuyPrice(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Market.CancelBuyPrice(r.Context(), caller(r), chi.URLParam(r, "tokenID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) buy(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MaxUnitPrice int64 `json:"max_unit_price"`
		MinUnits     int64 `json:"min_units"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := h.app.Market.Buy(r.Context(), caller(r), chi.URLParam(r, "tokenID"), payload.MaxUnitPrice, payload.MinUnits)
	if err != nil {
		metrics.RecordSettlement("buy", "error")
		h.writeServiceError(w, err)
		return
	}
	metrics.RecordSettlement("buy", "ok")
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) makeOffer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount   int64  `json:"amount"`
		Referrer string `json:"referrer"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offer, err := h.app.Market.MakeOffer(r.Context(), caller(r), chi.URLParam(r, "tokenID"), payload.Amount, payload.Referrer)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (h *handler) listOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.app.Market.ListOffers(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offers)
}

func (h *handler) cancelOffer(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Market.CancelOffer(r.Context(), caller(r), chi.URLParam(r, "tokenID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) acceptOffer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Buyer     string `json:"buyer"`
		MinAmount int64  `json:"min_amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := h.app.Market.AcceptOffer(r.Context(), caller(r), chi.URLParam(r, "tokenID"), payload.Buyer, payload.MinAmount)
	if err != nil {
		metrics.RecordSettlement("offer", "error")
		h.writeServiceError(w, err)
		return
	}
	metrics.RecordSettlement("offer", "ok")
	w.WriteHeader(http.StatusNoContent)
}

// ----- auctions -----

func (h *handler) createAuction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TokenID          string `json:"token_id"`
		ReservePrice     int64  `json:"reserve_price"`
		DurationSeconds  int64  `json:"duration_seconds"`
		ExtensionSeconds int64  `json:"extension_seconds"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	auction, err := h.app.Market.CreateReserveAuction(r.Context(), caller(r), payload.TokenID,
		payload.ReservePrice,
		time.Duration(payload.DurationSeconds)*time.Second,
		time.Duration(payload.ExtensionSeconds)*time.Second)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, auction)
}

func (h *handler) getAuction(w http.ResponseWriter, r *http.Request) {
	auction, err := h.app.Market.GetAuction(r.Context(), chi.URLParam(r, "auctionID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auction)
}

func (h *handler) placeBid(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	auction, err := h.app.Market.PlaceBid(r.Context(), caller(r), chi.URLParam(r, "auctionID"), payload.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	metrics.RecordBid()
	writeJSON(w, http.StatusOK, auction)
}

func (h *handler) finalizeAuction(w http.ResponseWriter, r *http.Request) {
	auction, err := h.app.Market.FinalizeReserveAuction(r.Context(), chi.URLParam(r, "auctionID"))
	if err != nil {
		metrics.RecordSettlement("auction", "error")
		h.writeServiceError(w, err)
		return
	}
	metrics.RecordSettlement("auction", "ok")
	writeJSON(w, http.StatusOK, auction)
}

func (h *handler) cancelAuction(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Market.CancelReserveAuction(r.Context(), caller(r), chi.URLParam(r, "auctionID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----- treasury -----

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Currency string `json:"currency"`
		Amount   int64  `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	acct, err := h.app.Treasury.Deposit(r.Context(), caller(r), payload.Currency, payload.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) balances(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.app.Treasury.Balances(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *handler) setExchangeRate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Numerator   int64 `json:"numerator"`
		Denominator int64 `json:"denominator"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rate, err := h.app.Treasury.SetExchangeRate(r.Context(), caller(r), chi.URLParam(r, "currency"),
		payload.Numerator, payload.Denominator)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (h *handler) buyValueExternal(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Currency string `json:"currency"`
		Amount   int64  `json:"amount"`
		SlotID   string `json:"slot_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tok, err := h.app.Treasury.BuyValueWithExternalFunds(r.Context(), caller(r), payload.Currency,
		payload.Amount, payload.SlotID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

func (h *handler) issueVoucher(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Bearer    string `json:"bearer"`
		FaceValue int64  `json:"face_value"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	voucher, err := h.app.Treasury.IssueVoucher(r.Context(), caller(r), payload.Bearer, payload.FaceValue)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, voucher)
}

func (h *handler) redeemVoucher(w http.ResponseWriter, r *http.Request) {
	acct, err := h.app.Treasury.RedeemVoucher(r.Context(), caller(r), chi.URLParam(r, "voucherID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) proposeDisbursement(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Destination string `json:"destination"`
		Amount      int64  `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := h.app.Treasury.ProposeDisbursement(r.Context(), caller(r), payload.Destination, payload.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *handler) listPendingDisbursements(w http.ResponseWriter, r *http.Request) {
	pending, err := h.app.Treasury.ListPendingDisbursements(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *handler) getDisbursement(w http.ResponseWriter, r *http.Request) {
	d, err := h.app.Treasury.GetDisbursement(r.Context(), chi.URLParam(r, "disbursementID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) confirmDisbursement(w http.ResponseWriter, r *http.Request) {
	d, err := h.app.Treasury.ConfirmDisbursement(r.Context(), caller(r), chi.URLParam(r, "disbursementID"))
	if err != nil {
		metrics.RecordDisbursement("error")
		h.writeServiceError(w, err)
		return
	}
	metrics.RecordDisbursement(string(d.Status))
	writeJSON(w, http.StatusOK, d)
}

// ----- observations -----

func (h *handler) observations(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		writeJSON(w, http.StatusOK, h.app.Observations.RecentByKind(observe.Kind(kind), limit))
		return
	}
	writeJSON(w, http.StatusOK, h.app.Observations.Recent(limit))
}

// ----- helpers -----

func caller(r *http.Request) string {
	return middleware.Caller(r.Context())
}

// writeServiceError maps sentinel service errors onto HTTP status codes.
func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledgersvc.ErrSlotNotFound),
		errors.Is(err, ledgersvc.ErrTokenNotFound),
		errors.Is(err, marketsvc.ErrListingNotFound),
		errors.Is(err, marketsvc.ErrOfferNotFound),
		errors.Is(err, marketsvc.ErrAuctionNotFound),
		errors.Is(err, treasurysvc.ErrRateNotFound),
		errors.Is(err, treasurysvc.ErrVoucherNotFound),
		errors.Is(err, treasurysvc.ErrSlotNotFound),
		errors.Is(err, treasurysvc.ErrDisbursementNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledgersvc.ErrUnauthorized),
		errors.Is(err, marketsvc.ErrUnauthorized),
		errors.Is(err, treasurysvc.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, marketsvc.ErrInvalidState),
		errors.Is(err, marketsvc.ErrMarketInactive),
		errors.Is(err, treasurysvc.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ledgersvc.ErrInsufficientBalance),
		errors.Is(err, ledgersvc.ErrInsufficientAllowance),
		errors.Is(err, ledgersvc.ErrRecipientRejected),
		errors.Is(err, ledgersvc.ErrValueOverflow),
		errors.Is(err, treasurysvc.ErrInsufficientFunds),
		errors.Is(err, treasurysvc.ErrDisbursementFailed),
		errors.Is(err, marketsvc.ErrPriceProtection),
		errors.Is(err, marketsvc.ErrBidTooLow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
