package friends

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantumshield/relay/internal/auth"
	"github.com/quantumshield/relay/internal/models"
)

// Notifier is implemented by internal/relay.Service: when a request is
// created, the HTTP handler best-effort notifies the receiver's live
// connections with a friend_request_received event.
type Notifier interface {
	NotifyFriendRequest(receiverID, requestID, senderID int64, senderUsername string, createdAt time.Time)
}

// RequestLimiter is implemented by internal/ratelimit.Limiter: POST
// /friends/request is rate-limited to 10/hour/user, and the
// crypto-assisted key-fetch endpoint to 20/min/user.
type RequestLimiter interface {
	Allow(userID int64) (bool, error)
	AllowCryptoHTTP(userID int64) (bool, error)
}

// Handlers wires the friends HTTP surface onto a gorilla/mux router.
type Handlers struct {
	service   *Service
	notifier  Notifier
	limiter   RequestLimiter
	validator *auth.Validator
}

// NewHandlers constructs the friends HTTP handler set.
func NewHandlers(service *Service, notifier Notifier, limiter RequestLimiter, validator *auth.Validator) *Handlers {
	return &Handlers{service: service, notifier: notifier, limiter: limiter, validator: validator}
}

// Register mounts the handlers onto router, each wrapped with the
// RequireToken middleware: every route is authenticated.
func (h *Handlers) Register(router *mux.Router) {
	router.Handle("/users/{id}/keys", h.validator.RequireToken(http.HandlerFunc(h.getUserKeys))).Methods(http.MethodGet)
	router.Handle("/friends/request", h.validator.RequireToken(http.HandlerFunc(h.createRequest))).Methods(http.MethodPost)
	router.Handle("/friends/requests/pending", h.validator.RequireToken(http.HandlerFunc(h.listPending))).Methods(http.MethodGet)
	router.Handle("/friends/request/{id}/accept", h.validator.RequireToken(http.HandlerFunc(h.acceptRequest))).Methods(http.MethodPost)
	router.Handle("/friends/request/{id}/reject", h.validator.RequireToken(http.HandlerFunc(h.rejectRequest))).Methods(http.MethodPost)
	router.Handle("/friends/list", h.validator.RequireToken(http.HandlerFunc(h.listFriends))).Methods(http.MethodGet)
	router.Handle("/friends/{friend_id}", h.validator.RequireToken(http.HandlerFunc(h.removeFriend))).Methods(http.MethodDelete)
}

func callerID(r *http.Request) (int64, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return 0, false
	}
	return claims.UserID, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("[Friends] failed to encode response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// getUserKeys implements GET /users/{id}/keys, rate-limited under the
// crypto-assisted HTTP floor.
func (h *Handlers) getUserKeys(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication error")
		return
	}

	allowed, err := h.limiter.AllowCryptoHTTP(caller)
	if err != nil {
		log.Printf("[Friends] rate limiter error: %v", err)
	}
	if !allowed {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	userID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	keys, err := h.service.Keys(userID)
	if errors.Is(err, ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "no such user")
		return
	}
	if err != nil {
		log.Printf("[Friends] key lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, models.KeyBundle{
		KEMPublicKey: base64.StdEncoding.EncodeToString(keys.KEMPublicKey),
		SigPublicKey: base64.StdEncoding.EncodeToString(keys.SigPublicKey),
	})
}

// createRequest implements POST /friends/request {receiver_username}.
func (h *Handlers) createRequest(w http.ResponseWriter, r *http.Request) {
	senderID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication error")
		return
	}

	allowed, err := h.limiter.Allow(senderID)
	if err != nil {
		log.Printf("[Friends] rate limiter error: %v", err)
	}
	if !allowed {
		w.Header().Set("Retry-After", "3600")
		writeJSON(w, http.StatusTooManyRequests, struct {
			Error string `json:"error"`
			models.RateLimitInfo
		}{Error: "rate limit exceeded", RateLimitInfo: models.RateLimitInfo{RetryAfter: 3600}})
		return
	}

	var body struct {
		ReceiverUsername string `json:"receiver_username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	receiverID, err := h.service.UserIDByUsername(body.ReceiverUsername)
	if errors.Is(err, ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "no such user")
		return
	}
	if err != nil {
		log.Printf("[Friends] username lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	req, err := h.service.Create(senderID, receiverID)
	switch {
	case errors.Is(err, ErrCannotFriendSelf), errors.Is(err, ErrAlreadyFriends), errors.Is(err, ErrRequestExists):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("[Friends] create request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	senderUsername, err := h.service.Username(senderID)
	if err != nil {
		log.Printf("[Friends] sender username lookup failed: %v", err)
	}
	h.notifier.NotifyFriendRequest(receiverID, req.ID, senderID, senderUsername, req.CreatedAt)

	writeJSON(w, http.StatusCreated, req)
}

// listPending implements GET /friends/requests/pending.
func (h *Handlers) listPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication error")
		return
	}

	pending, err := h.service.PendingForReceiver(userID)
	if err != nil {
		log.Printf("[Friends] list pending failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// acceptRequest implements POST /friends/request/{id}/accept.
func (h *Handlers) acceptRequest(w http.ResponseWriter, r *http.Request) {
	h.respondToRequest(w, r, true)
}

// rejectRequest implements POST /friends/request/{id}/reject.
func (h *Handlers) rejectRequest(w http.ResponseWriter, r *http.Request) {
	h.respondToRequest(w, r, false)
}

func (h *Handlers) respondToRequest(w http.ResponseWriter, r *http.Request, accept bool) {
	caller, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication error")
		return
	}

	requestID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	if accept {
		friendship, err := h.service.Accept(requestID, caller)
		switch {
		case errors.Is(err, ErrRequestNotFound):
			writeError(w, http.StatusNotFound, "request not found")
		case errors.Is(err, ErrNotRecipient), errors.Is(err, ErrRequestNotPending):
			writeError(w, http.StatusBadRequest, err.Error())
		case err != nil:
			log.Printf("[Friends] accept request failed: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			writeJSON(w, http.StatusOK, friendship)
		}
		return
	}

	err = h.service.Reject(requestID, caller)
	switch {
	case errors.Is(err, ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, ErrNotRecipient), errors.Is(err, ErrRequestNotPending):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		log.Printf("[Friends] reject request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, nil)
	}
}

// listFriends implements GET /friends/list.
func (h *Handlers) listFriends(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication error")
		return
	}

	list, err := h.service.ListFriends(userID)
	if err != nil {
		log.Printf("[Friends] list friends failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// removeFriend implements DELETE /friends/{friend_id}.
func (h *Handlers) removeFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication error")
		return
	}

	friendID, err := strconv.ParseInt(mux.Vars(r)["friend_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid friend id")
		return
	}

	if err := h.service.RemoveFriend(userID, friendID); err != nil {
		if errors.Is(err, ErrFriendshipNotFound) {
			writeError(w, http.StatusNotFound, "friendship not found")
			return
		}
		log.Printf("[Friends] remove friend failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
