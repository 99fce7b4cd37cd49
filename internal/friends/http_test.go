package friends_test

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/quantumshield/relay/internal/auth"
	"github.com/quantumshield/relay/internal/friends"
)

type fakeNotifier struct {
	receiverID int64
	requestID  int64
	senderID   int64
	called     bool
}

func (f *fakeNotifier) NotifyFriendRequest(receiverID, requestID, senderID int64, senderUsername string, createdAt time.Time) {
	f.called = true
	f.receiverID = receiverID
	f.requestID = requestID
	f.senderID = senderID
}

type fakeLimiter struct {
	allowFriend bool
	allowCrypto bool
}

func (f *fakeLimiter) Allow(userID int64) (bool, error)           { return f.allowFriend, nil }
func (f *fakeLimiter) AllowCryptoHTTP(userID int64) (bool, error) { return f.allowCrypto, nil }

type httpFixture struct {
	router    *mux.Router
	mock      sqlmock.Sqlmock
	notifier  *fakeNotifier
	limiter   *fakeLimiter
	validator *auth.Validator
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &httpFixture{
		mock:      mock,
		notifier:  &fakeNotifier{},
		limiter:   &fakeLimiter{allowFriend: true, allowCrypto: true},
		validator: auth.NewValidator([]byte("test-signing-secret")),
	}
	f.router = mux.NewRouter()
	friends.NewHandlers(friends.NewService(db), f.notifier, f.limiter, f.validator).Register(f.router)
	return f
}

func (f *httpFixture) request(t *testing.T, method, path string, body string, asUser int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if asUser != 0 {
		token, err := f.validator.IssueForTests(asUser, "alice", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGetUserKeysRequiresToken(t *testing.T) {
	f := newHTTPFixture(t)
	rec := f.request(t, http.MethodGet, "/users/11/keys", "", 0)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUserKeysReturnsBase64Bundle(t *testing.T) {
	f := newHTTPFixture(t)

	kemPub := []byte("kem-public-bytes")
	sigPub := []byte("sig-public-bytes")
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT kem_public_key, sig_public_key FROM users WHERE id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"kem_public_key", "sig_public_key"}).AddRow(kemPub, sigPub))

	rec := f.request(t, http.MethodGet, "/users/11/keys", "", 10)
	require.Equal(t, http.StatusOK, rec.Code)

	var bundle struct {
		KEMPublicKey string `json:"kem_public_key"`
		SigPublicKey string `json:"sig_public_key"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	require.Equal(t, base64.StdEncoding.EncodeToString(kemPub), bundle.KEMPublicKey)
	require.Equal(t, base64.StdEncoding.EncodeToString(sigPub), bundle.SigPublicKey)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetUserKeysRateLimited(t *testing.T) {
	f := newHTTPFixture(t)
	f.limiter.allowCrypto = false

	rec := f.request(t, http.MethodGet, "/users/11/keys", "", 10)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestCreateRequestRateLimited(t *testing.T) {
	f := newHTTPFixture(t)
	f.limiter.allowFriend = false

	rec := f.request(t, http.MethodPost, "/friends/request", `{"receiver_username":"bob"}`, 10)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "3600", rec.Header().Get("Retry-After"))
}

func TestCreateRequestUnknownReceiver(t *testing.T) {
	f := newHTTPFixture(t)

	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE username = $1")).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := f.request(t, http.MethodPost, "/friends/request", `{"receiver_username":"nobody"}`, 10)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.False(t, f.notifier.called)
}

func TestCreateRequestNotifiesReceiver(t *testing.T) {
	f := newHTTPFixture(t)

	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE username = $1")).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM friendships WHERE user_a = $1 AND user_b = $2)")).
		WithArgs(int64(10), int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectQuery("SELECT EXISTS").
		WithArgs(friends.StatusPending, int64(10), int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO friend_requests")).
		WithArgs(int64(10), int64(11), friends.StatusPending, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT username FROM users WHERE id = $1")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"username"}).AddRow("alice"))

	rec := f.request(t, http.MethodPost, "/friends/request", `{"receiver_username":"bob"}`, 10)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.True(t, f.notifier.called)
	require.EqualValues(t, 11, f.notifier.receiverID)
	require.EqualValues(t, 7, f.notifier.requestID)
	require.EqualValues(t, 10, f.notifier.senderID)
	require.NoError(t, f.mock.ExpectationsWereMet())
}
