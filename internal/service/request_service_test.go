package service

import (
	"context"
	"testing"

	"forgegate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequestService(repo *memRequestRepo, maxActive int) *RequestService {
	gate := NewAdmissionGate(repo, maxActive)
	return NewRequestService(repo, gate, models.DefaultGameCatalog(), silentNotifier())
}

func TestCreateRequest(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newTestRequestService(repo, 3)

	req, err := svc.CreateRequest(context.Background(), "user-1", "Player One", "Minecraft")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Equal(t, "minecraft", req.GameName, "game name is normalized via the catalog")
	assert.NotEmpty(t, req.PublicRef)
	assert.NotZero(t, req.ID)
}

func TestCreateRequestUnknownGame(t *testing.T) {
	svc := newTestRequestService(newMemRequestRepo(), 3)

	_, err := svc.CreateRequest(context.Background(), "user-1", "Player One", "quake")
	appErr := &models.AppError{}
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestCreateRequestMissingRequester(t *testing.T) {
	svc := newTestRequestService(newMemRequestRepo(), 3)

	_, err := svc.CreateRequest(context.Background(), "  ", "Player One", "minecraft")
	appErr := &models.AppError{}
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestCreateRequestAppliesAdmission(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newTestRequestService(repo, 1)

	_, err := svc.CreateRequest(context.Background(), "user-1", "Player One", "minecraft")
	require.NoError(t, err)

	_, err = svc.CreateRequest(context.Background(), "user-1", "Player One", "ark")
	appErr := &models.AppError{}
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ADMISSION_REJECTED", appErr.Code)
}

func TestCancelRequest(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newTestRequestService(repo, 3)

	req := seedRequest(t, repo, "user-1", "minecraft", models.RequestStatusPending)

	cancelled, err := svc.CancelRequest(context.Background(), "user-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, cancelled.Status)
}

func TestCancelRequestNotOwner(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newTestRequestService(repo, 3)

	req := seedRequest(t, repo, "user-1", "minecraft", models.RequestStatusPending)

	_, err := svc.CancelRequest(context.Background(), "user-2", req.ID)
	appErr := &models.AppError{}
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)
}

func TestCancelRequestAfterDecision(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newTestRequestService(repo, 3)

	req := seedRequest(t, repo, "user-1", "minecraft", models.RequestStatusPending)
	require.NoError(t, repo.UpdateStatus(context.Background(), req.ID,
		models.RequestStatusPending, models.RequestStatusApproved, nil))

	_, err := svc.CancelRequest(context.Background(), "user-1", req.ID)
	appErr := &models.AppError{}
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INVALID_TRANSITION", appErr.Code)
}

func TestGetStatusVisibility(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newTestRequestService(repo, 3)

	req := seedRequest(t, repo, "user-1", "minecraft", models.RequestStatusPending)

	// The owner sees it.
	got, err := svc.GetStatus(context.Background(), "user-1", false, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	// Another user gets not-found, not a permission hint.
	_, err = svc.GetStatus(context.Background(), "user-2", false, req.ID)
	appErr := &models.AppError{}
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)

	// Admins see everything.
	got, err = svc.GetStatus(context.Background(), "admin-1", true, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
}

func TestMyRequestsLimit(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newTestRequestService(repo, 100)

	for _, game := range []string{"a", "b", "c"} {
		seedRequest(t, repo, "user-1", game, models.RequestStatusCompleted)
	}
	seedRequest(t, repo, "user-2", "minecraft", models.RequestStatusPending)

	mine, err := svc.MyRequests(context.Background(), "user-1", 2)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, r := range mine {
		assert.Equal(t, "user-1", r.RequesterID)
	}
}

func TestListPending(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newTestRequestService(repo, 100)

	seedRequest(t, repo, "user-1", "minecraft", models.RequestStatusPending)
	seedRequest(t, repo, "user-2", "ark", models.RequestStatusDenied)

	pending, err := svc.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "minecraft", pending[0].GameName)
}

func TestGamesListsCatalog(t *testing.T) {
	svc := newTestRequestService(newMemRequestRepo(), 3)

	games := svc.Games()
	assert.NotEmpty(t, games)
}
