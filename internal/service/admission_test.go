package service

import (
	"context"
	"sync"
	"testing"

	"forgegate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRequest(t *testing.T, repo *memRequestRepo, requesterID, game string, status models.RequestStatus) *models.Request {
	t.Helper()
	req := &models.Request{
		PublicRef:   "ref-" + requesterID + "-" + game,
		RequesterID: requesterID,
		GameName:    game,
		Status:      status,
	}
	require.NoError(t, repo.Create(context.Background(), req))
	return req
}

func TestAdmitWithinCap(t *testing.T) {
	repo := newMemRequestRepo()
	gate := NewAdmissionGate(repo, 3)

	seedRequest(t, repo, "user-1", "minecraft", models.RequestStatusPending)
	seedRequest(t, repo, "user-1", "ark", models.RequestStatusProvisioning)

	called := false
	err := gate.Admit(context.Background(), "user-1", "cs2", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestAdmitRejectsAtCap(t *testing.T) {
	repo := newMemRequestRepo()
	gate := NewAdmissionGate(repo, 2)

	seedRequest(t, repo, "user-1", "minecraft", models.RequestStatusPending)
	seedRequest(t, repo, "user-1", "ark", models.RequestStatusApproved)

	err := gate.Admit(context.Background(), "user-1", "cs2", func(context.Context) error {
		t.Fatal("admit must not run at cap")
		return nil
	})
	appErr := &models.AppError{}
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ADMISSION_REJECTED", appErr.Code)
	assert.Equal(t, models.ReasonCapExceeded, appErr.Reason)
}

func TestAdmitIgnoresTerminalRequests(t *testing.T) {
	repo := newMemRequestRepo()
	gate := NewAdmissionGate(repo, 1)

	seedRequest(t, repo, "user-1", "minecraft", models.RequestStatusDenied)
	seedRequest(t, repo, "user-1", "ark", models.RequestStatusCompleted)
	seedRequest(t, repo, "user-1", "cs2", models.RequestStatusExpired)

	err := gate.Admit(context.Background(), "user-1", "gmod", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestAdmitRejectsDuplicateGame(t *testing.T) {
	repo := newMemRequestRepo()
	gate := NewAdmissionGate(repo, 5)

	seedRequest(t, repo, "user-1", "minecraft", models.RequestStatusPending)

	err := gate.Admit(context.Background(), "user-1", "minecraft", func(context.Context) error {
		t.Fatal("admit must not run for a duplicate game")
		return nil
	})
	appErr := &models.AppError{}
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ReasonDuplicateActive, appErr.Reason)
}

func TestAdmitAllowsGameAfterTerminalRequest(t *testing.T) {
	repo := newMemRequestRepo()
	gate := NewAdmissionGate(repo, 5)

	seedRequest(t, repo, "user-1", "minecraft", models.RequestStatusProvisioningFailed)

	err := gate.Admit(context.Background(), "user-1", "minecraft", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestAdmitSerializesSameRequester(t *testing.T) {
	repo := newMemRequestRepo()
	gate := NewAdmissionGate(repo, 1)

	// Both goroutines race for the last admission slot. Serialization
	// means exactly one wins.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		game := []string{"minecraft", "ark"}[i]
		go func() {
			defer wg.Done()
			results <- gate.Admit(context.Background(), "user-1", game, func(ctx context.Context) error {
				return repo.Create(ctx, &models.Request{
					RequesterID: "user-1",
					GameName:    game,
					Status:      models.RequestStatusPending,
				})
			})
		}()
	}
	wg.Wait()
	close(results)

	var admitted, rejected int
	for err := range results {
		if err == nil {
			admitted++
		} else {
			rejected++
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, rejected)

	count, err := repo.CountActive(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAdmitDoesNotBlockOtherRequesters(t *testing.T) {
	repo := newMemRequestRepo()
	gate := NewAdmissionGate(repo, 1)

	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = gate.Admit(context.Background(), "user-1", "minecraft", func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	// user-2 must get through while user-1's admit is still running.
	done := make(chan error, 1)
	go func() {
		done <- gate.Admit(context.Background(), "user-2", "minecraft", func(context.Context) error { return nil })
	}()
	require.NoError(t, <-done)
	close(release)
}

func TestAdmitSurfacesStoreError(t *testing.T) {
	repo := newMemRequestRepo()
	repo.failCountActive = models.NewStoreError(assert.AnError)
	gate := NewAdmissionGate(repo, 3)

	err := gate.Admit(context.Background(), "user-1", "minecraft", func(context.Context) error {
		t.Fatal("admit must not run when the count fails")
		return nil
	})
	appErr := &models.AppError{}
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "STORE_ERROR", appErr.Code)
}
