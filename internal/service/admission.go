package service

import (
	"context"
	"fmt"
	"sync"

	"forgegate/internal/middleware"
	"forgegate/internal/models"
	"forgegate/internal/repository"
)

// AdmissionGate decides whether a requester may open another request.
// Checks for the same requester are serialized so two concurrent
// submissions cannot both pass the cap, checks for different requesters
// proceed in parallel.
type AdmissionGate struct {
	requestRepo repository.RequestRepository
	maxActive   int

	mu    sync.Mutex
	locks map[string]*requesterLock
}

type requesterLock struct {
	sync.Mutex
	refs int
}

// NewAdmissionGate returns an AdmissionGate enforcing maxActive
// concurrent requests per requester.
func NewAdmissionGate(requestRepo repository.RequestRepository, maxActive int) *AdmissionGate {
	return &AdmissionGate{
		requestRepo: requestRepo,
		maxActive:   maxActive,
		locks:       make(map[string]*requesterLock),
	}
}

func (g *AdmissionGate) acquire(requesterID string) *requesterLock {
	g.mu.Lock()
	l, ok := g.locks[requesterID]
	if !ok {
		l = &requesterLock{}
		g.locks[requesterID] = l
	}
	l.refs++
	g.mu.Unlock()
	l.Lock()
	return l
}

func (g *AdmissionGate) release(requesterID string, l *requesterLock) {
	l.Unlock()
	g.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(g.locks, requesterID)
	}
	g.mu.Unlock()
}

// Admit runs admit while holding the requester's lock, after verifying
// the cap and the one-active-request-per-game rule. admit is expected
// to create the request; a failure there surfaces unchanged.
func (g *AdmissionGate) Admit(ctx context.Context, requesterID, gameName string, admit func(ctx context.Context) error) error {
	l := g.acquire(requesterID)
	defer g.release(requesterID, l)

	active, err := g.requestRepo.CountActive(ctx, requesterID)
	if err != nil {
		return err
	}
	if active >= int64(g.maxActive) {
		middleware.AdmissionRejections.WithLabelValues(models.ReasonCapExceeded).Inc()
		return models.NewAdmissionRejectedError(models.ReasonCapExceeded,
			fmt.Sprintf("you already have %d open requests, the limit is %d", active, g.maxActive))
	}

	dup, err := g.requestRepo.HasActiveForGame(ctx, requesterID, gameName)
	if err != nil {
		return err
	}
	if dup {
		middleware.AdmissionRejections.WithLabelValues(models.ReasonDuplicateActive).Inc()
		return models.NewAdmissionRejectedError(models.ReasonDuplicateActive,
			fmt.Sprintf("you already have an open request for %s", gameName))
	}

	return admit(ctx)
}
