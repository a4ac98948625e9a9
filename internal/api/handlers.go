package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/ingress"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
	"github.com/ignite/deliverability-engine/internal/queue"
	"github.com/ignite/deliverability-engine/internal/routing"
	"github.com/ignite/deliverability-engine/internal/scheduler"
)

// MailboxReader serves the mailbox recovery read model.
type MailboxReader interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Mailbox, error)
}

// DomainReader serves the domain recovery read model.
type DomainReader interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.SendingDomain, error)
}

// TransitionReader serves recovery audit history.
type TransitionReader interface {
	ListForEntity(ctx context.Context, entityType domain.EntityType, entityID string, limit int) ([]domain.StateTransition, error)
}

// RuleStore is the routing-rule CRUD surface.
type RuleStore interface {
	Create(ctx context.Context, r *domain.RoutingRule) (string, error)
	ListByTenant(ctx context.Context, tenantID string) ([]domain.RoutingRule, error)
	Update(ctx context.Context, r *domain.RoutingRule) error
	Delete(ctx context.Context, tenantID, id string) error
}

// LeadStore is the lead ingestion surface.
type LeadStore interface {
	Create(ctx context.Context, l *domain.Lead) (string, error)
	GetByID(ctx context.Context, tenantID, id string) (*domain.Lead, error)
}

// PhaseTransitioner applies operator-initiated phase changes.
type PhaseTransitioner interface {
	TransitionPhase(ctx context.Context, entityType domain.EntityType, entityID, tenantID string, from, to domain.RecoveryPhase, reason string, currentScore int) error
}

// StatsSource exposes scheduler job counters for the health endpoint.
type StatsSource interface {
	Stats() []scheduler.JobStats
}

// Handlers carries every dependency the HTTP layer needs.
type Handlers struct {
	ingress     *ingress.Service
	dispatcher  *queue.Dispatcher
	deadLetters queue.DeadLetterStore
	mailboxes   MailboxReader
	domains     DomainReader
	transitions TransitionReader
	rules       RuleStore
	leads       LeadStore
	resolver    *routing.Resolver
	machine     PhaseTransitioner
	jobs        StatsSource
	ingressCfg  config.IngressConfig
	warmupCfg   config.WarmupConfig
	startedAt   time.Time
}

func NewHandlers(
	ing *ingress.Service,
	dispatcher *queue.Dispatcher,
	deadLetters queue.DeadLetterStore,
	mailboxes MailboxReader,
	domains DomainReader,
	transitions TransitionReader,
	rules RuleStore,
	leads LeadStore,
	resolver *routing.Resolver,
	machine PhaseTransitioner,
	jobs StatsSource,
	ingressCfg config.IngressConfig,
	warmupCfg config.WarmupConfig,
) *Handlers {
	return &Handlers{
		ingress:     ing,
		dispatcher:  dispatcher,
		deadLetters: deadLetters,
		mailboxes:   mailboxes,
		domains:     domains,
		transitions: transitions,
		rules:       rules,
		leads:       leads,
		resolver:    resolver,
		machine:     machine,
		jobs:        jobs,
		ingressCfg:  ingressCfg,
		warmupCfg:   warmupCfg,
		startedAt:   time.Now(),
	}
}

// HealthCheck reports process liveness plus queue and job counters.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	}
	if h.dispatcher != nil {
		resp["queue"] = h.dispatcher.Stats()
	}
	if h.jobs != nil {
		resp["jobs"] = h.jobs.Stats()
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
