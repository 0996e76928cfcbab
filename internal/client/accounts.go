package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/policy"
)

// ErrDuplicateSubmission is returned while an identical mutation is still
// in flight.
var ErrDuplicateSubmission = errors.New("request already in progress")

// Accounts runs the shared policy checks locally before calling the backend.
// The checks are advisory; the backend repeats them authoritatively.
type Accounts struct {
	client  *Client
	session *Session

	mu       sync.Mutex
	pending  map[string]struct{}
	lastList []models.Account
}

// NewAccounts returns the account operations for the session principal.
func NewAccounts(c *Client, session *Session) *Accounts {
	return &Accounts{client: c, session: session, pending: make(map[string]struct{})}
}

// List fetches every account and remembers the result for the advisory
// last-admin check.
func (a *Accounts) List(ctx context.Context) ([]models.Account, error) {
	caller, err := a.caller()
	if err != nil {
		return nil, err
	}
	if err := policy.CheckList(caller); err != nil {
		return nil, err
	}
	var users []models.Account
	if err := a.client.do(ctx, http.MethodGet, "/users", a.session.Token(), nil, &users); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.lastList = users
	a.mu.Unlock()
	return users, nil
}

// Create pre-validates req and creates the account. It is never retried.
func (a *Accounts) Create(ctx context.Context, req policy.CreateRequest) (models.Account, error) {
	caller, err := a.caller()
	if err != nil {
		return models.Account{}, err
	}
	req.Normalize()
	if err := policy.CheckCreate(caller, req); err != nil {
		return models.Account{}, err
	}

	release, err := a.begin("create:" + req.Email)
	if err != nil {
		return models.Account{}, err
	}
	defer release()

	var created models.Account
	err = a.client.do(ctx, http.MethodPost, "/users", a.session.Token(), req, &created)
	return created, err
}

// Update pre-validates req against the last listed state of targetID.
func (a *Accounts) Update(ctx context.Context, targetID string, req policy.UpdateRequest) (models.Account, error) {
	caller, err := a.caller()
	if err != nil {
		return models.Account{}, err
	}
	req.Normalize()
	if target, admins, ok := a.known(targetID); ok {
		if err := policy.CheckUpdate(caller, &target, req); err != nil {
			return models.Account{}, err
		}
		if target.ID == caller.ID && policy.WouldRemoveAdmin(&target, req) {
			if err := policy.CheckLastAdmin(admins); err != nil {
				return models.Account{}, err
			}
		}
	} else if err := policy.CheckManager(caller, "updating"); err != nil {
		return models.Account{}, err
	}

	release, err := a.begin("update:" + targetID)
	if err != nil {
		return models.Account{}, err
	}
	defer release()

	var updated models.Account
	err = a.client.do(ctx, http.MethodPut, "/users/"+url.PathEscape(targetID), a.session.Token(), req, &updated)
	return updated, err
}

// Delete pre-validates and removes targetID.
func (a *Accounts) Delete(ctx context.Context, targetID string) error {
	caller, err := a.caller()
	if err != nil {
		return err
	}
	if err := policy.CheckDeleteSelf(caller, targetID); err != nil {
		return err
	}
	if target, _, ok := a.known(targetID); ok {
		if err := policy.CheckDelete(caller, &target); err != nil {
			return err
		}
	} else if err := policy.CheckManager(caller, "deleting"); err != nil {
		return err
	}

	release, err := a.begin("delete:" + targetID)
	if err != nil {
		return err
	}
	defer release()

	return a.client.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(targetID), a.session.Token(), nil, nil)
}

// DeleteMany deletes targets concurrently and returns the first failure.
func (a *Accounts) DeleteMany(ctx context.Context, targetIDs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range targetIDs {
		g.Go(func() error { return a.Delete(ctx, id) })
	}
	return g.Wait()
}

// AuditLogs fetches the audit trail.
func (a *Accounts) AuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, error) {
	caller, err := a.caller()
	if err != nil {
		return nil, err
	}
	if err := policy.CheckAudit(caller); err != nil {
		return nil, err
	}
	var records []models.AuditRecord
	path := "/audit-logs?filter=" + url.QueryEscape(string(filter))
	err = a.client.do(ctx, http.MethodGet, path, a.session.Token(), nil, &records)
	return records, err
}

func (a *Accounts) caller() (*models.Account, error) {
	caller := a.session.Principal()
	if caller == nil {
		return nil, ErrNoSession
	}
	return caller, nil
}

// known returns the last listed state of id and the active admin count of
// that listing.
func (a *Accounts) known(id string) (models.Account, int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var (
		target models.Account
		found  bool
		admins int
	)
	for _, account := range a.lastList {
		if account.IsActiveAdmin() {
			admins++
		}
		if account.ID == id {
			target, found = account, true
		}
	}
	return target, admins, found
}

func (a *Accounts) begin(key string) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.pending[key]; busy {
		return nil, ErrDuplicateSubmission
	}
	a.pending[key] = struct{}{}
	return func() {
		a.mu.Lock()
		delete(a.pending, key)
		a.mu.Unlock()
	}, nil
}
