package accounts

import (
	"context"
	"net/http"
	"strings"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/verimail/lib/models"
	"go.uber.org/zap"
)

// Remote talks to the host application's account API over HTTP.
//
//	GET  accounts/{id}
//	GET  accounts/{id}/roles
//	POST accounts/{id}/block
//	POST accounts/{id}/cancel      {"method": "block"|"delete"}
//	GET  accounts?name_or_email=...
type Remote struct {
	baseURL   string
	token     string
	transport http.RoundTripper
	log       *zap.Logger
}

func NewRemote(baseURL, token string, transport http.RoundTripper, log *zap.Logger) *Remote {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Remote{baseURL, token, transport, log}
}

type accountView struct {
	ID     uint     `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Locale string   `json:"locale"`
	Status string   `json:"status"`
	Roles  []string `json:"roles"`
}

func (view accountView) Account() *models.Account {
	acct := &models.Account{
		ID:     view.ID,
		Name:   view.Name,
		Email:  view.Email,
		Locale: view.Locale,
		Status: models.AccountStatus(view.Status),
	}
	for _, r := range view.Roles {
		acct.Roles = append(acct.Roles, models.RoleAssignment{UserID: view.ID, Role: r})
	}
	return acct
}

func (r *Remote) request() *requests.Builder {
	rb := requests.URL(r.baseURL).Transport(r.transport)
	if r.token != "" {
		rb = rb.Bearer(r.token)
	}
	return rb
}

func notFound(err error) error {
	if requests.HasStatusErr(err, http.StatusNotFound) {
		return ErrAccountNotFound
	}
	return err
}

func (r *Remote) Load(ctx context.Context, userID uint) (*models.Account, error) {
	var view accountView
	err := r.request().
		Pathf("accounts/%d", userID).
		ToJSON(&view).
		Fetch(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return view.Account(), nil
}

func (r *Remote) RolesOf(ctx context.Context, userID uint) ([]string, error) {
	var roles []string
	err := r.request().
		Pathf("accounts/%d/roles", userID).
		ToJSON(&roles).
		Fetch(ctx)
	if requests.HasStatusErr(err, http.StatusNotFound) {
		return nil, nil
	}
	return roles, err
}

func (r *Remote) Block(ctx context.Context, userID uint) error {
	err := r.request().
		Pathf("accounts/%d/block", userID).
		Post().
		Fetch(ctx)
	if err != nil {
		return notFound(err)
	}
	r.log.Sugar().Infow("Blocked remote account", "user_id", userID)
	return nil
}

func (r *Remote) Cancel(ctx context.Context, userID uint, method CancelMethod) error {
	if _, err := ParseCancelMethod(string(method)); err != nil {
		return err
	}
	err := r.request().
		Pathf("accounts/%d/cancel", userID).
		BodyJSON(map[string]string{"method": string(method)}).
		Post().
		Fetch(ctx)
	if err != nil {
		return notFound(err)
	}
	r.log.Sugar().Infow("Cancelled remote account", "user_id", userID, "method", method)
	return nil
}

func (r *Remote) FindByNameOrEmail(ctx context.Context, nameOrEmail string) (*models.Account, error) {
	var view accountView
	err := r.request().
		Path("accounts").
		Param("name_or_email", nameOrEmail).
		ToJSON(&view).
		Fetch(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return view.Account(), nil
}
