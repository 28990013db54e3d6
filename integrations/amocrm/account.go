package amocrm

import (
	"context"
	"net/http"

	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
)

func (c *Client) GetAccount(ctx context.Context) (*domainCRM.Account, error) {
	var account domainCRM.Account
	if _, err := c.do(ctx, http.MethodGet, "/account", nil, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]domainCRM.User, error) {
	var resp listResponse
	if _, err := c.do(ctx, http.MethodGet, "/users", nil, nil, &resp); err != nil {
		return nil, err
	}
	users := resp.Embedded.Users
	if users == nil {
		users = []domainCRM.User{}
	}
	return users, nil
}

func (c *Client) ListPipelines(ctx context.Context) ([]domainCRM.Pipeline, error) {
	var resp listResponse
	if _, err := c.do(ctx, http.MethodGet, "/leads/pipelines", nil, nil, &resp); err != nil {
		return nil, err
	}
	pipelines := make([]domainCRM.Pipeline, 0, len(resp.Embedded.Pipelines))
	for _, p := range resp.Embedded.Pipelines {
		pipelines = append(pipelines, p.toDomain())
	}
	return pipelines, nil
}
