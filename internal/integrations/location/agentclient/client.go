package agentclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/RekaTrack/internal/apiclient"
	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/pkg/errors"
)

// Client drives the tracer agent's background tasks over its control API.
type Client struct {
	api *apiclient.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8082"
	}
	return &Client{api: apiclient.New(baseURL, nil, apiclient.WithTimeout(5*time.Second))}
}

type taskState struct {
	Name    string `json:"name"`
	Started bool   `json:"started"`
}

func taskPath(task string) string {
	return "/tasks/" + url.PathEscape(task)
}

func (c *Client) HasStarted(ctx context.Context, task string) (bool, error) {
	body, err := c.api.Get(ctx, taskPath(task))
	if err != nil {
		return false, err
	}
	var st taskState
	if err := body.Decode(&st); err != nil {
		return false, errors.Wrap(err, "agent task state")
	}
	return st.Started, nil
}

func (c *Client) Start(ctx context.Context, task string, opts location.UpdateOptions) error {
	_, err := c.api.Do(ctx, apiclient.Request{
		Method:   http.MethodPut,
		Endpoint: taskPath(task),
		Body:     apiclient.JSONBody{Value: opts},
	})
	return err
}

func (c *Client) Stop(ctx context.Context, task string) error {
	_, err := c.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Endpoint: taskPath(task)})
	return err
}
