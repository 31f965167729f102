package draftapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aberdasher/draftbot/internal/draft"
	"github.com/aberdasher/draftbot/internal/util/httputil"
)

type ClientOptions struct {
	Endpoint string
	Token    string
}

type client struct {
	o      ClientOptions
	client *http.Client
}

func NewClient(o ClientOptions, httpClient *http.Client) API {
	return &client{o: o, client: httpClient}
}

func (c *client) setUpRequest(req *http.Request) {
	req.Header.Add("X-Token", c.o.Token)
	req.Header.Add("Content-Type", "application/json")
}

func (c *client) decodeError(rsp *http.Response) error {
	if 200 <= rsp.StatusCode && rsp.StatusCode <= 299 {
		return nil
	}
	var b bytes.Buffer
	_, err := io.Copy(&b, rsp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if rsp.Header.Get("Content-Type") == "application/json" {
		var apiErr *draft.Error
		if err := json.Unmarshal(b.Bytes(), &apiErr); err != nil {
			return fmt.Errorf("unmarshal json: %w", err)
		}
		// A literal "null" body unmarshals into a nil pointer.
		if apiErr == nil || apiErr.Code == draft.ErrInvalidCode {
			return fmt.Errorf("bad error json")
		}
		return apiErr
	}
	return httputil.MakeError(rsp.StatusCode, b.String())
}

func doClientRequest[Req any, Rsp any](ctx context.Context, c *client, path string, req *Req) (*Rsp, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.o.Endpoint+path, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setUpRequest(hReq)
	hRsp, err := c.client.Do(hReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, hRsp.Body)
		_ = hRsp.Body.Close()
	}()
	if err := c.decodeError(hRsp); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	rspBytes, err := io.ReadAll(hRsp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var rsp *Rsp
	if err := json.Unmarshal(rspBytes, &rsp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return rsp, nil
}

func (c *client) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	return doClientRequest[CreateRequest, CreateResponse](ctx, c, "/create", req)
}

func (c *client) SignUp(ctx context.Context, req *SignUpRequest) (*SignUpResponse, error) {
	return doClientRequest[SignUpRequest, SignUpResponse](ctx, c, "/signup", req)
}

func (c *client) CancelSignUp(ctx context.Context, req *CancelSignUpRequest) (*CancelSignUpResponse, error) {
	return doClientRequest[CancelSignUpRequest, CancelSignUpResponse](ctx, c, "/signup/cancel", req)
}

func (c *client) ReadyCheck(ctx context.Context, req *ReadyCheckRequest) (*ReadyCheckResponse, error) {
	return doClientRequest[ReadyCheckRequest, ReadyCheckResponse](ctx, c, "/readycheck", req)
}

func (c *client) Ready(ctx context.Context, req *ReadyRequest) (*ReadyResponse, error) {
	return doClientRequest[ReadyRequest, ReadyResponse](ctx, c, "/ready", req)
}

func (c *client) AssignTeam(ctx context.Context, req *AssignTeamRequest) (*AssignTeamResponse, error) {
	return doClientRequest[AssignTeamRequest, AssignTeamResponse](ctx, c, "/team", req)
}

func (c *client) FormTeams(ctx context.Context, req *FormTeamsRequest) (*FormTeamsResponse, error) {
	return doClientRequest[FormTeamsRequest, FormTeamsResponse](ctx, c, "/teams/form", req)
}

func (c *client) Pairings(ctx context.Context, req *PairingsRequest) (*PairingsResponse, error) {
	return doClientRequest[PairingsRequest, PairingsResponse](ctx, c, "/pairings", req)
}

func (c *client) Report(ctx context.Context, req *ReportRequest) (*ReportResponse, error) {
	return doClientRequest[ReportRequest, ReportResponse](ctx, c, "/report", req)
}

func (c *client) Seating(ctx context.Context, req *SeatingRequest) (*SeatingResponse, error) {
	return doClientRequest[SeatingRequest, SeatingResponse](ctx, c, "/seating", req)
}

func (c *client) NextMatch(ctx context.Context, req *NextMatchRequest) (*NextMatchResponse, error) {
	return doClientRequest[NextMatchRequest, NextMatchResponse](ctx, c, "/match/next", req)
}

func (c *client) Complete(ctx context.Context, req *CompleteRequest) (*CompleteResponse, error) {
	return doClientRequest[CompleteRequest, CompleteResponse](ctx, c, "/complete", req)
}

func (c *client) Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	return doClientRequest[CancelRequest, CancelResponse](ctx, c, "/cancel", req)
}

func (c *client) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	return doClientRequest[GetRequest, GetResponse](ctx, c, "/get", req)
}

func (c *client) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	return doClientRequest[ListRequest, ListResponse](ctx, c, "/list", req)
}
