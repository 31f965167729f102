package draftapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aberdasher/draftbot/internal/draft"
	"github.com/aberdasher/draftbot/internal/util/httputil"
	"github.com/aberdasher/draftbot/internal/util/randutil"
	"github.com/aberdasher/draftbot/internal/util/slogx"
)

type Server interface {
	Create(ctx context.Context, log *slog.Logger, req *CreateRequest) (*CreateResponse, error)
	SignUp(ctx context.Context, log *slog.Logger, req *SignUpRequest) (*SignUpResponse, error)
	CancelSignUp(ctx context.Context, log *slog.Logger, req *CancelSignUpRequest) (*CancelSignUpResponse, error)
	ReadyCheck(ctx context.Context, log *slog.Logger, req *ReadyCheckRequest) (*ReadyCheckResponse, error)
	Ready(ctx context.Context, log *slog.Logger, req *ReadyRequest) (*ReadyResponse, error)
	AssignTeam(ctx context.Context, log *slog.Logger, req *AssignTeamRequest) (*AssignTeamResponse, error)
	FormTeams(ctx context.Context, log *slog.Logger, req *FormTeamsRequest) (*FormTeamsResponse, error)
	Pairings(ctx context.Context, log *slog.Logger, req *PairingsRequest) (*PairingsResponse, error)
	Report(ctx context.Context, log *slog.Logger, req *ReportRequest) (*ReportResponse, error)
	Seating(ctx context.Context, log *slog.Logger, req *SeatingRequest) (*SeatingResponse, error)
	NextMatch(ctx context.Context, log *slog.Logger, req *NextMatchRequest) (*NextMatchResponse, error)
	Complete(ctx context.Context, log *slog.Logger, req *CompleteRequest) (*CompleteResponse, error)
	Cancel(ctx context.Context, log *slog.Logger, req *CancelRequest) (*CancelResponse, error)
	Get(ctx context.Context, log *slog.Logger, req *GetRequest) (*GetResponse, error)
	List(ctx context.Context, log *slog.Logger, req *ListRequest) (*ListResponse, error)
}

type TokenChecker func(token string) error

type ServerOptions struct {
	TokenChecker TokenChecker
}

func httpCodeFor(code draft.ErrorCode) int {
	switch code {
	case draft.ErrNoSuchSession:
		return http.StatusGone
	case draft.ErrUnknownMatch:
		return http.StatusNotFound
	case draft.ErrFull, draft.ErrWrongStage, draft.ErrAlreadyInitiated,
		draft.ErrAlreadySignedUp, draft.ErrUnresolvedMatch:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func makeHandler[Req any, Rsp any](
	log *slog.Logger,
	o *ServerOptions,
	fn func(context.Context, *slog.Logger, *Req) (*Rsp, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, hReq *http.Request) {
		log := log.With(
			slog.String("addr", hReq.RemoteAddr),
			slog.String("rid", randutil.InsecureID()),
		)

		if err := func() error {
			log.Info("handle draftapi request")

			if hReq.Method != http.MethodPost {
				log.Warn("unsupported method")
				return httputil.MakeError(http.StatusMethodNotAllowed, "method not allowed")
			}

			if err := o.TokenChecker(hReq.Header.Get("X-Token")); err != nil {
				log.Warn("token auth failed", slogx.Err(err))
				return httputil.MakeError(http.StatusForbidden, "bad token auth")
			}

			ctx, cancel := context.WithCancel(hReq.Context())
			defer cancel()

			reqBytes, err := io.ReadAll(hReq.Body)
			if err != nil {
				log.Info("error reading request", slogx.Err(err))
				return nil
			}
			req := new(Req)
			if err := json.Unmarshal(reqBytes, req); err != nil {
				log.Warn("error unmarshalling json", slogx.Err(err))
				return httputil.MakeError(http.StatusBadRequest, "unmarshal json request")
			}

			rsp, err := fn(ctx, log, req)
			if err != nil {
				if apiErr := (*draft.Error)(nil); errors.As(err, &apiErr) {
					return err
				}
				log.Warn("handler failed", slogx.Err(err))
				return httputil.MakeError(http.StatusInternalServerError, "internal server error")
			}

			rspBytes, err := json.Marshal(rsp)
			if err != nil {
				log.Warn("error marshalling json", slogx.Err(err))
				return httputil.MakeError(http.StatusInternalServerError, "marshal json response")
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(rspBytes); err != nil {
				log.Info("error writing response", slogx.Err(err))
			}
			return nil
		}(); err != nil {
			var apiErr *draft.Error
			if errors.As(err, &apiErr) {
				data, err := json.Marshal(apiErr)
				if err != nil {
					log.Warn("error marshalling error json", slogx.Err(err))
					if err := httputil.WriteErrorResponse(fmt.Errorf("marshal error json"), w); err != nil {
						log.Info("error writing error response", slogx.Err(err))
					}
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(httpCodeFor(apiErr.Code))
				if _, err := w.Write(data); err != nil {
					log.Info("error writing error response", slogx.Err(err))
				}
				return
			}
			if err := httputil.WriteErrorResponse(err, w); err != nil {
				log.Info("error writing error response", slogx.Err(err))
			}
		}
	}
}

func RegisterServer(s Server, mux *http.ServeMux, o ServerOptions, prefix string, log *slog.Logger) error {
	if o.TokenChecker == nil {
		return fmt.Errorf("no token checker")
	}
	handle := func(path string, h http.HandlerFunc) {
		mux.HandleFunc(prefix+path, h)
	}
	handle("/create", makeHandler(log.With(slog.String("method", "create")), &o, s.Create))
	handle("/signup", makeHandler(log.With(slog.String("method", "signup")), &o, s.SignUp))
	handle("/signup/cancel", makeHandler(log.With(slog.String("method", "cancelSignup")), &o, s.CancelSignUp))
	handle("/readycheck", makeHandler(log.With(slog.String("method", "readyCheck")), &o, s.ReadyCheck))
	handle("/ready", makeHandler(log.With(slog.String("method", "ready")), &o, s.Ready))
	handle("/team", makeHandler(log.With(slog.String("method", "assignTeam")), &o, s.AssignTeam))
	handle("/teams/form", makeHandler(log.With(slog.String("method", "formTeams")), &o, s.FormTeams))
	handle("/pairings", makeHandler(log.With(slog.String("method", "pairings")), &o, s.Pairings))
	handle("/report", makeHandler(log.With(slog.String("method", "report")), &o, s.Report))
	handle("/seating", makeHandler(log.With(slog.String("method", "seating")), &o, s.Seating))
	handle("/match/next", makeHandler(log.With(slog.String("method", "nextMatch")), &o, s.NextMatch))
	handle("/complete", makeHandler(log.With(slog.String("method", "complete")), &o, s.Complete))
	handle("/cancel", makeHandler(log.With(slog.String("method", "cancel")), &o, s.Cancel))
	handle("/get", makeHandler(log.With(slog.String("method", "get")), &o, s.Get))
	handle("/list", makeHandler(log.With(slog.String("method", "list")), &o, s.List))
	return nil
}
