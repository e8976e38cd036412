package timer

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/tasktimer/go/internal/models"
)

// TimerApp defines what the service layer needs from the timer application
type TimerApp interface {
	View() View
	Snapshot() models.Snapshot
	SetDescription(ctx context.Context, text string) error
	FocusTime()
	BlurTime(ctx context.Context, text string) error
	Toggle(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Service implements the TimerService RPC interface
type Service struct {
	app TimerApp
}

// NewService creates a new timer RPC service
func NewService(app TimerApp) *Service {
	return &Service{
		app: app,
	}
}

// NewServiceHandler builds the HTTP handler serving every TimerService
// procedure and returns the path to mount it on.
func NewServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetTimerProcedure, connect.NewUnaryHandler(GetTimerProcedure, svc.GetTimer, opts...))
	mux.Handle(SetDescriptionProcedure, connect.NewUnaryHandler(SetDescriptionProcedure, svc.SetDescription, opts...))
	mux.Handle(FocusTimeProcedure, connect.NewUnaryHandler(FocusTimeProcedure, svc.FocusTime, opts...))
	mux.Handle(BlurTimeProcedure, connect.NewUnaryHandler(BlurTimeProcedure, svc.BlurTime, opts...))
	mux.Handle(ToggleProcedure, connect.NewUnaryHandler(ToggleProcedure, svc.Toggle, opts...))
	mux.Handle(ResetProcedure, connect.NewUnaryHandler(ResetProcedure, svc.Reset, opts...))
	return "/" + TimerServiceName + "/", mux
}

// GetTimer returns the current view and snapshot
func (s *Service) GetTimer(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[TimerResponse], error) {
	return s.response(), nil
}

// SetDescription changes the task description
func (s *Service) SetDescription(ctx context.Context, req *connect.Request[TextRequest]) (*connect.Response[TimerResponse], error) {
	if err := s.app.SetDescription(ctx, req.Msg.Text); err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return s.response(), nil
}

// FocusTime marks the time field as being edited
func (s *Service) FocusTime(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[TimerResponse], error) {
	s.app.FocusTime()
	return s.response(), nil
}

// BlurTime finishes a time edit with the typed text
func (s *Service) BlurTime(ctx context.Context, req *connect.Request[TextRequest]) (*connect.Response[TimerResponse], error) {
	if err := s.app.BlurTime(ctx, req.Msg.Text); err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return s.response(), nil
}

// Toggle starts, pauses or resumes the timer
func (s *Service) Toggle(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[TimerResponse], error) {
	if err := s.app.Toggle(ctx); err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return s.response(), nil
}

// Reset returns the timer to its default state
func (s *Service) Reset(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[TimerResponse], error) {
	if err := s.app.Reset(ctx); err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return s.response(), nil
}

func (s *Service) response() *connect.Response[TimerResponse] {
	return connect.NewResponse(&TimerResponse{
		View:     s.app.View(),
		Snapshot: s.app.Snapshot(),
	})
}

// ServiceClient calls TimerService over connect
type ServiceClient struct {
	getTimer       *connect.Client[Empty, TimerResponse]
	setDescription *connect.Client[TextRequest, TimerResponse]
	focusTime      *connect.Client[Empty, TimerResponse]
	blurTime       *connect.Client[TextRequest, TimerResponse]
	toggle         *connect.Client[Empty, TimerResponse]
	reset          *connect.Client[Empty, TimerResponse]
}

// NewServiceClient creates a client for the service mounted at baseURL
func NewServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ServiceClient {
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &ServiceClient{
		getTimer:       connect.NewClient[Empty, TimerResponse](httpClient, baseURL+GetTimerProcedure, opts...),
		setDescription: connect.NewClient[TextRequest, TimerResponse](httpClient, baseURL+SetDescriptionProcedure, opts...),
		focusTime:      connect.NewClient[Empty, TimerResponse](httpClient, baseURL+FocusTimeProcedure, opts...),
		blurTime:       connect.NewClient[TextRequest, TimerResponse](httpClient, baseURL+BlurTimeProcedure, opts...),
		toggle:         connect.NewClient[Empty, TimerResponse](httpClient, baseURL+ToggleProcedure, opts...),
		reset:          connect.NewClient[Empty, TimerResponse](httpClient, baseURL+ResetProcedure, opts...),
	}
}

func (c *ServiceClient) GetTimer(ctx context.Context) (*TimerResponse, error) {
	return call(ctx, c.getTimer, &Empty{})
}

func (c *ServiceClient) SetDescription(ctx context.Context, text string) (*TimerResponse, error) {
	return call(ctx, c.setDescription, &TextRequest{Text: text})
}

func (c *ServiceClient) FocusTime(ctx context.Context) (*TimerResponse, error) {
	return call(ctx, c.focusTime, &Empty{})
}

func (c *ServiceClient) BlurTime(ctx context.Context, text string) (*TimerResponse, error) {
	return call(ctx, c.blurTime, &TextRequest{Text: text})
}

func (c *ServiceClient) Toggle(ctx context.Context) (*TimerResponse, error) {
	return call(ctx, c.toggle, &Empty{})
}

func (c *ServiceClient) Reset(ctx context.Context) (*TimerResponse, error) {
	return call(ctx, c.reset, &Empty{})
}

func call[Req any](ctx context.Context, client *connect.Client[Req, TimerResponse], msg *Req) (*TimerResponse, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
