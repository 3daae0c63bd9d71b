package server

import (
	"context"
	"encoding/json"
	"strings"

	"connectrpc.com/connect"

	"github.com/at-ishikawa/lessonquiz/internal/hearts"
	"github.com/at-ishikawa/lessonquiz/internal/quiz"
)

// Client calls a remote quiz service. It implements quiz.Service; the learner is taken from
// the token the client was built with, so learnerID arguments are ignored.
type Client struct {
	getState     *connect.Client[GetStateRequest, GetStateResponse]
	submitAnswer *connect.Client[SubmitAnswerRequest, SubmitAnswerResponse]
	restart      *connect.Client[RestartRequest, RestartResponse]
	getHearts    *connect.Client[GetHeartsRequest, GetHeartsResponse]
}

var _ quiz.Service = (*Client)(nil)

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		getState:     connect.NewClient[GetStateRequest, GetStateResponse](httpClient, baseURL+GetStateProcedure, opts...),
		submitAnswer: connect.NewClient[SubmitAnswerRequest, SubmitAnswerResponse](httpClient, baseURL+SubmitAnswerProcedure, opts...),
		restart:      connect.NewClient[RestartRequest, RestartResponse](httpClient, baseURL+RestartProcedure, opts...),
		getHearts:    connect.NewClient[GetHeartsRequest, GetHeartsResponse](httpClient, baseURL+GetHeartsProcedure, opts...),
	}
}

func (c *Client) GetState(ctx context.Context, _, lessonID string) (quiz.State, error) {
	res, err := c.getState.CallUnary(ctx, connect.NewRequest(&GetStateRequest{LessonID: lessonID}))
	if err != nil {
		return quiz.State{}, err
	}
	return res.Msg.State, nil
}

func (c *Client) Answer(ctx context.Context, input quiz.AnswerInput) (quiz.AnswerOutcome, error) {
	res, err := c.submitAnswer.CallUnary(ctx, connect.NewRequest(&SubmitAnswerRequest{
		LessonID:   input.LessonID,
		AttemptID:  input.AttemptID,
		QuestionID: input.QuestionID,
		Response:   json.RawMessage(input.Response),
	}))
	if err != nil {
		return quiz.AnswerOutcome{}, err
	}
	return res.Msg.Outcome, nil
}

func (c *Client) Restart(ctx context.Context, _, lessonID string, mode quiz.RestartMode) (quiz.State, error) {
	res, err := c.restart.CallUnary(ctx, connect.NewRequest(&RestartRequest{LessonID: lessonID, Mode: string(mode)}))
	if err != nil {
		return quiz.State{}, err
	}
	return res.Msg.State, nil
}

func (c *Client) HeartsStatus(ctx context.Context, _ string) (hearts.Status, error) {
	res, err := c.getHearts.CallUnary(ctx, connect.NewRequest(&GetHeartsRequest{}))
	if err != nil {
		return hearts.Status{}, err
	}
	return res.Msg.Hearts, nil
}
