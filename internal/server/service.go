package server

import (
	"net/http"

	"connectrpc.com/connect"
)

// QuizServiceName is the fully-qualified name of the quiz service.
const QuizServiceName = "lessonquiz.v1.QuizService"

// Procedure paths of the quiz service.
const (
	GetStateProcedure     = "/" + QuizServiceName + "/GetState"
	SubmitAnswerProcedure = "/" + QuizServiceName + "/SubmitAnswer"
	RestartProcedure      = "/" + QuizServiceName + "/Restart"
	GetHeartsProcedure    = "/" + QuizServiceName + "/GetHearts"
)

// NewQuizServiceHandler builds the HTTP handler of every quiz procedure and returns the path
// to mount it on.
func NewQuizServiceHandler(h *QuizHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, h.GetState, opts...))
	mux.Handle(SubmitAnswerProcedure, connect.NewUnaryHandler(SubmitAnswerProcedure, h.SubmitAnswer, opts...))
	mux.Handle(RestartProcedure, connect.NewUnaryHandler(RestartProcedure, h.Restart, opts...))
	mux.Handle(GetHeartsProcedure, connect.NewUnaryHandler(GetHeartsProcedure, h.GetHearts, opts...))
	return "/" + QuizServiceName + "/", mux
}
