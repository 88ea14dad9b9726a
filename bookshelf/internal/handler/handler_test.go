package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/errs"
	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/handler"
	service_mocks "github.com/Astemirdum/bookshelf-service/bookshelf/internal/handler/mocks"
	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/model"
)

type response struct {
	expectedCode int
	expectedBody string
}

type mockBehavior func(r *service_mocks.MockBookService)

func serve(t *testing.T, behavior mockBehavior, method, target, body string, opts ...handler.Option) *httptest.ResponseRecorder {
	t.Helper()
	c := gomock.NewController(t)
	svc := service_mocks.NewMockBookService(c)
	behavior(svc)

	h := handler.New(svc, zap.NewExample().Named("test"), opts...)
	e := h.NewRouter()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, http.NoBody)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	return w
}

func trimmed(w *httptest.ResponseRecorder) string {
	return strings.Trim(w.Body.String(), "\n")
}

func TestHandler_Status(t *testing.T) {
	t.Parallel()
	w := serve(t, func(r *service_mocks.MockBookService) {}, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `{"status":"Backend running successfully"}`, trimmed(w))
}

func TestHandler_ListBooks(t *testing.T) {
	t.Parallel()
	finish := model.NewDate(2024, time.March, 1)
	var tests = []struct {
		name         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().
					ListBooks(gomock.Any()).
					Return([]model.Book{
						{
							ID:         "b-1",
							Title:      "Мастер и Маргарита",
							Rating:     5,
							Moods:      []string{"dark", "funny"},
							Status:     model.StatusFinished,
							FinishDate: &finish,
						},
						{
							ID:     "b-2",
							Title:  "Untitled",
							Moods:  []string{},
							Status: model.StatusToBeRead,
						},
					}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `[{"id":"b-1","title":"Мастер и Маргарита","author":null,"genre":null,"rating":5,"review":null,"moods":["dark","funny"],"status":"finished","start_date":null,"finish_date":"2024-03-01"},` +
					`{"id":"b-2","title":"Untitled","author":null,"genre":null,"rating":0,"review":null,"moods":[],"status":"tbr","start_date":null,"finish_date":null}]`,
			},
		},
		{
			name: "empty",
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().ListBooks(gomock.Any()).Return([]model.Book{}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `[]`,
			},
		},
		{
			name: "err. internal",
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().ListBooks(gomock.Any()).Return(nil, errors.New("db internal"))
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"error":"db internal"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := serve(t, tt.mockBehavior, http.MethodGet, "/api/books", "")
			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, trimmed(w))
		})
	}
}

func TestHandler_CreateBook(t *testing.T) {
	t.Parallel()
	var tests = []struct {
		name         string
		body         string
		opts         []handler.Option
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"id":"b-1","title":"Dune","rating":"5","moods":["epic"]}`,
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().
					CreateBook(gomock.Any(), model.BookInput{
						ID:     model.Some("b-1"),
						Title:  model.Some("Dune"),
						Rating: model.Some(model.Rating(5)),
						Moods:  model.Some([]string{"epic"}),
					}).
					Return(model.Book{ID: "b-1", Title: "Dune"}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"message":"Book 'Dune' added successfully","id":"b-1"}`,
			},
		},
		{
			name: "ok. empty object",
			body: `{}`,
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().
					CreateBook(gomock.Any(), model.BookInput{}).
					Return(model.Book{ID: "generated", Title: model.DefaultTitle}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"message":"Book 'Untitled' added successfully","id":"generated"}`,
			},
		},
		{
			name: "ok. bad date is not an error",
			body: `{"title":"Dune","start_date":"not-a-date"}`,
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().
					CreateBook(gomock.Any(), model.BookInput{
						Title:     model.Some("Dune"),
						StartDate: model.Some(model.RawDate("not-a-date")),
					}).
					Return(model.Book{ID: "b-2", Title: "Dune"}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"message":"Book 'Dune' added successfully","id":"b-2"}`,
			},
		},
		{
			name: "ok. unknown status is accepted by default",
			body: `{"status":"abandoned"}`,
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().
					CreateBook(gomock.Any(), model.BookInput{Status: model.Some(model.Status("abandoned"))}).
					Return(model.Book{ID: "b-3", Title: model.DefaultTitle}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"message":"Book 'Untitled' added successfully","id":"b-3"}`,
			},
		},
		{
			name:         "err. unknown status in strict mode",
			body:         `{"status":"abandoned"}`,
			opts:         []handler.Option{handler.WithStrictStatus(true)},
			mockBehavior: func(r *service_mocks.MockBookService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"error":"Key: 'statusRule.Status' Error:Field validation for 'Status' failed on the 'oneof' tag"}`,
			},
		},
		{
			name: "err. duplicate id",
			body: `{"id":"b-1"}`,
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().
					CreateBook(gomock.Any(), model.BookInput{ID: model.Some("b-1")}).
					Return(model.Book{}, errors.New(`ERROR: duplicate key value violates unique constraint "books_pkey" (SQLSTATE 23505)`))
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"error":"ERROR: duplicate key value violates unique constraint \"books_pkey\" (SQLSTATE 23505)"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := serve(t, tt.mockBehavior, http.MethodPost, "/api/books", tt.body, tt.opts...)
			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, trimmed(w))
		})
	}
}

func TestHandler_CreateBook_BadRating(t *testing.T) {
	t.Parallel()
	w := serve(t, func(r *service_mocks.MockBookService) {}, http.MethodPost, "/api/books", `{"rating":"five"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, trimmed(w), `"error":`)
	require.Contains(t, trimmed(w), "not an integer")
}

func TestHandler_UpdateBook(t *testing.T) {
	t.Parallel()
	var tests = []struct {
		name         string
		id           string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			id:   "b-1",
			body: `{"rating":4,"review":null}`,
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().
					UpdateBook(gomock.Any(), "b-1", model.BookInput{
						Rating: model.Some(model.Rating(4)),
						Review: model.Null[string](),
					}).
					Return(model.Book{ID: "b-1", Title: "Dune"}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"message":"Book 'Dune' updated successfully"}`,
			},
		},
		{
			name: "err. not found",
			id:   "missing",
			body: `{"title":"x"}`,
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().
					UpdateBook(gomock.Any(), "missing", model.BookInput{Title: model.Some("x")}).
					Return(model.Book{}, errs.ErrNotFound)
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"error":"Book not found"}`,
			},
		},
		{
			name: "err. internal",
			id:   "b-1",
			body: `{"title":"x"}`,
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().
					UpdateBook(gomock.Any(), "b-1", gomock.Any()).
					Return(model.Book{}, errors.New("conn closed"))
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"error":"conn closed"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := serve(t, tt.mockBehavior, http.MethodPatch, "/api/books/"+tt.id, tt.body)
			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, trimmed(w))
		})
	}
}

func TestHandler_DeleteBook(t *testing.T) {
	t.Parallel()
	var tests = []struct {
		name         string
		id           string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			id:   "b-1",
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().DeleteBook(gomock.Any(), "b-1").Return(model.Book{ID: "b-1", Title: "Dune"}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"message":"Book 'Dune' deleted successfully"}`,
			},
		},
		{
			name: "err. not found",
			id:   "missing",
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().DeleteBook(gomock.Any(), "missing").Return(model.Book{}, errs.ErrNotFound)
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"error":"Book not found"}`,
			},
		},
		{
			name: "err. internal",
			id:   "b-1",
			mockBehavior: func(r *service_mocks.MockBookService) {
				r.EXPECT().DeleteBook(gomock.Any(), "b-1").Return(model.Book{}, errors.New("db internal"))
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"error":"db internal"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := serve(t, tt.mockBehavior, http.MethodDelete, "/api/books/"+tt.id, "")
			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, trimmed(w))
		})
	}
}

func TestRouter_UnknownPath(t *testing.T) {
	t.Parallel()
	for _, target := range []string{"/api/authors", "/records"} {
		w := serve(t, func(r *service_mocks.MockBookService) {}, http.MethodGet, target, "")
		require.Equal(t, http.StatusNotFound, w.Code, target)
		require.Equal(t, `{"error":"Not Found"}`, trimmed(w), target)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	h := handler.New(service_mocks.NewMockBookService(c), zap.NewNop())
	e := h.NewRouter()

	r := httptest.NewRequest(http.MethodOptions, "/api/books/b-1", http.NoBody)
	r.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	r.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPatch)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get(echo.HeaderAccessControlAllowOrigin))
	require.Contains(t, w.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPatch)
}

func TestRouter_RecoversPanic(t *testing.T) {
	t.Parallel()
	w := serve(t, func(r *service_mocks.MockBookService) {
		r.EXPECT().ListBooks(gomock.Any()).DoAndReturn(func(_ interface{}) ([]model.Book, error) {
			panic("boom")
		})
	}, http.MethodGet, "/api/books", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, `{"error":"boom"}`, trimmed(w))
}

func TestRouter_BurstWithDefaults(t *testing.T) {
	t.Parallel()
	const n = 150
	c := gomock.NewController(t)
	svc := service_mocks.NewMockBookService(c)
	svc.EXPECT().
		CreateBook(gomock.Any(), model.BookInput{}).
		Return(model.Book{ID: "b-1", Title: model.DefaultTitle}, nil).
		Times(n)
	e := handler.New(svc, zap.NewNop()).NewRouter()

	for i := 0; i < n; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/books", strings.NewReader(`{}`))
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		w := httptest.NewRecorder()
		e.ServeHTTP(w, r)
		require.Equal(t, http.StatusCreated, w.Code, "request %d", i)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	svc := service_mocks.NewMockBookService(c)
	svc.EXPECT().ListBooks(gomock.Any()).Return([]model.Book{}, nil).AnyTimes()
	e := handler.New(svc, zap.NewNop(), handler.WithRateLimit(1)).NewRouter()

	codes := make(map[int]int)
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/books", http.NoBody))
		codes[w.Code]++
	}
	require.Positive(t, codes[http.StatusOK])
	require.Positive(t, codes[http.StatusTooManyRequests])
}

func TestRouter_LogsIncoming(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.InfoLevel)
	c := gomock.NewController(t)
	e := handler.New(service_mocks.NewMockBookService(c), zap.New(core)).NewRouter()

	for _, target := range []string{"/", "/nope"} {
		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	}

	incoming := logs.FilterMessage("incoming").AllUntimed()
	require.Len(t, incoming, 2)
	for i, path := range []string{"/", "/nope"} {
		require.Equal(t, "handler.access", incoming[i].LoggerName)
		fields := incoming[i].ContextMap()
		require.Equal(t, http.MethodGet, fields["method"])
		require.Equal(t, path, fields["path"])
	}
}
